// Package logging provides the terse, teacher-style status logging
// used by background workers (snapshot, rewrite, gossip, GC). No
// third-party structured logger appears anywhere in the retrieved
// example pack, so this stays on the standard library's log package,
// the way the teacher reports background-worker outcomes with bare
// fmt.Printf calls in StartSnapshotListener / StartBufferListener.
package logging

import (
	"log"
	"os"
)

// Logger tags every line with a worker name, mirroring the
// "[%s] ..." prefixes used throughout the teacher and pack repos'
// connection-handling log lines.
type Logger struct {
	tag string
	std *log.Logger
}

func New(tag string) *Logger {
	return &Logger{tag: tag, std: log.New(os.Stderr, "", log.LstdFlags)}
}

func (l *Logger) Infof(format string, args ...any) {
	l.std.Printf("[%s] "+format, append([]any{l.tag}, args...)...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.std.Printf("[%s] WARN "+format, append([]any{l.tag}, args...)...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.std.Printf("[%s] ERROR "+format, append([]any{l.tag}, args...)...)
}
