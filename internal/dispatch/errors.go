// Package dispatch implements the command execution pipeline of
// spec.md §4.4: key-set extraction, cluster slot checks, sorted
// ascending shard-lock acquisition, execution, and propagation.
package dispatch

import "fmt"

// ErrKind is one of the client-visible error kinds spec.md §7 lists.
type ErrKind string

const (
	KindWrongType    ErrKind = "WRONGTYPE"
	KindGeneric      ErrKind = "ERR"
	KindNoScript     ErrKind = "NOSCRIPT"
	KindNoPerm       ErrKind = "NOPERM"
	KindMoved        ErrKind = "MOVED"
	KindAsk          ErrKind = "ASK"
	KindCrossSlot    ErrKind = "CROSSSLOT"
	KindReadOnly     ErrKind = "READONLY"
	KindLoading      ErrKind = "LOADING"
	KindBusy         ErrKind = "BUSY"
	KindNoAuth       ErrKind = "NOAUTH"
	KindOOM          ErrKind = "OOM"
	KindClusterDown  ErrKind = "CLUSTERDOWN"
)

// CommandError is a typed, client-facing error. The dispatcher replies
// with it as "KIND message" and never propagates a command whose
// handler returned an error.
type CommandError struct {
	Kind    ErrKind
	Message string
}

func (e *CommandError) Error() string { return fmt.Sprintf("%s %s", e.Kind, e.Message) }

func NewError(kind ErrKind, format string, args ...any) *CommandError {
	return &CommandError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WrongType() *CommandError {
	return &CommandError{Kind: KindWrongType, Message: "Operation against a key holding the wrong kind of value"}
}
