// Package scripting is the narrow seam spec.md §1 names as the
// embedded scripting sandbox's stable contract: "specified only as an
// interface — the core must expose a command-execution callback and a
// script cache keyed by SHA1." The sandbox implementation itself is
// explicitly out of scope; this package is deliberately just the
// callback type and the SHA1-keyed cache EVAL/EVALSHA/SCRIPT need. The
// cache half follows core/scripting/lua_manager.rs's
// load/get/exists/flush, SHA1-keyed; that file's sandbox itself (a live
// Lua VM its flush also resets) is the part spec.md scopes out, and no
// pack Go repo embeds a scripting engine to ground that half on instead.
package scripting

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sync"
)

// Executor runs one parsed command issued from within a script. It
// re-enters the dispatcher with the command's own locks — scripts
// hold no global lock (spec.md §4.4 point 4.5-adjacent note: "commands
// issued from within scripts re-enter the dispatcher with their own
// locks (no global script lock)").
type Executor func(args []string) (reply any, err error)

// Engine is the callback the core exposes to the out-of-scope sandbox:
// given a script body and its args, run it against run, returning the
// script's result.
type Engine func(source string, keys, args []string, run Executor) (any, error)

// Cache is the SHA1-keyed script store EVALSHA/SCRIPT LOAD/SCRIPT
// EXISTS need.
type Cache struct {
	mu      sync.RWMutex
	scripts map[string]string // sha1 hex -> source
}

func NewCache() *Cache {
	return &Cache{scripts: make(map[string]string)}
}

// SHA1Hex computes the lowercase hex SHA1 digest of source, the key
// EVALSHA/SCRIPT LOAD use.
func SHA1Hex(source string) string {
	sum := sha1.Sum([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Load registers source and returns its SHA1 key (SCRIPT LOAD).
func (c *Cache) Load(source string) string {
	sha := SHA1Hex(source)
	c.mu.Lock()
	c.scripts[sha] = source
	c.mu.Unlock()
	return sha
}

// Get resolves a SHA1 key to its script source (EVALSHA).
func (c *Cache) Get(sha string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src, ok := c.scripts[sha]
	return src, ok
}

// Exists reports, for each requested SHA1, whether it is cached
// (SCRIPT EXISTS).
func (c *Cache) Exists(shas []string) []bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]bool, len(shas))
	for i, sha := range shas {
		_, out[i] = c.scripts[sha]
	}
	return out
}

// Flush clears every cached script (SCRIPT FLUSH).
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts = make(map[string]string)
}

// ErrNoScript is returned when EVALSHA names a SHA1 the cache has
// never seen (or has since flushed) — the client must resend the full
// script via EVAL, which re-populates the cache as a side effect.
var ErrNoScript = fmt.Errorf("NOSCRIPT No matching script. Please use EVAL.")
