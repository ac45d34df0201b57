package cluster

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spineldb/spineldb/internal/dispatch"
)

// KeyExistsFunc reports whether key is present in the local database,
// used to decide MOVED/serve-locally/ASK for a Migrating slot.
type KeyExistsFunc func(key string) bool

// State is the cluster-mode fabric attached to a running node: the
// slot table, membership, and self-fencing read-only switch. It
// implements dispatch.ClusterChecker.
type State struct {
	SelfID      string
	SelfAddr    string
	Table       *Table
	Membership  *Membership
	NodeTimeout time.Duration
	Quorum      int // minimum reachable other masters required to stay writable

	KeyExists KeyExistsFunc

	readOnly atomic.Bool
}

func NewState(selfID, selfAddr string, nodeTimeout time.Duration, quorum int, keyExists KeyExistsFunc) *State {
	return &State{
		SelfID:      selfID,
		SelfAddr:    selfAddr,
		Table:       NewTable(),
		Membership:  NewMembership(selfID, selfAddr),
		NodeTimeout: nodeTimeout,
		Quorum:      quorum,
		KeyExists:   keyExists,
	}
}

// CheckKeys implements dispatch.ClusterChecker: compute the common
// slot for keys (CROSSSLOT if they disagree), then resolve
// MOVED/ASK/serve-locally per spec.md §4.11's client redirection
// table. This path never grants access to an Importing slot —
// Importing-slot access requires the one-shot ASKING flag, handled by
// AskingChecker at the connection layer.
func (s *State) CheckKeys(keys []string) (*dispatch.Redirect, error) {
	slot, ok := KeysSlot(keys)
	if !ok {
		return nil, fmt.Errorf("Keys in request don't hash to the same slot")
	}

	info := s.Table.Get(slot)
	if info.Owner == "" {
		return &dispatch.Redirect{Kind: dispatch.KindClusterDown, Slot: slot}, nil
	}

	if info.Owner != s.SelfID {
		if info.Phase != Importing {
			addr := s.addrFor(info.Owner)
			return &dispatch.Redirect{Kind: dispatch.KindMoved, Slot: slot, Addr: addr}, nil
		}
	}

	switch info.Phase {
	case Migrating:
		if s.allKeysExistLocally(keys) {
			return nil, nil
		}
		addr := s.addrFor(info.Peer)
		return &dispatch.Redirect{Kind: dispatch.KindAsk, Slot: slot, Addr: addr}, nil
	case Importing:
		if info.Owner == s.SelfID {
			return nil, nil // serving node owns it outright, no ASKING needed
		}
		addr := s.addrFor(info.Owner)
		return &dispatch.Redirect{Kind: dispatch.KindMoved, Slot: slot, Addr: addr}, nil
	default:
		return nil, nil
	}
}

func (s *State) allKeysExistLocally(keys []string) bool {
	if s.KeyExists == nil {
		return false
	}
	for _, k := range keys {
		if !s.KeyExists(k) {
			return false
		}
	}
	return true
}

func (s *State) addrFor(nodeID string) string {
	if n, ok := s.Membership.Lookup(nodeID); ok {
		return n.Addr
	}
	return ""
}

// CheckQuorum evaluates self-fencing: if fewer than Quorum other
// masters have been seen within NodeTimeout, the node becomes
// read-only until contact resumes (spec.md §4.11 "Self-fencing").
func (s *State) CheckQuorum(now time.Time) {
	if s.Quorum <= 0 {
		return
	}
	reachable := 0
	for _, m := range s.Membership.OtherMasters() {
		if Reachable(m, s.NodeTimeout, now) {
			reachable++
		}
	}
	s.readOnly.Store(reachable < s.Quorum)
}

// ReadOnly reports whether self-fencing has engaged.
func (s *State) ReadOnly() bool {
	return s.readOnly.Load()
}

// AskingChecker wraps a State with one-shot ASKING semantics: a
// connection that just sent ASKING gets a single free pass into an
// Importing slot for its very next command (spec.md §4.11: "If the
// slot is Importing, accept commands only from ASKING-flagged clients
// for keys not yet present locally"). One per connection.
type AskingChecker struct {
	Inner  *State
	asking bool
}

func NewAskingChecker(inner *State) *AskingChecker {
	return &AskingChecker{Inner: inner}
}

// SetAsking arms the one-shot bypass; consumed by the next CheckKeys
// call regardless of outcome.
func (a *AskingChecker) SetAsking() { a.asking = true }

func (a *AskingChecker) CheckKeys(keys []string) (*dispatch.Redirect, error) {
	armed := a.asking
	a.asking = false

	slot, ok := KeysSlot(keys)
	if !ok {
		return nil, fmt.Errorf("Keys in request don't hash to the same slot")
	}
	info := a.Inner.Table.Get(slot)

	if armed && info.Phase == Importing {
		return nil, nil
	}
	return a.Inner.CheckKeys(keys)
}
