package cluster

import (
	"sync"
	"time"
)

// NodeInfo is one membership record (spec.md §3 "Cluster state":
// "membership set of node records (id, address, role, replication
// offset, last-seen, flags)").
type NodeInfo struct {
	ID          string
	Addr        string
	Role        string // "master" or "replica"
	Offset      int64
	LastSeen    time.Time
	Flags       []string
}

// Membership is the eventually-consistent node set plus a monotonic
// epoch, bumped on every topology change spec.md §3 names.
type Membership struct {
	mu    sync.RWMutex
	self  string
	nodes map[string]*NodeInfo
	epoch uint64
}

func NewMembership(selfID, selfAddr string) *Membership {
	m := &Membership{
		self:  selfID,
		nodes: make(map[string]*NodeInfo),
	}
	m.nodes[selfID] = &NodeInfo{ID: selfID, Addr: selfAddr, Role: "master", LastSeen: time.Now()}
	return m
}

func (m *Membership) SelfID() string { return m.self }

func (m *Membership) Self() NodeInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.nodes[m.self]
}

// Upsert merges a node record, keeping the most recently seen
// observation (gossip is eventually consistent: spec.md §3).
func (m *Membership) Upsert(n NodeInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.nodes[n.ID]
	if !ok || n.LastSeen.After(existing.LastSeen) {
		cp := n
		m.nodes[n.ID] = &cp
	}
}

func (m *Membership) Lookup(id string) (NodeInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	if !ok {
		return NodeInfo{}, false
	}
	return *n, true
}

func (m *Membership) All() []NodeInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]NodeInfo, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, *n)
	}
	return out
}

// OtherMasters returns every known master other than self, used for the
// quorum self-fencing check.
func (m *Membership) OtherMasters() []NodeInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]NodeInfo, 0, len(m.nodes))
	for id, n := range m.nodes {
		if id != m.self && n.Role == "master" {
			out = append(out, *n)
		}
	}
	return out
}

func (m *Membership) BumpEpoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	return m.epoch
}

func (m *Membership) Epoch() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.epoch
}

// Reachable reports whether n was last seen within node_timeout of
// now — the input to self-fencing's quorum count.
func Reachable(n NodeInfo, nodeTimeout time.Duration, now time.Time) bool {
	return now.Sub(n.LastSeen) < nodeTimeout
}
