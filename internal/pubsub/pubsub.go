// Package pubsub implements spec.md §4.12's per-channel and
// per-pattern publish/subscribe fan-out. It generalizes the
// subIndex/deliverToSubscribers shape the retrieved pack's
// qinran6271-codecrafters-redis-go/app/pubsub.go uses (a
// map[channel]set-of-subscribers guarded by one RWMutex, snapshotted
// before delivery so a slow subscriber never holds the lock during
// writes) into a channel-based design consistent with this module's
// internal/eventbus, replacing direct net.Conn writes with a per-
// subscriber outbound message channel the transport layer drains.
package pubsub

import (
	"path"
	"sort"
	"sync"
)

// Message is one delivered publish, tagged with whether channel was
// matched literally or via a pattern subscription.
type Message struct {
	Channel string
	Pattern string // empty for a literal channel subscription
	Payload string
}

// Subscriber is one connection's mailbox. Publish snapshots the
// subscribers under the hub's lock and sends after releasing it, so
// messages one goroutine publishes to a channel arrive in the order
// they were published; a full mailbox drops the message.
type Subscriber struct {
	id string
	ch chan Message
}

func newSubscriber(id string, capacity int) *Subscriber {
	return &Subscriber{id: id, ch: make(chan Message, capacity)}
}

func (s *Subscriber) Messages() <-chan Message { return s.ch }

// Hub is the process-wide registry of channel and pattern
// subscriptions.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[string]*Subscriber
	patterns map[string]map[string]*Subscriber
}

func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]map[string]*Subscriber),
		patterns: make(map[string]map[string]*Subscriber),
	}
}

// Subscribe registers id (a connection identity) on channel, creating
// its Subscriber mailbox on first use.
func (h *Hub) Subscribe(id, channel string, capacity int) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.channels[channel]
	if !ok {
		set = make(map[string]*Subscriber)
		h.channels[channel] = set
	}
	sub, ok := set[id]
	if !ok {
		sub = newSubscriber(id, capacity)
		set[id] = sub
	}
	return sub
}

// PSubscribe registers id on a glob pattern (*, ?, [abc]), matched with
// the standard library's path.Match, so no third-party glob library is
// wired here; unlike Redis globs, path.Match's * and ? do not match '/'.
func (h *Hub) PSubscribe(id, pattern string, capacity int) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.patterns[pattern]
	if !ok {
		set = make(map[string]*Subscriber)
		h.patterns[pattern] = set
	}
	sub, ok := set[id]
	if !ok {
		sub = newSubscriber(id, capacity)
		set[id] = sub
	}
	return sub
}

func (h *Hub) Unsubscribe(id, channel string) (remaining int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.channels[channel]
	if !ok {
		return 0
	}
	delete(set, id)
	if len(set) == 0 {
		delete(h.channels, channel)
	}
	return len(set)
}

func (h *Hub) PUnsubscribe(id, pattern string) (remaining int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.patterns[pattern]
	if !ok {
		return 0
	}
	delete(set, id)
	if len(set) == 0 {
		delete(h.patterns, pattern)
	}
	return len(set)
}

// UnsubscribeAll removes id from every channel and pattern it holds,
// called on connection close.
func (h *Hub) UnsubscribeAll(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch, set := range h.channels {
		delete(set, id)
		if len(set) == 0 {
			delete(h.channels, ch)
		}
	}
	for pat, set := range h.patterns {
		delete(set, id)
		if len(set) == 0 {
			delete(h.patterns, pat)
		}
	}
}

// Publish delivers payload to every literal subscriber of channel and
// every pattern subscriber whose pattern matches it, non-blocking per
// subscriber (a full mailbox drops the message rather than stalling
// the publisher — consistent with spec.md §4.6's non-blocking
// consumer policy). Returns the count of receivers, PUBLISH's integer
// reply.
func (h *Hub) Publish(channel, payload string) int {
	h.mu.RLock()
	var literal []*Subscriber
	if set, ok := h.channels[channel]; ok {
		literal = snapshot(set)
	}
	var matched []struct {
		sub     *Subscriber
		pattern string
	}
	for pattern, set := range h.patterns {
		if ok, _ := path.Match(pattern, channel); ok {
			for _, sub := range snapshot(set) {
				matched = append(matched, struct {
					sub     *Subscriber
					pattern string
				}{sub, pattern})
			}
		}
	}
	h.mu.RUnlock()

	count := 0
	for _, sub := range literal {
		if deliver(sub, Message{Channel: channel, Payload: payload}) {
			count++
		}
	}
	for _, m := range matched {
		if deliver(m.sub, Message{Channel: channel, Pattern: m.pattern, Payload: payload}) {
			count++
		}
	}
	return count
}

func deliver(sub *Subscriber, msg Message) bool {
	select {
	case sub.ch <- msg:
		return true
	default:
		return false
	}
}

func snapshot(set map[string]*Subscriber) []*Subscriber {
	out := make([]*Subscriber, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	return out
}

// ChannelsMatching returns every currently-subscribed literal channel
// matching pattern, for PUBSUB CHANNELS [pattern].
func (h *Hub) ChannelsMatching(pattern string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.channels))
	for ch := range h.channels {
		if pattern == "" || pattern == "*" {
			out = append(out, ch)
			continue
		}
		if ok, _ := path.Match(pattern, ch); ok {
			out = append(out, ch)
		}
	}
	sort.Strings(out)
	return out
}

// NumSub reports the literal subscriber count for each requested
// channel, for PUBSUB NUMSUB.
func (h *Hub) NumSub(channels []string) map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(channels))
	for _, ch := range channels {
		out[ch] = len(h.channels[ch])
	}
	return out
}

// NumPat reports the total number of distinct patterns subscribed to
// process-wide, for PUBSUB NUMPAT.
func (h *Hub) NumPat() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.patterns)
}
