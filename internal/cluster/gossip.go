package cluster

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// GossipMessage is the compact node summary spec.md §4.11 describes
// nodes exchanging periodically.
type GossipMessage struct {
	From     string     `json:"from"`
	Nodes    []NodeInfo `json:"nodes"`
	TagEpochs map[string]uint64 `json:"tag_epochs,omitempty"`
}

// Gossiper signs and verifies gossip payloads with HMAC-SHA256 over a
// configured shared secret, dropping anything unverified (spec.md
// §4.11: "Messages are authenticated with HMAC-SHA256 over a
// configured shared secret; unknown or unverified messages are
// dropped").
type Gossiper struct {
	secret []byte
}

func NewGossiper(secret []byte) *Gossiper {
	return &Gossiper{secret: secret}
}

// Sign serializes msg and appends an HMAC-SHA256 tag, producing the
// wire payload to send to a peer.
func (g *Gossiper) Sign(msg GossipMessage) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("cluster: encoding gossip message: %w", err)
	}
	mac := hmac.New(sha256.New, g.secret)
	mac.Write(body)
	tag := mac.Sum(nil)
	return append(tag, body...), nil
}

// Verify checks payload's HMAC tag and, if valid, decodes the message.
// Any failure (short payload, bad tag, malformed body) is reported as
// an error so the caller drops the message, never panics on it.
func (g *Gossiper) Verify(payload []byte) (GossipMessage, error) {
	const tagLen = sha256.Size
	if len(payload) < tagLen {
		return GossipMessage{}, fmt.Errorf("cluster: gossip payload too short")
	}
	tag, body := payload[:tagLen], payload[tagLen:]

	mac := hmac.New(sha256.New, g.secret)
	mac.Write(body)
	expected := mac.Sum(nil)
	if !hmac.Equal(tag, expected) {
		return GossipMessage{}, fmt.Errorf("cluster: gossip message failed authentication")
	}

	var msg GossipMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return GossipMessage{}, fmt.Errorf("cluster: decoding gossip message: %w", err)
	}
	return msg, nil
}
