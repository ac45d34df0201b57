package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToLiteralSubscriber(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("conn1", "news", 4)

	n := h.Publish("news", "hello")
	assert.Equal(t, 1, n)

	msg := <-sub.Messages()
	assert.Equal(t, "news", msg.Channel)
	assert.Equal(t, "hello", msg.Payload)
	assert.Empty(t, msg.Pattern)
}

func TestPublishDeliversToPatternSubscriber(t *testing.T) {
	h := NewHub()
	sub := h.PSubscribe("conn1", "news.*", 4)

	n := h.Publish("news.sports", "score")
	assert.Equal(t, 1, n)

	msg := <-sub.Messages()
	assert.Equal(t, "news.sports", msg.Channel)
	assert.Equal(t, "news.*", msg.Pattern)
}

func TestPublishCountsBothLiteralAndPatternReceivers(t *testing.T) {
	h := NewHub()
	h.Subscribe("conn1", "news", 4)
	h.PSubscribe("conn2", "n*", 4)

	assert.Equal(t, 2, h.Publish("news", "x"))
}

func TestUnsubscribeAllRemovesFromEveryChannelAndPattern(t *testing.T) {
	h := NewHub()
	h.Subscribe("conn1", "a", 4)
	h.PSubscribe("conn1", "b*", 4)

	h.UnsubscribeAll("conn1")

	assert.Equal(t, 0, h.Publish("a", "x"))
	assert.Equal(t, 0, h.Publish("b1", "x"))
	assert.Equal(t, 0, h.NumPat())
}

func TestFullMailboxDropsWithoutBlocking(t *testing.T) {
	h := NewHub()
	h.Subscribe("conn1", "c", 1)

	require.Equal(t, 1, h.Publish("c", "one"))
	assert.Equal(t, 0, h.Publish("c", "two"), "second publish should drop, not block, when the mailbox is full")
}

func TestChannelsMatchingFiltersByPattern(t *testing.T) {
	h := NewHub()
	h.Subscribe("conn1", "news.sports", 1)
	h.Subscribe("conn1", "weather", 1)

	assert.ElementsMatch(t, []string{"news.sports"}, h.ChannelsMatching("news.*"))
	assert.ElementsMatch(t, []string{"news.sports", "weather"}, h.ChannelsMatching("*"))
}
