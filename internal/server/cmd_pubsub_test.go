package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPubSubPublishNumSub(t *testing.T) {
	srv := newTestServer()
	sub := srv.PubSub.Subscribe("client1", "news", 4)
	defer srv.PubSub.UnsubscribeAll("client1")

	reply, _ := srv.exec("PUBLISH", "news", "hello")
	require.Equal(t, int64(1), reply.Int)

	msg := <-sub.Messages()
	require.Equal(t, "hello", msg.Payload)

	reply, _ = srv.exec("PUBSUB", "NUMSUB", "news")
	require.Len(t, reply.Array, 2)
	require.Equal(t, "news", reply.Array[0].Str)
	require.Equal(t, int64(1), reply.Array[1].Int)
}

func TestPubSubChannelsAndNumPat(t *testing.T) {
	srv := newTestServer()
	srv.PubSub.Subscribe("c1", "chat:room1", 4)
	defer srv.PubSub.UnsubscribeAll("c1")

	reply, _ := srv.exec("PUBSUB", "CHANNELS", "chat:*")
	require.Len(t, reply.Array, 1)

	reply, _ = srv.exec("PUBSUB", "NUMPAT")
	require.Equal(t, int64(0), reply.Int)
}
