package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishFansOutToAllConsumers(t *testing.T) {
	b := New()
	aof := b.Register("aof", 4, true)
	repl := b.Register("repl", 4, false)

	b.Publish(Event{DBIndex: 0, Args: []string{"SET", "k", "v"}})

	require.Equal(t, 1, aof.Backlog())
	require.Equal(t, 1, repl.Backlog())
	ev := <-aof.Events()
	require.Equal(t, []string{"SET", "k", "v"}, ev.Args)
}

func TestNonBlockingConsumerDropsWhenFull(t *testing.T) {
	b := New()
	notif := b.Register("notif", 1, false)

	b.Publish(Event{Args: []string{"A"}})
	require.True(t, notif.AtHighWaterMark())
	// second publish must not block since notif.Blocking == false.
	b.Publish(Event{Args: []string{"B"}})
	require.Equal(t, 1, notif.Backlog())
}

func TestPublishTxnSharesSequence(t *testing.T) {
	b := New()
	aof := b.Register("aof", 8, true)

	b.PublishTxn(0, [][]string{{"SET", "a", "1"}, {"SET", "b", "2"}})

	ev1 := <-aof.Events()
	ev2 := <-aof.Events()
	require.Equal(t, ev1.TxnSeq, ev2.TxnSeq)
	require.NotZero(t, ev1.TxnSeq)
}
