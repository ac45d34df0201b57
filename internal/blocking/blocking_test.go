package blocking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWakeOneDeliversToOldestWaiterFIFO(t *testing.T) {
	q := NewQueues()
	h1 := q.Wait("c1", []string{"k"})
	h2 := q.Wait("c2", []string{"k"})

	woke := q.WakeOne("k")
	require.True(t, woke)

	select {
	case key := <-h1.Woken():
		assert.Equal(t, "k", key)
	case <-time.After(time.Second):
		t.Fatal("first waiter was not woken")
	}

	select {
	case <-h2.Woken():
		t.Fatal("second waiter should not have been woken yet")
	default:
	}
}

func TestWakeOneOnEmptyQueueReturnsFalse(t *testing.T) {
	q := NewQueues()
	assert.False(t, q.WakeOne("missing"))
}

func TestCancelRemovesWaiterFromAllKeys(t *testing.T) {
	q := NewQueues()
	h := q.Wait("c1", []string{"a", "b"})
	h.Cancel()

	assert.Equal(t, 0, q.Len("a"))
	assert.Equal(t, 0, q.Len("b"))
	assert.False(t, q.WakeOne("a"))
}

func TestMultiKeyWaiterRemovedFromOtherKeysOnWake(t *testing.T) {
	q := NewQueues()
	h := q.Wait("c1", []string{"a", "b"})

	require.True(t, q.WakeOne("a"))
	select {
	case key := <-h.Woken():
		assert.Equal(t, "a", key)
	default:
		t.Fatal("waiter should have been woken on key a")
	}
	assert.Equal(t, 0, q.Len("b"), "waiter must be removed from key b once woken via key a")
}
