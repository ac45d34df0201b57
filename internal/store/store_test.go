package store

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSortedSetOrderingAndNaN(t *testing.T) {
	z := NewSortedSet()

	_, err := z.Add("b", 1)
	require.NoError(t, err)
	_, err = z.Add("a", 1)
	require.NoError(t, err)
	_, err = z.Add("c", 0.5)
	require.NoError(t, err)

	_, err = z.Add("x", math.NaN())
	require.ErrorIs(t, err, ErrNaNScore)

	members := z.Range(0, -1)
	require.Len(t, members, 3)
	require.Equal(t, "c", members[0].Member)
	require.Equal(t, "a", members[1].Member) // tie broken lexicographically
	require.Equal(t, "b", members[2].Member)
}

func TestSortedSetRangeByScoreExclusive(t *testing.T) {
	z := NewSortedSet()
	z.Add("a", 1)
	z.Add("b", 2)
	z.Add("c", 3)

	members := z.RangeByScore(ScoreBound{Value: 1, Exclusive: true}, ScoreBound{Inf: 1})
	require.Len(t, members, 2)
	require.Equal(t, "b", members[0].Member)
	require.Equal(t, "c", members[1].Member)
}

func TestStreamIDsStrictlyIncreaseAndClockRegression(t *testing.T) {
	s := NewStream()

	id1 := s.NextID(1000)
	require.NoError(t, s.Append(id1, nil))

	// clock regresses to 900: sequence must still increase from last ID.
	id2 := s.NextID(900)
	require.Equal(t, StreamID{Ms: 1000, Seq: 1}, id2)
	require.NoError(t, s.Append(id2, nil))

	require.Equal(t, 2, s.Len())
}

func TestHllMonotonicCount(t *testing.T) {
	h := NewHll()
	prev := uint64(0)
	for i := 0; i < 1000; i++ {
		h.Add([]byte{byte(i), byte(i >> 8)})
		cur := h.Count()
		require.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestBloomFilterNoFalseNegatives(t *testing.T) {
	bf := NewBloomFilter(1000, 0.01)
	items := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	for _, it := range items {
		bf.Add(it)
	}
	for _, it := range items {
		require.True(t, bf.Test(it))
	}
}

func TestJSONSetAndNumIncrBy(t *testing.T) {
	doc := NewJSONDocument(JSONObject())
	require.NoError(t, SetPath(doc.Root, "$.count", JSONInt(2), ModeCreateMissing))

	_, err := NumIncrBy(doc.Root, "$.missing", 1, true)
	require.ErrorIs(t, err, ErrPathNotExist)

	n, err := NumIncrBy(doc.Root, "$.count", 0.0, true)
	require.NoError(t, err)
	require.True(t, n.IsFlt)
	require.Equal(t, 2.0, n.Float)
}
