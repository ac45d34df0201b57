package config

import (
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyStoreSortsByDescendingPriority(t *testing.T) {
	s := NewPolicyStore(nil)
	s.Set(CachePolicy{Name: "low", Priority: 1})
	s.Set(CachePolicy{Name: "high", Priority: 10})
	s.Set(CachePolicy{Name: "mid", Priority: 5})

	names := s.Names()
	require.Equal(t, []string{"high", "mid", "low"}, names)
}

func TestPolicyStoreSetReplacesExistingByName(t *testing.T) {
	s := NewPolicyStore(nil)
	s.Set(CachePolicy{Name: "p", Priority: 1, KeyPattern: "a:*"})
	s.Set(CachePolicy{Name: "p", Priority: 1, KeyPattern: "b:*"})

	require.Len(t, s.All(), 1)
	p, ok := s.Get("p")
	require.True(t, ok)
	assert.Equal(t, "b:*", p.KeyPattern)
}

func TestPolicyStoreSetReportsPrewarmDisabled(t *testing.T) {
	s := NewPolicyStore(nil)
	s.Set(CachePolicy{Name: "p", Prewarm: true})

	disabled := s.Set(CachePolicy{Name: "p", Prewarm: false})
	assert.True(t, disabled)
}

func TestPolicyStoreDel(t *testing.T) {
	s := NewPolicyStore([]CachePolicy{{Name: "p", Prewarm: true}})

	removed, hadPrewarm := s.Del("p")
	assert.True(t, removed)
	assert.True(t, hadPrewarm)

	removed, _ = s.Del("p")
	assert.False(t, removed)
}

func TestPolicyStoreMatchReturnsHighestPriorityMatch(t *testing.T) {
	s := NewPolicyStore([]CachePolicy{
		{Name: "generic", KeyPattern: "page:*", Priority: 1},
		{Name: "specific", KeyPattern: "page:home", Priority: 10},
	})

	matcher := func(pattern, key string) bool {
		ok, _ := path.Match(pattern, key)
		return ok
	}

	p, ok := s.Match("page:home", matcher)
	require.True(t, ok)
	assert.Equal(t, "specific", p.Name)

	p, ok = s.Match("page:other", matcher)
	require.True(t, ok)
	assert.Equal(t, "generic", p.Name)

	_, ok = s.Match("unrelated", matcher)
	assert.False(t, ok)
}
