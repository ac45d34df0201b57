package scripting

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadThenGetRoundTrips(t *testing.T) {
	c := NewCache()
	sha := c.Load("return 1")

	src, ok := c.Get(sha)
	require.True(t, ok)
	assert.Equal(t, "return 1", src)
}

func TestGetUnknownShaMisses(t *testing.T) {
	c := NewCache()
	_, ok := c.Get("deadbeef")
	assert.False(t, ok)
}

func TestExistsReportsPerScript(t *testing.T) {
	c := NewCache()
	sha := c.Load("return 1")

	got := c.Exists([]string{sha, "0000000000000000000000000000000000000000"})
	assert.Equal(t, []bool{true, false}, got)
}

func TestFlushClearsCache(t *testing.T) {
	c := NewCache()
	sha := c.Load("return 1")
	c.Flush()

	_, ok := c.Get(sha)
	assert.False(t, ok)
}

func TestSHA1HexIsStableAndLowercase(t *testing.T) {
	h1 := SHA1Hex("return 1")
	h2 := SHA1Hex("return 1")
	assert.Equal(t, h1, h2)
	assert.Equal(t, 40, len(h1))
	assert.Equal(t, strings.ToLower(h1), h1)
}
