package acl

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPasswordThenVerifyRoundTrips(t *testing.T) {
	encoded, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)

	ok, err := VerifyPassword("correct horse battery staple", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong password", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthenticateRejectsDisabledUser(t *testing.T) {
	s := NewStore()
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	s.SetUser(&User{Name: "bob", Enabled: false, PasswordHash: hash})

	_, ok := s.Authenticate("bob", "pw")
	assert.False(t, ok)
}

func TestAuthenticateAcceptsNoPassUser(t *testing.T) {
	s := NewStore()
	s.SetUser(&User{Name: "anon", Enabled: true, NoPass: true})

	_, ok := s.Authenticate("anon", "anything")
	assert.True(t, ok)
}

func TestCanRunCommandDenyAlwaysWins(t *testing.T) {
	u := &User{Rules: []Rule{"+@all", "-FLUSHALL", "+FLUSHALL"}}
	assert.False(t, u.CanRunCommand("FLUSHALL"), "a deny anywhere in the rule list rejects, even if an allow follows it")
	assert.True(t, u.CanRunCommand("GET"))

	u2 := &User{Rules: []Rule{"+@all", "-FLUSHALL"}}
	assert.False(t, u2.CanRunCommand("FLUSHALL"))
	assert.True(t, u2.CanRunCommand("GET"))

	u3 := &User{}
	assert.False(t, u3.CanRunCommand("GET"), "no rules at all defaults to deny")
}

func TestCanAccessKeyRespectsPatterns(t *testing.T) {
	u := &User{Rules: []Rule{"~cache:*"}}
	assert.True(t, u.CanAccessKey("cache:1"))
	assert.False(t, u.CanAccessKey("session:1"))

	unrestricted := &User{Rules: []Rule{"+@all"}}
	assert.True(t, unrestricted.CanAccessKey("anything"))
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")

	s := NewStore()
	hash, err := HashPassword("pw")
	require.NoError(t, err)
	s.SetUser(&User{Name: "alice", Enabled: true, PasswordHash: hash, Rules: []Rule{"+@all", "~*"}})
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	u, ok := loaded.GetUser("alice")
	require.True(t, ok)
	assert.True(t, u.Enabled)
	assert.Equal(t, []Rule{"+@all", "~*"}, u.Rules)

	_, authOK := loaded.Authenticate("alice", "pw")
	assert.True(t, authOK)
}

func TestLoadMissingFileReturnsEmptyStore(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Empty(t, s.ListUsers())
}
