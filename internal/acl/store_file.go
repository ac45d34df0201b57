package acl

import (
	"encoding/json"
	"fmt"
	"os"
)

// fileUser mirrors User for JSON persistence (spec.md §6: "ACL users
// file (JSON with Argon2id password hashes)").
type fileUser struct {
	Name         string   `json:"name"`
	Enabled      bool     `json:"enabled"`
	PasswordHash string   `json:"password_hash,omitempty"`
	NoPass       bool     `json:"nopass,omitempty"`
	Rules        []string `json:"rules"`
}

// Save writes every user in s to path as JSON, atomically via a
// temp-file rename, matching the save pattern internal/spldb and
// internal/aof's rewriter already use for this codebase's other
// persisted files.
func (s *Store) Save(path string) error {
	users := s.ListUsers()
	out := make([]fileUser, 0, len(users))
	for _, u := range users {
		rules := make([]string, len(u.Rules))
		for i, r := range u.Rules {
			rules[i] = string(r)
		}
		out = append(out, fileUser{
			Name: u.Name, Enabled: u.Enabled, PasswordHash: u.PasswordHash, NoPass: u.NoPass, Rules: rules,
		})
	}

	body, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("acl: encoding users file: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0600); err != nil {
		return fmt.Errorf("acl: writing users file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("acl: installing users file: %w", err)
	}
	return nil
}

// Load builds a new Store holding the users read from path. A missing
// file is not an error — a fresh node starts with no ACL users beyond
// whatever the caller seeds (e.g. a default superuser).
func Load(path string) (*Store, error) {
	body, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewStore(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("acl: reading users file: %w", err)
	}

	var in []fileUser
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("acl: decoding users file: %w", err)
	}

	s := NewStore()
	for _, fu := range in {
		rules := make([]Rule, len(fu.Rules))
		for i, r := range fu.Rules {
			rules[i] = Rule(r)
		}
		s.SetUser(&User{
			Name: fu.Name, Enabled: fu.Enabled, PasswordHash: fu.PasswordHash, NoPass: fu.NoPass, Rules: rules,
		})
	}
	return s, nil
}
