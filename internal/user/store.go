// Package user loads and persists reminder recipients from users.json.
package user

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nhle/mail-assistant/internal/model"
)

// Store holds the user records backed by a JSON array file. Dates are
// serialized as ISO-8601 strings by encoding/json's time handling.
type Store struct {
	path string

	mu    sync.Mutex
	users []model.User
}

// NewStore loads users.json at path. A missing file yields an empty
// store; a corrupt file is an error, since silently dropping every user
// would disable all reminders.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading users file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &s.users); err != nil {
		return nil, fmt.Errorf("parsing users file %s: %w", path, err)
	}

	return s, nil
}

// Users returns a copy of all user records.
func (s *Store) Users() []model.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.User, len(s.users))
	copy(out, s.users)
	return out
}

// Get returns the user with the given id.
func (s *Store) Get(id string) (*model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.users {
		if s.users[i].ID == id {
			u := s.users[i]
			return &u, true
		}
	}
	return nil, false
}

// FindByEmail returns the user whose address matches addr,
// case-insensitively.
func (s *Store) FindByEmail(addr string) (*model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr = strings.TrimSpace(addr)
	for i := range s.users {
		if s.users[i].MatchesEmail(addr) {
			u := s.users[i]
			return &u, true
		}
	}
	return nil, false
}

// Upsert inserts or replaces a user record and persists the file.
func (s *Store) Upsert(u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i := range s.users {
		if s.users[i].ID == u.ID {
			s.users[i] = u
			replaced = true
			break
		}
	}
	if !replaced {
		s.users = append(s.users, u)
	}

	return s.saveLocked()
}

// saveLocked writes the user array atomically (temp file + rename).
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.users, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding users: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dir, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing users file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing users file: %w", err)
	}

	return nil
}
