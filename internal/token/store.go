// Package token stores one OAuth token per user as a JSON file.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"

	"github.com/user/calbot/internal/types"
)

// Store is a file-backed token store. Each user's token lives at
// <dir>/<userID>.json.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a Store rooted at the given directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(user types.UserID) string {
	return filepath.Join(s.dir, string(user)+".json")
}

// Load returns the stored token for the user, or types.ErrNoToken if none
// has been saved.
func (s *Store) Load(_ context.Context, user types.UserID) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(user))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.ErrNoToken
		}
		return nil, fmt.Errorf("read token: %w", err)
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}
	return tok, nil
}

// Save persists the token, replacing any previous one for the user.
func (s *Store) Save(_ context.Context, user types.UserID, tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}

	// Atomic write: write to temp file then rename
	tmp := s.path(user) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp token: %w", err)
	}
	if err := os.Rename(tmp, s.path(user)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp token: %w", err)
	}
	return nil
}
