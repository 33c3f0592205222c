package liveview

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// SessionStore persists one anonymous session id per client. The id is the
// only identity a guest has: losing the file means starting over as a new
// guest, which is the intended behavior for a link-based app.
type SessionStore struct {
	path string
}

// NewSessionStore builds a store writing to the given file path.
func NewSessionStore(path string) (*SessionStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("session file path required")
	}
	return &SessionStore{path: path}, nil
}

// LoadOrCreate returns the stored session id, minting and persisting a fresh
// one when none exists or the stored value is unreadable.
func (s *SessionStore) LoadOrCreate() (string, error) {
	raw, err := os.ReadFile(s.path)
	if err == nil {
		id := strings.TrimSpace(string(raw))
		if _, parseErr := uuid.Parse(id); parseErr == nil {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("reading session file: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return "", fmt.Errorf("creating session dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("writing session file: %w", err)
	}
	return id, nil
}
