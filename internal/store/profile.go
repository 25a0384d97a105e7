package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"cachet/internal/domain"
)

const profileFilename = "profile.json"

// Profile is the client-side account cache: enough to reconnect and to
// address yourself, never any key material.
type Profile struct {
	ServerURL   string        `json:"server_url"`
	UserID      domain.UserID `json:"user_id"`
	Username    string        `json:"username"`
	DisplayName string        `json:"display_name"`
	Algorithm   string        `json:"algorithm"`
	Token       string        `json:"token"`
}

// ProfileStore persists the profile in the client home directory.
type ProfileStore struct {
	dir string
	mu  sync.Mutex
}

// NewProfileStore returns a ProfileStore rooted at dir.
func NewProfileStore(dir string) *ProfileStore {
	return &ProfileStore{dir: dir}
}

// Save writes the profile.
func (s *ProfileStore) Save(p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, profileFilename), raw, 0o600)
}

// Load reads the profile. The second return is false when none exists yet.
func (s *ProfileStore) Load() (Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(filepath.Join(s.dir, profileFilename))
	if errors.Is(err, os.ErrNotExist) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, err
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, false, err
	}
	return p, true, nil
}
