// Package identity persists the Agent Identity UUID and refresh token under
// a state directory, the way the Token Manager's two writable files survive
// process restarts.
package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	uuidFileName  = "agent_uuid"
	tokenFileName = "token"
	filePerm      = 0o600
)

// Store is the on-disk home for the Agent Identity UUID and the current
// refresh token. Owned exclusively by the Token Manager; no other component
// reads it after startup.
type Store struct {
	dir string
}

// New returns a Store rooted at dir, creating dir if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// LoadUUID returns the persisted agent UUID, or "" if none exists yet.
func (s *Store) LoadUUID() (string, error) {
	return s.readTrimmed(uuidFileName)
}

// LoadRefreshToken returns the persisted refresh token, or "" if none exists yet.
func (s *Store) LoadRefreshToken() (string, error) {
	return s.readTrimmed(tokenFileName)
}

// SaveUUID writes the agent UUID. The Token Manager calls it after every
// successful Register, so the file holds the UUID the server last assigned;
// the write itself is always atomic.
func (s *Store) SaveUUID(uuid string) error {
	return s.writeAtomic(uuidFileName, uuid)
}

// SaveRefreshToken overwrites the refresh token atomically. Called on every
// Credential Pair rotation.
func (s *Store) SaveRefreshToken(token string) error {
	return s.writeAtomic(tokenFileName, token)
}

func (s *Store) readTrimmed(name string) (string, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return strings.TrimSpace(string(b)), nil
}

// writeAtomic writes to a temp file in the same directory and renames it
// over the target, so a crash mid-write never leaves a torn token behind.
func (s *Store) writeAtomic(name, contents string) error {
	target := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(contents); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file for %s: %w", name, err)
	}
	if err := os.Chmod(tmpPath, filePerm); err != nil {
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("rename %s into place: %w", name, err)
	}
	return nil
}
