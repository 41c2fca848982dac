// Package file stores settings as a JSON document on disk. Writes go to a
// temporary file that is renamed over the target.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gonkalabs/safeguard-go/internal/settings"
)

type store struct {
	path string
	mu   sync.Mutex
}

// New returns a Store backed by the file at path. The file and its directory
// are created on first Put.
func New(path string) settings.Store {
	return &store{path: path}
}

func (s *store) Get(_ context.Context) (settings.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return settings.Settings{}, settings.ErrNotFound
	}
	if err != nil {
		return settings.Settings{}, fmt.Errorf("settings/file: read: %w", err)
	}
	v, err := settings.Decode(raw)
	if err != nil {
		return settings.Settings{}, fmt.Errorf("settings/file: decode %s: %w", s.path, err)
	}
	return v, nil
}

func (s *store) Put(_ context.Context, v settings.Settings) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("settings/file: marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("settings/file: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return fmt.Errorf("settings/file: temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("settings/file: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("settings/file: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("settings/file: rename: %w", err)
	}
	return nil
}
