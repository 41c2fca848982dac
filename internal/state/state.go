// Package state holds the process-wide filter state: the current settings
// and whether the filter is switched on. It is the single writer of the
// settings store.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gonkalabs/safeguard-go/internal/settings"
)

// State is safe for concurrent use.
type State struct {
	store settings.Store

	mu       sync.RWMutex
	settings settings.Settings
	active   bool
}

// New loads the settings from store. The filter starts active.
func New(ctx context.Context, store settings.Store) (*State, error) {
	s, err := settings.Load(ctx, store)
	if err != nil {
		return nil, fmt.Errorf("state: load settings: %w", err)
	}
	return &State{store: store, settings: s, active: true}, nil
}

// Settings returns the current settings.
func (s *State) Settings() settings.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update applies fn to the settings and persists the result. The in-memory
// copy only changes once the store accepted the write.
func (s *State) Update(ctx context.Context, fn func(settings.Settings) settings.Settings) (settings.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(s.settings)
	if err := s.store.Put(ctx, next); err != nil {
		return s.settings, fmt.Errorf("state: save settings: %w", err)
	}
	s.settings = next
	return next, nil
}

// Active reports whether filtering is switched on.
func (s *State) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SetActive switches filtering on or off.
func (s *State) SetActive(on bool) {
	s.mu.Lock()
	s.active = on
	s.mu.Unlock()
	slog.Info("state: filter toggled", "active", on)
}

// Filtering reports whether requests should be filtered at all: the filter
// must be switched on and set up.
func (s *State) Filtering() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active && s.settings.IsSetup
}

// LoadDigest implements credential.Store.
func (s *State) LoadDigest(_ context.Context) (string, error) {
	return s.Settings().Password, nil
}

// SaveDigest implements credential.Store. Storing a credential completes
// setup.
func (s *State) SaveDigest(ctx context.Context, digest string) error {
	_, err := s.Update(ctx, func(cur settings.Settings) settings.Settings {
		cur.Password = digest
		cur.IsSetup = true
		return cur
	})
	return err
}
