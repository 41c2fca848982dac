package memory

import (
	"context"
	"sync"

	"github.com/gonkalabs/safeguard-go/internal/settings"
)

type store struct {
	mu  sync.Mutex
	val *settings.Settings
}

// NewInMemory returns a Store that keeps settings in process memory.
func NewInMemory() settings.Store {
	return &store{}
}

func (s *store) Get(_ context.Context) (settings.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.val == nil {
		return settings.Settings{}, settings.ErrNotFound
	}
	return *s.val, nil
}

func (s *store) Put(_ context.Context, v settings.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.val = &v
	return nil
}

func (s *store) reset() {
	s.mu.Lock()
	s.val = nil
	s.mu.Unlock()
}
