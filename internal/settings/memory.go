package settings

import (
	"context"
	"sync"
)

// MemoryStore keeps settings for the life of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	settings *Settings
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(ctx context.Context) (*Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings.clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, s *Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s.clone()
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = nil
	return nil
}
