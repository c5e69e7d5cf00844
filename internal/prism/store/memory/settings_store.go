package memory

import (
	"context"
	"sync"
)

type SettingsStore struct {
	mu     sync.RWMutex
	values map[string]*string
}

func NewSettingsStore() *SettingsStore {
	return &SettingsStore{values: make(map[string]*string)}
}

func (s *SettingsStore) Get(_ context.Context, key string) (*string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok || v == nil {
		return nil, nil
	}
	out := *v
	return &out, nil
}

func (s *SettingsStore) Set(_ context.Context, key string, value *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == nil {
		s.values[key] = nil
		return nil
	}
	v := *value
	s.values[key] = &v
	return nil
}
