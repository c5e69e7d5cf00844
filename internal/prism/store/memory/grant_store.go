package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/prismwall/prismd/internal/prism/store"
	"github.com/prismwall/prismd/internal/prism/types"
)

// GrantStore keeps grants in a map. It is intended for tests and dev.
type GrantStore struct {
	mu     sync.RWMutex
	grants map[string]types.CallerGrant
	writes int
	err    error
}

func NewGrantStore(seed ...types.CallerGrant) *GrantStore {
	s := &GrantStore{grants: make(map[string]types.CallerGrant, len(seed))}
	for _, g := range seed {
		s.grants[g.Identity] = g
	}
	return s
}

func (s *GrantStore) Get(_ context.Context, identity string) (types.CallerGrant, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return types.CallerGrant{}, false, s.fail()
	}
	g, ok := s.grants[identity]
	return g, ok, nil
}

func (s *GrantStore) Upsert(_ context.Context, g types.CallerGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.fail()
	}
	s.grants[g.Identity] = g
	s.writes++
	return nil
}

func (s *GrantStore) List(_ context.Context) ([]types.CallerGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.fail()
	}
	out := make([]types.CallerGrant, 0, len(s.grants))
	for _, g := range s.grants {
		out = append(out, g)
	}
	return out, nil
}

// Writes returns how many Upsert calls succeeded.  Test-only helper.
func (s *GrantStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Len returns the number of grant rows.  Test-only helper.
func (s *GrantStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.grants)
}

// FailWith makes every later call return err wrapped in store.ErrStorage.
// Passing nil heals the store.  Test-only helper.
func (s *GrantStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *GrantStore) fail() error {
	return errors.Join(store.ErrStorage, s.err)
}
