package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/prismwall/prismd/internal/lane"
	"github.com/prismwall/prismd/internal/prism/store"
	"github.com/prismwall/prismd/internal/prism/types"
)

var ErrInvalidIdentity = errors.New("caller identity is required")

// GrantFeed wraps a GrantStore and pushes a fresh list to watchers after
// every successful Upsert.
type GrantFeed struct {
	store.GrantStore
	logger zerolog.Logger

	mu       sync.Mutex
	watchers map[chan []types.CallerGrant]struct{}
}

func NewGrantFeed(inner store.GrantStore, logger zerolog.Logger) *GrantFeed {
	return &GrantFeed{
		GrantStore: inner,
		logger:     logger,
		watchers:   make(map[chan []types.CallerGrant]struct{}),
	}
}

func (f *GrantFeed) Upsert(ctx context.Context, g types.CallerGrant) error {
	if err := f.GrantStore.Upsert(ctx, g); err != nil {
		return err
	}
	f.publish(ctx)
	return nil
}

// Watch yields the current list, then the latest list after each change.
// Slow readers only see the most recent list. The channel is closed when ctx
// is done.
func (f *GrantFeed) Watch(ctx context.Context) <-chan []types.CallerGrant {
	ch := make(chan []types.CallerGrant, 1)

	f.mu.Lock()
	f.watchers[ch] = struct{}{}
	f.mu.Unlock()

	if list, err := sortedGrants(ctx, f.GrantStore); err == nil {
		f.mu.Lock()
		if _, ok := f.watchers[ch]; ok {
			offer(ch, list)
		}
		f.mu.Unlock()
	} else {
		f.logger.Warn().Err(err).Msg("initial grant list")
	}

	context.AfterFunc(ctx, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.watchers, ch)
		close(ch)
	})

	return ch
}

func (f *GrantFeed) publish(ctx context.Context) {
	f.mu.Lock()
	n := len(f.watchers)
	f.mu.Unlock()
	if n == 0 {
		return
	}

	list, err := sortedGrants(ctx, f.GrantStore)
	if err != nil {
		f.logger.Warn().Err(err).Msg("grant list after upsert")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.watchers {
		offer(ch, list)
	}
}

// offer replaces whatever is buffered in ch with v.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func sortedGrants(ctx context.Context, s store.GrantStore) ([]types.CallerGrant, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(list, func(a, b types.CallerGrant) int {
		return strings.Compare(a.Identity, b.Identity)
	})
	return list, nil
}

// GrantService is the admin surface over grants: listing and flipping access
// for callers that have already asked.
type GrantService struct {
	grants store.GrantStore
	lane   *lane.Lane
	logger zerolog.Logger
}

func NewGrantService(grants store.GrantStore, l *lane.Lane, logger zerolog.Logger) *GrantService {
	return &GrantService{grants: grants, lane: l, logger: logger}
}

func (s *GrantService) List(ctx context.Context) ([]types.CallerGrant, error) {
	return sortedGrants(ctx, s.grants)
}

// SetAccess sets allowed on an existing grant. found is false when identity
// has never requested access; no row is created for it.
func (s *GrantService) SetAccess(ctx context.Context, identity string, allowed bool) (g types.CallerGrant, found bool, err error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return types.CallerGrant{}, false, ErrInvalidIdentity
	}

	err = s.lane.Do(ctx, func(ctx context.Context) error {
		cur, ok, err := s.grants.Get(ctx, identity)
		if err != nil || !ok {
			return err
		}
		found = true
		cur.Allowed = allowed
		g = cur
		return s.grants.Upsert(ctx, cur)
	})
	if err != nil {
		return types.CallerGrant{}, false, err
	}

	if found {
		s.logger.Info().Str("caller", identity).Bool("allowed", allowed).Msg("grant updated")
	}
	return g, found, nil
}
