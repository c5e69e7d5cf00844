package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/prismwall/prismd/internal/prism/types"
)

// MinSyncInterval spaces consecutive refreshes.
const MinSyncInterval = 100 * time.Millisecond

type RowSource interface {
	Rows(ctx context.Context, caller *string) []types.WallpaperRow
}

// State is the daemon's own view of the wallpapers and known callers.
type State struct {
	Wallpapers types.WallpapersModel `json:"wallpapers"`
	Grants     []types.CallerGrant   `json:"grants"`
}

// StateSyncer keeps State current. Change signals and manual Sync requests
// are merged and conflated; each round re-reads the collection as the
// daemon's own identity. Triggers that arrive while a refresh is being
// rate limited fold into it.
type StateSyncer struct {
	rows    RowSource
	changes *ChangeNotifier
	grants  *GrantFeed
	self    string
	logger  zerolog.Logger
	now     func() time.Time
	limiter *rate.Limiter

	manual chan struct{}

	mu    sync.RWMutex
	state State
}

func NewStateSyncer(rows RowSource, changes *ChangeNotifier, grants *GrantFeed, self string, logger zerolog.Logger) *StateSyncer {
	return &StateSyncer{
		rows:    rows,
		changes: changes,
		grants:  grants,
		self:    self,
		logger:  logger,
		now:     time.Now,
		limiter: rate.NewLimiter(rate.Every(MinSyncInterval), 1),
		manual:  make(chan struct{}, 1),
	}
}

// Sync asks for a refresh. Requests made while one is queued collapse.
func (s *StateSyncer) Sync() {
	select {
	case s.manual <- struct{}{}:
	default:
	}
}

func (s *StateSyncer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	st.Grants = append([]types.CallerGrant(nil), s.state.Grants...)
	return st
}

// Run refreshes until ctx is done. The first refresh happens immediately.
func (s *StateSyncer) Run(ctx context.Context) error {
	sub := s.changes.Subscribe(ctx)
	defer sub.Close()

	var grants <-chan []types.CallerGrant
	if s.grants != nil {
		grants = s.grants.Watch(ctx)
	}

	s.Sync()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := s.limiter.Wait(ctx); err != nil {
				return nil
			}
			s.drain(sub)
			s.refresh(ctx)
		case <-s.manual:
			if err := s.limiter.Wait(ctx); err != nil {
				return nil
			}
			s.drain(sub)
			s.refresh(ctx)
		case list, ok := <-grants:
			if !ok {
				grants = nil
				continue
			}
			s.mu.Lock()
			s.state.Grants = list
			s.mu.Unlock()
		}
	}
}

// drain drops triggers that arrived while the current one was picked, so a
// burst costs one refresh.
func (s *StateSyncer) drain(sub *Subscription) {
	select {
	case <-s.manual:
	default:
	}
	select {
	case <-sub.C():
	default:
	}
}

func (s *StateSyncer) refresh(ctx context.Context) {
	self := s.self
	model := types.WallpapersModel{LastFetched: s.now().UTC()}

	for _, row := range s.rows.Rows(ctx, &self) {
		switch types.Slot(row.RowID) {
		case types.SlotLock:
			model.Lock = row.URI
		case types.SlotSystem:
			model.System = row.URI
		}
	}

	s.mu.Lock()
	s.state.Wallpapers = model
	s.mu.Unlock()

	s.logger.Debug().Bool("lock", model.Lock != nil).Bool("system", model.System != nil).Msg("wallpapers synced")
}
