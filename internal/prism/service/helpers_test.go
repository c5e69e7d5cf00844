package service_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prismwall/prismd/internal/lane"
	"github.com/prismwall/prismd/internal/logging"
	"github.com/prismwall/prismd/internal/prism/notify"
	"github.com/prismwall/prismd/internal/prism/service"
	"github.com/prismwall/prismd/internal/prism/store/memory"
	"github.com/prismwall/prismd/internal/prism/types"
)

const selfID = "io.prismwall.prismd"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// countingStore records every call that reaches the grant store.
type countingStore struct {
	*memory.GrantStore
	calls atomic.Int32
}

func (s *countingStore) Get(ctx context.Context, id string) (types.CallerGrant, bool, error) {
	s.calls.Add(1)
	return s.GrantStore.Get(ctx, id)
}

func (s *countingStore) Upsert(ctx context.Context, g types.CallerGrant) error {
	s.calls.Add(1)
	return s.GrantStore.Upsert(ctx, g)
}

func (s *countingStore) List(ctx context.Context) ([]types.CallerGrant, error) {
	s.calls.Add(1)
	return s.GrantStore.List(ctx)
}

// fakeSource serves a file per slot from a temp dir, or nothing.
type fakeSource struct {
	mu      sync.Mutex
	dir     string
	ids     map[types.Slot]int
	resolve int
}

func newFakeSource(t *testing.T) *fakeSource {
	t.Helper()
	dir := t.TempDir()
	for _, slot := range types.Slots {
		require.NoError(t, os.WriteFile(filepath.Join(dir, slot.String()), []byte("img-"+slot.String()), 0o600))
	}
	return &fakeSource{
		dir: dir,
		ids: map[types.Slot]int{types.SlotSystem: 11, types.SlotLock: 22},
	}
}

func (f *fakeSource) Resolve(_ context.Context, slot types.Slot) (types.ResolvedWallpaper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolve++

	id, ok := f.ids[slot]
	if !ok {
		return types.ResolvedWallpaper{Slot: slot, ID: types.NoWallpaperID}, nil
	}
	fh, err := os.Open(filepath.Join(f.dir, slot.String()))
	if err != nil {
		return types.ResolvedWallpaper{}, err
	}
	return types.ResolvedWallpaper{Slot: slot, ID: id, Content: fh}, nil
}

func (f *fakeSource) clear(slot types.Slot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ids, slot)
}

func (f *fakeSource) resolves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolve
}

type fixture struct {
	lane     *lane.Lane
	grants   *countingStore
	settings *memory.SettingsStore
	sink     *notify.MemorySink
	source   *fakeSource
	flow     *service.ApprovalFlow
	broker   *service.Broker
}

func newFixture(t *testing.T, seed ...types.CallerGrant) *fixture {
	t.Helper()

	l := lane.New(16)
	t.Cleanup(l.Close)

	f := &fixture{
		lane:     l,
		grants:   &countingStore{GrantStore: memory.NewGrantStore(seed...)},
		settings: memory.NewSettingsStore(),
		sink:     notify.NewMemorySink(),
		source:   newFakeSource(t),
	}
	f.flow = service.NewApprovalFlow(
		service.ApprovalConfig{NotificationsEnabled: true},
		f.grants, f.settings, f.sink, l, logging.Nop(),
	)
	f.broker = service.NewBroker(
		service.BrokerConfig{SelfIdentity: selfID, Now: func() time.Time { return fixedNow }},
		f.grants, f.source, f.flow, l, logging.Nop(),
	)
	t.Cleanup(f.broker.Wait)
	return f
}

// posted waits for in-flight prompt posts and returns what reached the sink.
func (f *fixture) posted() []notify.Prompt {
	f.broker.Wait()
	return f.sink.Posted()
}

func ptr(s string) *string { return &s }
