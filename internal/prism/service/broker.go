package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/prismwall/prismd/internal/lane"
	"github.com/prismwall/prismd/internal/prism/store"
	"github.com/prismwall/prismd/internal/prism/types"
)

const (
	// promptTimeout bounds a single approval prompt post.
	promptTimeout = 5 * time.Second
	// maxPendingPrompts caps prompt posts in flight; extra requests are dropped.
	maxPendingPrompts = 8
)

// ErrNoContent covers both a refused open and a slot with nothing to read.
// Callers must not be able to tell the two apart.
var ErrNoContent = errors.New("no wallpaper content")

// Source resolves a slot to its current wallpaper.
type Source interface {
	Resolve(ctx context.Context, slot types.Slot) (types.ResolvedWallpaper, error)
}

// ApprovalRequester posts an approval prompt for a denied caller.
type ApprovalRequester interface {
	Request(ctx context.Context, caller string)
}

type BrokerConfig struct {
	SelfIdentity string
	Now          func() time.Time
}

// Broker decides whether a caller may read the wallpapers. Every decision
// path degrades to deny: nothing past this boundary sees a storage error.
type Broker struct {
	self      string
	grants    store.GrantStore
	source    Source
	approvals ApprovalRequester
	lane      *lane.Lane
	logger    zerolog.Logger
	now       func() time.Time

	prompts  sync.WaitGroup
	inflight *semaphore.Weighted
}

func NewBroker(
	cfg BrokerConfig,
	grants store.GrantStore,
	source Source,
	approvals ApprovalRequester,
	l *lane.Lane,
	logger zerolog.Logger,
) *Broker {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Broker{
		self:      cfg.SelfIdentity,
		grants:    grants,
		source:    source,
		approvals: approvals,
		lane:      l,
		logger:    logger,
		now:       now,
		inflight:  semaphore.NewWeighted(maxPendingPrompts),
	}
}

func (b *Broker) SelfIdentity() string { return b.self }

// Authorize records the access and returns the caller's current grant.
// A nil caller could not be attributed and is always denied. session marks
// the start of a resolution session, which counts as a new request; opens
// within a session only touch last_accessed.
func (b *Broker) Authorize(ctx context.Context, caller *string, session bool) bool {
	if caller == nil {
		return false
	}
	identity := strings.TrimSpace(*caller)
	if identity == "" {
		return false
	}
	if identity == b.self {
		return true
	}

	var grant types.CallerGrant
	err := b.lane.Do(ctx, func(ctx context.Context) error {
		g, err := b.touch(ctx, identity, session)
		grant = g
		return err
	})
	if err != nil {
		b.logger.Warn().Err(err).Str("caller", identity).Msg("grant lookup failed; denying")
		return false
	}

	if !grant.Allowed && grant.RequestCount > 0 && b.approvals != nil {
		b.requestApproval(ctx, identity)
	}

	return grant.Allowed
}

// requestApproval posts the prompt off the decision path. The post outlives
// the caller's request but not promptTimeout.
func (b *Broker) requestApproval(ctx context.Context, identity string) {
	if !b.inflight.TryAcquire(1) {
		b.logger.Warn().Str("caller", identity).Msg("too many pending prompts; dropping")
		return
	}
	b.prompts.Add(1)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), promptTimeout)
	go func() {
		defer b.prompts.Done()
		defer b.inflight.Release(1)
		defer cancel()
		b.approvals.Request(ctx, identity)
	}()
}

// Wait blocks until every prompt post started by Authorize has finished.
func (b *Broker) Wait() { b.prompts.Wait() }

func (b *Broker) touch(ctx context.Context, identity string, session bool) (types.CallerGrant, error) {
	now := b.now().UTC()

	g, ok, err := b.grants.Get(ctx, identity)
	if err != nil {
		return types.CallerGrant{}, err
	}
	switch {
	case !ok:
		g = types.CallerGrant{Identity: identity, Allowed: false, RequestCount: 1}
	case session:
		g.RequestCount++
	}
	g.LastAccessed = now

	if err := b.grants.Upsert(ctx, g); err != nil {
		return types.CallerGrant{}, err
	}
	return g, nil
}

// ResolveAll authorizes caller and resolves both slots. ok is false on deny.
// The caller owns the returned content handles.
func (b *Broker) ResolveAll(ctx context.Context, caller *string) (types.Wallpapers, bool) {
	if !b.Authorize(ctx, caller, true) {
		return types.Wallpapers{}, false
	}

	lock := b.resolve(ctx, types.SlotLock)
	home := b.resolve(ctx, types.SlotSystem)
	return types.Wallpapers{Lock: lock, Home: home}, true
}

func (b *Broker) resolve(ctx context.Context, slot types.Slot) types.ResolvedWallpaper {
	w, err := b.source.Resolve(ctx, slot)
	if err != nil {
		b.logger.Error().Err(err).Stringer("slot", slot).Msg("resolve failed")
		return types.ResolvedWallpaper{Slot: slot, ID: types.NoWallpaperID}
	}
	return w
}

// Rows builds the collection result: one row per slot, or none on deny.
func (b *Broker) Rows(ctx context.Context, caller *string) []types.WallpaperRow {
	session := uuid.NewString()
	log := b.logger.With().Str("session", session).Logger()

	walls, ok := b.ResolveAll(ctx, caller)
	if !ok {
		log.Debug().Msg("collection denied")
		return nil
	}
	defer walls.Close()

	byslot := map[types.Slot]types.ResolvedWallpaper{
		types.SlotLock:   walls.Lock,
		types.SlotSystem: walls.Home,
	}

	rows := make([]types.WallpaperRow, 0, len(types.Slots))
	for _, slot := range types.Slots {
		w := byslot[slot]
		row := types.WallpaperRow{
			RowID: int(slot),
			Type:  slot.String(),
			Key:   w.ID,
		}
		if w.HasContent() {
			uri := WallpaperURI(slot)
			row.URI = &uri
		}
		rows = append(rows, row)
	}

	log.Debug().Int("rows", len(rows)).Msg("collection resolved")
	return rows
}

// OpenSlotContent re-runs authorization on every call since a grant may
// change between listing and opening.
func (b *Broker) OpenSlotContent(ctx context.Context, caller *string, slot types.Slot) (io.ReadCloser, error) {
	if !slot.Valid() {
		return nil, fmt.Errorf("%w: %d", types.ErrInvalidSlot, int(slot))
	}
	if !b.Authorize(ctx, caller, false) {
		return nil, ErrNoContent
	}

	w := b.resolve(ctx, slot)
	if !w.HasContent() {
		return nil, ErrNoContent
	}
	return w.Content, nil
}

// WallpaperURI is the item path a row points at.
func WallpaperURI(slot types.Slot) string {
	return fmt.Sprintf("/v1/wallpapers/%d", int(slot))
}
