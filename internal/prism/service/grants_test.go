package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismwall/prismd/internal/lane"
	"github.com/prismwall/prismd/internal/logging"
	"github.com/prismwall/prismd/internal/prism/service"
	"github.com/prismwall/prismd/internal/prism/store/memory"
	"github.com/prismwall/prismd/internal/prism/types"
)

func TestGrantService_SetAccess(t *testing.T) {
	l := lane.New(4)
	t.Cleanup(l.Close)
	st := memory.NewGrantStore(types.CallerGrant{Identity: "b.app", RequestCount: 2}, types.CallerGrant{Identity: "a.app", RequestCount: 1})
	svc := service.NewGrantService(st, l, logging.Nop())
	ctx := context.Background()

	g, found, err := svc.SetAccess(ctx, "b.app", true)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, g.Allowed)
	assert.Equal(t, 2, g.RequestCount)

	_, found, err = svc.SetAccess(ctx, "c.app", true)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 2, st.Len())

	_, _, err = svc.SetAccess(ctx, "", true)
	assert.ErrorIs(t, err, service.ErrInvalidIdentity)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a.app", list[0].Identity)
	assert.Equal(t, "b.app", list[1].Identity)
}

func TestGrantFeed_WatchSeesUpserts(t *testing.T) {
	feed := service.NewGrantFeed(memory.NewGrantStore(), logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	ch := feed.Watch(ctx)
	assert.Empty(t, recv(t, ch))

	require.NoError(t, feed.Upsert(ctx, types.CallerGrant{Identity: "x", RequestCount: 1}))
	require.NoError(t, feed.Upsert(ctx, types.CallerGrant{Identity: "y", RequestCount: 1}))

	// Conflated: only the latest list is buffered.
	list := recv(t, ch)
	require.Len(t, list, 2)
	assert.Equal(t, "x", list[0].Identity)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func recv(t *testing.T, ch <-chan []types.CallerGrant) []types.CallerGrant {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("no grant list received")
		return nil
	}
}
