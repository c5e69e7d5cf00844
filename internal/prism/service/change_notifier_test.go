package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismwall/prismd/internal/prism/service"
	"github.com/prismwall/prismd/internal/prism/wallpaper"
)

func TestChangeNotifier_StateMachine(t *testing.T) {
	r := wallpaper.NewResolver()
	n := service.NewChangeNotifier(r)
	ctx := context.Background()

	assert.False(t, n.Subscribed())

	a := n.Subscribe(ctx)
	b := n.Subscribe(ctx)
	assert.True(t, n.Subscribed())
	assert.Equal(t, 1, r.Observers())

	a.Close()
	assert.True(t, n.Subscribed())

	b.Close()
	assert.False(t, n.Subscribed())
	assert.Zero(t, r.Observers())

	b.Close() // idempotent
}

func TestChangeNotifier_CancelUnregisters(t *testing.T) {
	r := wallpaper.NewResolver()
	n := service.NewChangeNotifier(r)
	ctx, cancel := context.WithCancel(context.Background())

	sub := n.Subscribe(ctx)
	cancel()

	require.Eventually(t, func() bool { return !n.Subscribed() }, time.Second, time.Millisecond)
	assert.Zero(t, r.Observers())
	_, ok := <-sub.C()
	assert.False(t, ok)
}

func TestChangeNotifier_BurstConflates(t *testing.T) {
	r := wallpaper.NewResolver()
	n := service.NewChangeNotifier(r)
	sub := n.Subscribe(context.Background())
	defer sub.Close()

	for range 5 {
		r.NotifyChange()
	}

	select {
	case <-sub.C():
	case <-time.After(time.Second):
		t.Fatal("no change signal")
	}
	select {
	case <-sub.C():
		t.Fatal("burst was not conflated")
	default:
	}
}

func TestChangeNotifier_ChangesSequence(t *testing.T) {
	r := wallpaper.NewResolver()
	n := service.NewChangeNotifier(r)

	got := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range n.Changes(context.Background()) {
			got++
			if got == 2 {
				return
			}
		}
	}()

	require.Eventually(t, n.Subscribed, time.Second, time.Millisecond)
	r.NotifyChange()
	require.Eventually(t, func() bool {
		r.NotifyChange()
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, got)
	assert.False(t, n.Subscribed())
}

func TestChangeNotifier_NoSubscribersIsNoop(t *testing.T) {
	r := wallpaper.NewResolver()
	_ = service.NewChangeNotifier(r)
	assert.NotPanics(t, r.NotifyChange)
}
