package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismwall/prismd/internal/lane"
	"github.com/prismwall/prismd/internal/logging"
	"github.com/prismwall/prismd/internal/prism/schedule"
	"github.com/prismwall/prismd/internal/prism/service"
	"github.com/prismwall/prismd/internal/prism/wallpaper"
)

func TestWallpaperJob_EmitsAndReschedules(t *testing.T) {
	l := lane.New(4)
	t.Cleanup(l.Close)
	sched := schedule.New(logging.Nop())
	t.Cleanup(sched.Close)

	fire := make(chan struct{})
	trigger := schedule.TriggerFunc(func(ctx context.Context) error {
		select {
		case <-fire:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	r := wallpaper.NewResolver()
	n := service.NewChangeNotifier(r)
	sub := n.Subscribe(context.Background())
	defer sub.Close()

	job := service.NewWallpaperJob(sched, trigger, r, l, logging.Nop())
	require.NoError(t, job.Schedule())
	require.NoError(t, job.Schedule()) // replaces, still one
	assert.True(t, sched.Pending(service.WallpaperJobName))

	// Let the replaced instance observe cancellation before firing.
	time.Sleep(20 * time.Millisecond)

	for range 2 {
		fire <- struct{}{}
		select {
		case <-sub.C():
		case <-time.After(time.Second):
			t.Fatal("job did not emit a change")
		}
		require.Eventually(t, func() bool { return sched.Pending(service.WallpaperJobName) },
			time.Second, 5*time.Millisecond)
	}
}

func TestWallpaperJob_RunsWithoutSubscribers(t *testing.T) {
	l := lane.New(4)
	t.Cleanup(l.Close)
	sched := schedule.New(logging.Nop())
	t.Cleanup(sched.Close)

	fired := make(chan struct{}, 1)
	fired <- struct{}{}
	trigger := schedule.TriggerFunc(func(ctx context.Context) error {
		select {
		case <-fired:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	r := wallpaper.NewResolver()
	job := service.NewWallpaperJob(sched, trigger, r, l, logging.Nop())
	require.NoError(t, job.Schedule())

	// One firing, then it waits again.
	require.Eventually(t, func() bool { return len(fired) == 0 && sched.Pending(service.WallpaperJobName) },
		time.Second, 5*time.Millisecond)
}
