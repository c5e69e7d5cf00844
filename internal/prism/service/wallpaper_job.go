package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/prismwall/prismd/internal/lane"
	"github.com/prismwall/prismd/internal/prism/schedule"
)

// WallpaperJobName keys the background change job; the scheduler keeps at
// most one pending instance under it.
const WallpaperJobName = "wallpaper_worker"

type ChangeEmitter interface {
	NotifyChange()
}

// WallpaperJob re-emits a change signal every time its trigger fires and
// then schedules itself again. It runs whether or not anyone is subscribed.
type WallpaperJob struct {
	sched   *schedule.Scheduler
	trigger schedule.Trigger
	emitter ChangeEmitter
	lane    *lane.Lane
	logger  zerolog.Logger
}

func NewWallpaperJob(
	sched *schedule.Scheduler,
	trigger schedule.Trigger,
	emitter ChangeEmitter,
	l *lane.Lane,
	logger zerolog.Logger,
) *WallpaperJob {
	return &WallpaperJob{
		sched:   sched,
		trigger: trigger,
		emitter: emitter,
		lane:    l,
		logger:  logger,
	}
}

// Schedule enqueues the job, replacing a pending instance.
func (j *WallpaperJob) Schedule() error {
	return j.sched.EnqueueUnique(schedule.WorkRequest{
		Name:    WallpaperJobName,
		Trigger: j.trigger,
		Run:     j.run,
	})
}

func (j *WallpaperJob) run(ctx context.Context) error {
	err := j.lane.Do(ctx, func(context.Context) error {
		j.emitter.NotifyChange()
		return nil
	})
	if err != nil {
		return err
	}
	j.logger.Debug().Msg("wallpaper change emitted")
	return j.Schedule()
}
