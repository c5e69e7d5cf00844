// Package schedule runs one-shot background work that fires on a trigger.
// Work is keyed by name and at most one instance per name is pending.
package schedule

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var ErrClosed = errors.New("scheduler closed")

// DefaultRetryDelay spaces trigger attempts after a trigger error.
const DefaultRetryDelay = 5 * time.Second

// Trigger blocks until the work should run or ctx is done.
type Trigger interface {
	Wait(ctx context.Context) error
}

// TriggerFunc adapts a function to Trigger.
type TriggerFunc func(ctx context.Context) error

func (f TriggerFunc) Wait(ctx context.Context) error { return f(ctx) }

type WorkRequest struct {
	Name    string
	Trigger Trigger
	Run     func(ctx context.Context) error

	// RetryDelay is the minimum gap between trigger attempts when Wait fails.
	// Zero means DefaultRetryDelay.
	RetryDelay time.Duration
}

type entry struct {
	seq    uint64
	cancel context.CancelFunc
}

type Scheduler struct {
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	seq     uint64
	entries map[string]entry
	closed  bool
}

func New(logger zerolog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]entry),
	}
}

// EnqueueUnique schedules req, replacing any instance still pending under
// req.Name. Run is called at most once per enqueue; work that wants to fire
// again re-enqueues itself from Run.
func (s *Scheduler) EnqueueUnique(req WorkRequest) error {
	if req.Name == "" || req.Trigger == nil || req.Run == nil {
		return errors.New("schedule: name, trigger and run are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if prev, ok := s.entries[req.Name]; ok {
		prev.cancel()
	}

	s.seq++
	ctx, cancel := context.WithCancel(s.ctx)
	e := entry{seq: s.seq, cancel: cancel}
	s.entries[req.Name] = e

	s.wg.Add(1)
	go s.run(ctx, req, e.seq)
	return nil
}

// Pending reports whether work is waiting on its trigger under name.
func (s *Scheduler) Pending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[name]
	return ok
}

// Cancel drops pending work under name.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok {
		e.cancel()
		delete(s.entries, name)
	}
}

// Close cancels all pending work and waits for running work to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, req WorkRequest, seq uint64) {
	defer s.wg.Done()

	if !s.awaitTrigger(ctx, req) {
		s.forget(req.Name, seq)
		return
	}

	s.mu.Lock()
	current, ok := s.entries[req.Name]
	mine := ok && current.seq == seq && ctx.Err() == nil
	if mine {
		delete(s.entries, req.Name)
	}
	s.mu.Unlock()
	if ok && current.seq == seq {
		current.cancel()
	}

	if !mine {
		return // replaced or cancelled
	}

	if err := req.Run(s.ctx); err != nil {
		s.logger.Warn().Err(err).Str("work", req.Name).Msg("scheduled work failed")
	}
}

// awaitTrigger waits until req's trigger fires. A failing trigger is retried
// no faster than req.RetryDelay, and the work stays pending meanwhile. It
// returns false once ctx is done.
func (s *Scheduler) awaitTrigger(ctx context.Context, req WorkRequest) bool {
	delay := req.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	limiter := rate.NewLimiter(rate.Every(delay), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return false
		}
		err := req.Trigger.Wait(ctx)
		if ctx.Err() != nil {
			return false
		}
		if err == nil {
			return true
		}
		s.logger.Warn().Err(err).Str("work", req.Name).Dur("retry_in", delay).Msg("trigger failed; retrying")
	}
}

// forget releases the entry for seq if it is still the current one.
func (s *Scheduler) forget(name string, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok && e.seq == seq {
		e.cancel()
		delete(s.entries, name)
	}
}
