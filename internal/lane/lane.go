// Package lane provides a single-goroutine job queue. Every grant mutation,
// approval and fallback cache write in prismd goes through one Lane so that
// read-modify-write sequences never interleave.
package lane

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Do once Close has been called.
var ErrClosed = errors.New("lane closed")

type Fn func(ctx context.Context) error

type job struct {
	ctx context.Context
	fn  Fn
	ch  chan error
}

type laneKey struct{}

type Lane struct {
	jobs chan job
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func New(queueSize int) *Lane {
	if queueSize <= 0 {
		queueSize = 256
	}
	l := &Lane{
		jobs: make(chan job, queueSize),
		done: make(chan struct{}),
	}
	go l.loop()
	return l
}

// Close stops accepting jobs, drains the queue and waits for the loop to exit.
// Calling Close more than once is safe.
func (l *Lane) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.jobs)
	}
	l.mu.Unlock()
	<-l.done
}

// Do runs fn on the lane and waits for its result. A job already running on
// this lane that calls Do again runs fn inline instead of deadlocking.
func (l *Lane) Do(ctx context.Context, fn Fn) error {
	if l.onLane(ctx) {
		return fn(ctx)
	}

	ch := make(chan error, 1)
	j := job{ctx: ctx, fn: fn, ch: ch}

	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return ErrClosed
	}
	// Bail out if the caller's context expires while the buffer is full.
	select {
	case l.jobs <- j:
	case <-ctx.Done():
		l.mu.RUnlock()
		return ctx.Err()
	}
	l.mu.RUnlock()

	// The loop still completes a job whose caller gave up; the result lands in
	// the buffered ch and is discarded.
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Lane) onLane(ctx context.Context) bool {
	owner, _ := ctx.Value(laneKey{}).(*Lane)
	return owner == l
}

func (l *Lane) loop() {
	defer close(l.done)

	for j := range l.jobs {
		if err := j.ctx.Err(); err != nil {
			j.ch <- err
			continue
		}
		j.ch <- j.fn(context.WithValue(j.ctx, laneKey{}, l))
	}
}
