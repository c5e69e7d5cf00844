package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/prismwall/prismd/internal/prism/types"
)

var ErrReceiverClosed = errors.New("approval receiver closed")

type Approver interface {
	Approve(ctx context.Context, notificationID int, caller string) error
}

// ApprovalReceiver hosts approval messages arriving out of band. Each
// accepted message holds a pending-completion token until its approval has
// been applied; Wait blocks on the outstanding tokens.
type ApprovalReceiver struct {
	approver Approver
	logger   zerolog.Logger

	mu     sync.Mutex
	closed bool
	tokens sync.WaitGroup
}

func NewApprovalReceiver(a Approver, logger zerolog.Logger) *ApprovalReceiver {
	return &ApprovalReceiver{approver: a, logger: logger}
}

// Dispatch hands msg to the approver. The returned channel yields the result
// once and is then closed. Malformed messages are dropped without touching
// any grant.
func (r *ApprovalReceiver) Dispatch(ctx context.Context, msg types.ApprovalMessage) <-chan error {
	done := make(chan error, 1)

	if !msg.Valid() {
		r.logger.Warn().
			Str("action", msg.Action).
			Int("notification_id", msg.NotificationID).
			Str("caller", msg.Caller).
			Msg("dropping malformed approval message")
		done <- ErrMalformedApproval
		close(done)
		return done
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		done <- ErrReceiverClosed
		close(done)
		return done
	}
	r.tokens.Add(1)
	r.mu.Unlock()

	// The sender may go away right after delivering; the approval still has
	// to land.
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer r.tokens.Done()
		err := r.approver.Approve(ctx, msg.NotificationID, msg.Caller)
		if err != nil {
			r.logger.Error().Err(err).Str("caller", msg.Caller).Msg("approval failed")
		}
		done <- err
		close(done)
	}()

	return done
}

// Receive dispatches msg and waits for the result or ctx.
func (r *ApprovalReceiver) Receive(ctx context.Context, msg types.ApprovalMessage) error {
	select {
	case err := <-r.Dispatch(ctx, msg):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait stops accepting messages and blocks until every accepted one is done.
func (r *ApprovalReceiver) Wait() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.tokens.Wait()
}
