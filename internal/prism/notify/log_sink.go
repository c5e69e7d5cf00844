package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes prompts to the log. Used when no session bus is available;
// the prompt can then be approved with `prismd approve`.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Post(_ context.Context, p Prompt) error {
	s.Logger.Warn().
		Int("notification_id", p.NotificationID).
		Str("caller", p.Caller).
		Msg(p.Body())
	return nil
}

func (s LogSink) Dismiss(_ context.Context, notificationID int) error {
	s.Logger.Info().Int("notification_id", notificationID).Msg("approval prompt dismissed")
	return nil
}

