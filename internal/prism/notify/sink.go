// Package notify posts the access-approval prompt to the user and reports
// when the user acts on it.
package notify

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotPermitted is returned by a Sink that may not post notifications.
// Callers skip the prompt silently.
var ErrNotPermitted = errors.New("posting notifications not permitted")

// Prompt is one actionable approval request.
type Prompt struct {
	NotificationID int
	Caller         string
}

func (p Prompt) Title() string { return "Wallpaper access request" }

func (p Prompt) Body() string {
	return fmt.Sprintf("%s wants to read your wallpapers.", p.Caller)
}

// Sink is a user-facing notification surface.
type Sink interface {
	Post(ctx context.Context, p Prompt) error
	Dismiss(ctx context.Context, notificationID int) error
}
