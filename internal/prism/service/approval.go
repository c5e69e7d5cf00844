package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/prismwall/prismd/internal/lane"
	"github.com/prismwall/prismd/internal/prism/notify"
	"github.com/prismwall/prismd/internal/prism/store"
)

// SettingNotificationsEnabled is the key_value entry that turns approval
// prompts on or off. When unset the configured default applies.
const SettingNotificationsEnabled = "notifications_enabled"

var ErrMalformedApproval = errors.New("malformed approval message")

type ApprovalConfig struct {
	NotificationsEnabled bool
}

// ApprovalFlow posts approval prompts and applies the user's answer.
type ApprovalFlow struct {
	cfg      ApprovalConfig
	grants   store.GrantStore
	settings store.SettingsStore
	sink     notify.Sink
	lane     *lane.Lane
	logger   zerolog.Logger

	newID func() int
}

func NewApprovalFlow(
	cfg ApprovalConfig,
	grants store.GrantStore,
	settings store.SettingsStore,
	sink notify.Sink,
	l *lane.Lane,
	logger zerolog.Logger,
) *ApprovalFlow {
	return &ApprovalFlow{
		cfg:      cfg,
		grants:   grants,
		settings: settings,
		sink:     sink,
		lane:     l,
		logger:   logger,
		newID:    randomNotificationID,
	}
}

func randomNotificationID() int {
	return 1 + rand.IntN(math.MaxInt32-1)
}

// Request posts a prompt for caller. Failures never reach the caller: a sink
// without permission is skipped quietly, anything else is logged.
func (f *ApprovalFlow) Request(ctx context.Context, caller string) {
	if !f.NotificationsEnabled(ctx) {
		return
	}

	p := notify.Prompt{NotificationID: f.newID(), Caller: caller}
	err := f.sink.Post(ctx, p)
	switch {
	case errors.Is(err, notify.ErrNotPermitted):
		f.logger.Debug().Str("caller", caller).Msg("notifications not permitted; prompt skipped")
	case err != nil:
		f.logger.Warn().Err(err).Str("caller", caller).Msg("approval prompt not posted")
	default:
		f.logger.Info().Int("notification_id", p.NotificationID).Str("caller", caller).Msg("approval requested")
	}
}

// Approve flips caller's grant to allowed and dismisses the prompt. It
// returns only after both have happened. A caller without a grant row has
// never asked for access and is left alone.
func (f *ApprovalFlow) Approve(ctx context.Context, notificationID int, caller string) error {
	caller = strings.TrimSpace(caller)
	if notificationID <= 0 || caller == "" {
		f.logger.Warn().Int("notification_id", notificationID).Str("caller", caller).Msg("ignoring malformed approval")
		return ErrMalformedApproval
	}

	return f.lane.Do(ctx, func(ctx context.Context) error {
		g, ok, err := f.grants.Get(ctx, caller)
		if err != nil {
			return fmt.Errorf("approve %s: %w", caller, err)
		}
		if ok && !g.Allowed {
			g.Allowed = true
			if err := f.grants.Upsert(ctx, g); err != nil {
				return fmt.Errorf("approve %s: %w", caller, err)
			}
		}

		if err := f.sink.Dismiss(ctx, notificationID); err != nil {
			f.logger.Warn().Err(err).Int("notification_id", notificationID).Msg("dismiss failed")
		}

		f.logger.Info().Str("caller", caller).Bool("known", ok).Msg("caller approved")
		return nil
	})
}

// NotificationsEnabled reads the stored toggle, falling back to the
// configured default when it is unset or unreadable.
func (f *ApprovalFlow) NotificationsEnabled(ctx context.Context) bool {
	if f.settings == nil {
		return f.cfg.NotificationsEnabled
	}
	v, err := f.settings.Get(ctx, SettingNotificationsEnabled)
	if err != nil {
		f.logger.Warn().Err(err).Msg("reading notification setting")
		return f.cfg.NotificationsEnabled
	}
	if v == nil {
		return f.cfg.NotificationsEnabled
	}
	on, err := strconv.ParseBool(*v)
	if err != nil {
		return f.cfg.NotificationsEnabled
	}
	return on
}

func (f *ApprovalFlow) SetNotificationsEnabled(ctx context.Context, on bool) error {
	if f.settings == nil {
		return errors.New("no settings store")
	}
	v := strconv.FormatBool(on)
	return f.lane.Do(ctx, func(ctx context.Context) error {
		return f.settings.Set(ctx, SettingNotificationsEnabled, &v)
	})
}
