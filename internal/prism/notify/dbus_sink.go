package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"

	"github.com/prismwall/prismd/internal/prism/types"
)

const (
	notifyDest  = "org.freedesktop.Notifications"
	notifyPath  = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyIface = "org.freedesktop.Notifications"

	actionApprove = "approve"
	appIcon       = "preferences-desktop-wallpaper"

	probeTimeout = 2 * time.Second
)

// Errors from the notification server that mean "you may not notify".
var deniedErrors = map[string]struct{}{
	"org.freedesktop.DBus.Error.AccessDenied":   {},
	"org.freedesktop.DBus.Error.ServiceUnknown": {},
	"org.freedesktop.DBus.Error.NotSupported":   {},
}

// ApprovalFunc receives approve actions taken on posted prompts.
type ApprovalFunc func(types.ApprovalMessage)

// DBusSink talks to the freedesktop notification server on the session bus.
// Prompt ids are ours; the server assigns its own, so both directions are
// tracked until the notification goes away.
type DBusSink struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	appName string
	logger  zerolog.Logger

	mu       sync.Mutex
	byServer map[uint32]types.PendingApproval
	byPrompt map[int]uint32
}

// ConnectDBusSink connects to the session bus and checks that a
// notification server is present. The connection lives until ctx is done or
// Close is called.
func ConnectDBusSink(ctx context.Context, appName string, logger zerolog.Logger) (*DBusSink, error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	s := newDBusSink(conn.Object(notifyDest, notifyPath), appName, logger)
	s.conn = conn

	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var name, vendor, version, protocol string
	err = s.obj.CallWithContext(pctx, notifyIface+".GetServerInformation", 0).
		Store(&name, &vendor, &version, &protocol)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notification server unavailable: %w", err)
	}
	logger.Debug().Str("server", name).Str("version", version).Msg("notification server found")

	return s, nil
}

func newDBusSink(obj dbus.BusObject, appName string, logger zerolog.Logger) *DBusSink {
	return &DBusSink{
		obj:      obj,
		appName:  appName,
		logger:   logger,
		byServer: make(map[uint32]types.PendingApproval),
		byPrompt: make(map[int]uint32),
	}
}

// Post calls Notify(app_name, replaces_id, app_icon, summary, body, actions,
// hints, expire_timeout) -> id.
func (s *DBusSink) Post(ctx context.Context, p Prompt) error {
	hints := map[string]dbus.Variant{
		"urgency":  dbus.MakeVariant(byte(2)),
		"category": dbus.MakeVariant("im.received"),
	}

	var serverID uint32
	err := s.obj.CallWithContext(ctx, notifyIface+".Notify", 0,
		s.appName,
		uint32(0),
		appIcon,
		p.Title(),
		p.Body(),
		[]string{actionApprove, "Allow"},
		hints,
		int32(-1),
	).Store(&serverID)
	if err != nil {
		if _, ok := deniedErrors[dbusErrorName(err)]; ok {
			return fmt.Errorf("%w: %w", ErrNotPermitted, err)
		}
		return fmt.Errorf("notify: %w", err)
	}

	s.mu.Lock()
	s.byServer[serverID] = types.PendingApproval{NotificationID: p.NotificationID, Caller: p.Caller}
	s.byPrompt[p.NotificationID] = serverID
	s.mu.Unlock()

	return nil
}

// Dismiss closes the prompt. Unknown ids are already gone.
func (s *DBusSink) Dismiss(ctx context.Context, notificationID int) error {
	s.mu.Lock()
	serverID, ok := s.byPrompt[notificationID]
	if ok {
		s.forgetLocked(serverID)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}

	if err := s.obj.CallWithContext(ctx, notifyIface+".CloseNotification", 0, serverID).Err; err != nil {
		return fmt.Errorf("close notification %d: %w", notificationID, err)
	}
	return nil
}

// Pending returns the prompts still shown.
func (s *DBusSink) Pending() []types.PendingApproval {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.PendingApproval, 0, len(s.byServer))
	for _, p := range s.byServer {
		out = append(out, p)
	}
	return out
}

// Listen delivers approve actions to fn until ctx is done.
func (s *DBusSink) Listen(ctx context.Context, fn ApprovalFunc) error {
	if s.conn == nil {
		return errors.New("dbus sink has no connection")
	}

	opts := []dbus.MatchOption{
		dbus.WithMatchInterface(notifyIface),
		dbus.WithMatchObjectPath(notifyPath),
	}
	if err := s.conn.AddMatchSignalContext(ctx, opts...); err != nil {
		return fmt.Errorf("add signal match: %w", err)
	}

	signals := make(chan *dbus.Signal, 16)
	s.conn.Signal(signals)

	defer func() {
		s.conn.RemoveSignal(signals)
		_ = s.conn.RemoveMatchSignal(opts...)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok || sig == nil {
				return nil
			}
			s.handleSignal(sig, fn)
		}
	}
}

func (s *DBusSink) handleSignal(sig *dbus.Signal, fn ApprovalFunc) {
	switch sig.Name {
	case notifyIface + ".ActionInvoked":
		var serverID uint32
		var action string
		if err := dbus.Store(sig.Body, &serverID, &action); err != nil {
			s.logger.Debug().Err(err).Msg("malformed ActionInvoked signal")
			return
		}
		if action != actionApprove {
			return
		}

		s.mu.Lock()
		p, ok := s.byServer[serverID]
		s.mu.Unlock()
		if !ok {
			return // not ours
		}

		fn(types.ApprovalMessage{
			Action:         types.ApprovalAction,
			NotificationID: p.NotificationID,
			Caller:         p.Caller,
		})

	case notifyIface + ".NotificationClosed":
		var serverID, reason uint32
		if err := dbus.Store(sig.Body, &serverID, &reason); err != nil {
			return
		}
		s.mu.Lock()
		s.forgetLocked(serverID)
		s.mu.Unlock()
	}
}

func (s *DBusSink) forgetLocked(serverID uint32) {
	if p, ok := s.byServer[serverID]; ok {
		delete(s.byPrompt, p.NotificationID)
		delete(s.byServer, serverID)
	}
}

func (s *DBusSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func dbusErrorName(err error) string {
	var de dbus.Error
	if errors.As(err, &de) {
		return de.Name
	}
	var pde *dbus.Error
	if errors.As(err, &pde) && pde != nil {
		return pde.Name
	}
	return ""
}
