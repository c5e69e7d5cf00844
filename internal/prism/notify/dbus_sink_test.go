package notify

import (
	"context"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismwall/prismd/internal/logging"
	"github.com/prismwall/prismd/internal/prism/types"
)

type call struct {
	method string
	args   []interface{}
}

// fakeServer stands in for the notification server object.
type fakeServer struct {
	dbus.BusObject

	nextID uint32
	err    error
	calls  []call
}

func (f *fakeServer) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	f.calls = append(f.calls, call{method: method, args: args})
	if f.err != nil {
		return &dbus.Call{Err: f.err}
	}
	if method == notifyIface+".Notify" {
		f.nextID++
		return &dbus.Call{Body: []interface{}{f.nextID}}
	}
	return &dbus.Call{}
}

func TestDBusSink_PostAndDismiss(t *testing.T) {
	srv := &fakeServer{nextID: 40}
	s := newDBusSink(srv, "prismd", logging.Nop())
	ctx := context.Background()

	require.NoError(t, s.Post(ctx, Prompt{NotificationID: 7, Caller: "com.evil.app"}))
	require.Len(t, srv.calls, 1)
	assert.Equal(t, "prismd", srv.calls[0].args[0])
	assert.Equal(t, []string{actionApprove, "Allow"}, srv.calls[0].args[5])
	assert.Equal(t, []types.PendingApproval{{NotificationID: 7, Caller: "com.evil.app"}}, s.Pending())

	require.NoError(t, s.Dismiss(ctx, 7))
	require.Len(t, srv.calls, 2)
	assert.Equal(t, notifyIface+".CloseNotification", srv.calls[1].method)
	assert.Equal(t, uint32(41), srv.calls[1].args[0])
	assert.Empty(t, s.Pending())

	// Already gone: no bus traffic.
	require.NoError(t, s.Dismiss(ctx, 7))
	assert.Len(t, srv.calls, 2)
}

func TestDBusSink_PostDenied(t *testing.T) {
	srv := &fakeServer{err: dbus.Error{Name: "org.freedesktop.DBus.Error.AccessDenied"}}
	s := newDBusSink(srv, "prismd", logging.Nop())

	err := s.Post(context.Background(), Prompt{NotificationID: 1, Caller: "a"})
	assert.ErrorIs(t, err, ErrNotPermitted)
	assert.Empty(t, s.Pending())
}

func TestDBusSink_ActionInvokedBecomesApproval(t *testing.T) {
	srv := &fakeServer{}
	s := newDBusSink(srv, "prismd", logging.Nop())
	require.NoError(t, s.Post(context.Background(), Prompt{NotificationID: 99, Caller: "com.evil.app"}))

	var got []types.ApprovalMessage
	fn := func(m types.ApprovalMessage) { got = append(got, m) }

	s.handleSignal(&dbus.Signal{Name: notifyIface + ".ActionInvoked", Body: []interface{}{uint32(1), "default"}}, fn)
	s.handleSignal(&dbus.Signal{Name: notifyIface + ".ActionInvoked", Body: []interface{}{uint32(2), actionApprove}}, fn)
	assert.Empty(t, got)

	s.handleSignal(&dbus.Signal{Name: notifyIface + ".ActionInvoked", Body: []interface{}{uint32(1), actionApprove}}, fn)
	require.Len(t, got, 1)
	assert.True(t, got[0].Valid())
	assert.Equal(t, 99, got[0].NotificationID)
	assert.Equal(t, "com.evil.app", got[0].Caller)
}

func TestDBusSink_ClosedForgetsPrompt(t *testing.T) {
	srv := &fakeServer{}
	s := newDBusSink(srv, "prismd", logging.Nop())
	require.NoError(t, s.Post(context.Background(), Prompt{NotificationID: 5, Caller: "x"}))

	s.handleSignal(&dbus.Signal{Name: notifyIface + ".NotificationClosed", Body: []interface{}{uint32(1), uint32(2)}}, nil)
	assert.Empty(t, s.Pending())
}

func TestMemorySink(t *testing.T) {
	s := NewMemorySink()
	ctx := context.Background()

	require.NoError(t, s.Post(ctx, Prompt{NotificationID: 3, Caller: "c"}))
	s.FailWith(ErrNotPermitted)
	assert.ErrorIs(t, s.Post(ctx, Prompt{NotificationID: 4, Caller: "c"}), ErrNotPermitted)
	require.NoError(t, s.Dismiss(ctx, 3))

	assert.Len(t, s.Posted(), 1)
	assert.Equal(t, []int{3}, s.Dismissed())
}
