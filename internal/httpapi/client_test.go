//go:build linux

package httpapi_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismwall/prismd/internal/httpapi"
	"github.com/prismwall/prismd/internal/prism/types"
)

// Over the unix socket the test binary is its own peer, so it is attributed
// the self identity through /proc without any header.
func TestClient_OverUnixSocket(t *testing.T) {
	env := newTestEnv(t, types.CallerGrant{Identity: "com.friend", RequestCount: 2})

	id, err := httpapi.NewProcIdentifier(selfID, false)
	require.NoError(t, err)

	dir, err := os.MkdirTemp("", "prismd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	sock := filepath.Join(dir, "s.sock")

	srv := newServerWithIdentity(t, env, id)
	l, err := httpapi.ListenUnix(sock)
	require.NoError(t, err)
	go func() { _ = srv.Serve(l) }()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	c := httpapi.NewClient(sock)
	ctx := context.Background()

	rows, err := c.Wallpapers(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "system", rows[0].Type)
	require.NotNil(t, rows[0].URI)
	assert.Nil(t, rows[1].URI)

	g, err := c.SetAccess(ctx, "com.friend", true)
	require.NoError(t, err)
	assert.True(t, g.Allowed)

	_, err = c.SetAccess(ctx, "com.nobody", true)
	var apiErr *httpapi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)

	list, err := c.Grants(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, c.Approve(ctx, types.ApprovalMessage{Action: types.ApprovalAction, NotificationID: 9, Caller: "com.friend"}))
	assert.Equal(t, []int{9}, env.sink.Dismissed())

	require.NoError(t, c.SetNotifications(ctx, false))
	require.NoError(t, c.Sync(ctx))
	_, err = c.State(ctx)
	require.NoError(t, err)
}
