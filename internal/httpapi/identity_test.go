package httpapi

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProc lays out <root>/<pid>/exe and optionally a flatpak info file.
func fakeProc(t *testing.T, pid, exe, flatpakInfo string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, pid)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "root"), 0o755))
	require.NoError(t, os.Symlink(exe, filepath.Join(dir, "exe")))
	if flatpakInfo != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "root", ".flatpak-info"), []byte(flatpakInfo), 0o644))
	}
	return root
}

func identify(p *ProcIdentifier, peer *Peer, header string) *string {
	r := httptest.NewRequest("GET", "/v1/wallpapers", nil)
	if header != "" {
		r.Header.Set(CallerHeader, header)
	}
	if peer != nil {
		r = r.WithContext(context.WithValue(r.Context(), peerKey{}, *peer))
	}
	return p.Identify(r)
}

func TestProcIdentifier_Self(t *testing.T) {
	root := fakeProc(t, "100", "/usr/bin/prismd", "")
	p := &ProcIdentifier{Self: "io.prismwall.prismd", SelfExe: "/usr/bin/prismd", UID: 1000, ProcRoot: root}

	got := identify(p, &Peer{PID: 100, UID: 1000}, "")
	require.NotNil(t, got)
	assert.Equal(t, "io.prismwall.prismd", *got)

	// Same binary, different user: not self.
	got = identify(p, &Peer{PID: 100, UID: 1001}, "")
	assert.Nil(t, got)
}

func TestProcIdentifier_FlatpakApp(t *testing.T) {
	info := "[Application]\nname=org.example.Painter\nruntime=runtime/org.gnome.Platform\n\n[Instance]\nname=other\n"
	root := fakeProc(t, "200", "/app/bin/painter", info)
	p := &ProcIdentifier{Self: "io.prismwall.prismd", SelfExe: "/usr/bin/prismd", UID: 1000, ProcRoot: root}

	got := identify(p, &Peer{PID: 200, UID: 1000}, "")
	require.NotNil(t, got)
	assert.Equal(t, "org.example.Painter", *got)
}

func TestProcIdentifier_PlainBinary(t *testing.T) {
	root := fakeProc(t, "300", "/usr/bin/wallviewer", "")
	p := &ProcIdentifier{Self: "io.prismwall.prismd", SelfExe: "/usr/bin/prismd", UID: 1000, ProcRoot: root}

	got := identify(p, &Peer{PID: 300, UID: 1000}, "ignored-on-socket")
	require.NotNil(t, got)
	assert.Equal(t, "/usr/bin/wallviewer", *got)
}

func TestProcIdentifier_ImpersonationIsUnattributed(t *testing.T) {
	root := fakeProc(t, "400", "/app/bin/evil", "[Application]\nname=io.prismwall.prismd\n")
	p := &ProcIdentifier{Self: "io.prismwall.prismd", SelfExe: "/usr/bin/prismd", UID: 1000, ProcRoot: root}

	assert.Nil(t, identify(p, &Peer{PID: 400, UID: 1000}, ""))
}

func TestProcIdentifier_GonePeer(t *testing.T) {
	p := &ProcIdentifier{Self: "io.prismwall.prismd", ProcRoot: t.TempDir()}
	assert.Nil(t, identify(p, &Peer{PID: 999}, ""))
}

func TestProcIdentifier_Header(t *testing.T) {
	p := &ProcIdentifier{Self: "io.prismwall.prismd"}
	assert.Nil(t, identify(p, nil, "com.example"))

	p.TrustHeader = true
	got := identify(p, nil, " com.example ")
	require.NotNil(t, got)
	assert.Equal(t, "com.example", *got)
	assert.Nil(t, identify(p, nil, ""))
}

func TestProcIdentifier_HeaderCannotClaimSelf(t *testing.T) {
	p := &ProcIdentifier{Self: "io.prismwall.prismd", TrustHeader: true}
	assert.Nil(t, identify(p, nil, "io.prismwall.prismd"))
	assert.Nil(t, identify(p, nil, "  io.prismwall.prismd "))

	got := identify(p, nil, "org.example.Painter")
	require.NotNil(t, got)
	assert.Equal(t, "org.example.Painter", *got)
}
