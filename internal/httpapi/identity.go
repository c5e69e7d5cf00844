package httpapi

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// CallerHeader names the caller on the dev TCP listener. It is ignored on the
// unix socket, where identity comes from the kernel.
const CallerHeader = "X-Prism-Caller"

// Peer is the process on the other end of a unix socket connection.
type Peer struct {
	PID int
	UID int
	GID int
}

type peerKey struct{}
type callerKey struct{}

// ConnContext attaches the peer credentials of unix socket connections. Use
// it as http.Server.ConnContext.
func ConnContext(ctx context.Context, c net.Conn) context.Context {
	if _, ok := c.(*net.UnixConn); !ok {
		return ctx
	}
	p, err := peerCredentials(c)
	if err != nil {
		return ctx
	}
	return context.WithValue(ctx, peerKey{}, p)
}

func PeerFromContext(ctx context.Context) (Peer, bool) {
	p, ok := ctx.Value(peerKey{}).(Peer)
	return p, ok
}

// CallerFromContext returns the attributed caller, or nil.
func CallerFromContext(ctx context.Context) *string {
	c, _ := ctx.Value(callerKey{}).(*string)
	return c
}

// Identifier attributes a request to a caller identity. nil means the caller
// could not be attributed.
type Identifier interface {
	Identify(r *http.Request) *string
}

// ProcIdentifier attributes unix socket peers through /proc. A peer running
// this daemon's own binary as the same user is the self identity. Sandboxed
// apps are named by their flatpak application id, anything else by its
// executable path.
type ProcIdentifier struct {
	Self        string
	SelfExe     string
	UID         int
	ProcRoot    string
	TrustHeader bool
}

func NewProcIdentifier(self string, trustHeader bool) (*ProcIdentifier, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return &ProcIdentifier{
		Self:        self,
		SelfExe:     exe,
		UID:         os.Getuid(),
		ProcRoot:    "/proc",
		TrustHeader: trustHeader,
	}, nil
}

func (p *ProcIdentifier) Identify(r *http.Request) *string {
	if peer, ok := PeerFromContext(r.Context()); ok {
		return p.fromPeer(peer)
	}
	if !p.TrustHeader {
		return nil
	}
	v := strings.TrimSpace(r.Header.Get(CallerHeader))
	// Self is only ever attested by the peer path.
	if v == "" || v == p.Self {
		return nil
	}
	return &v
}

func (p *ProcIdentifier) fromPeer(peer Peer) *string {
	dir := filepath.Join(p.ProcRoot, strconv.Itoa(peer.PID))

	exe, err := os.Readlink(filepath.Join(dir, "exe"))
	if err != nil {
		return nil
	}
	if peer.UID == p.UID && exe == p.SelfExe {
		self := p.Self
		return &self
	}

	id := flatpakAppID(dir)
	if id == "" {
		id = exe
	}
	if id == p.Self {
		return nil // impersonating the daemon
	}
	return &id
}

// flatpakAppID reads the name key of the [Application] group in
// .flatpak-info, which flatpak writes and the app cannot alter.
func flatpakAppID(procDir string) string {
	f, err := os.Open(filepath.Join(procDir, "root", ".flatpak-info"))
	if err != nil {
		return ""
	}
	defer f.Close()

	group := ""
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			group = line
			continue
		}
		if group != "[Application]" {
			continue
		}
		if k, v, ok := strings.Cut(line, "="); ok && strings.TrimSpace(k) == "name" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
