package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/prismwall/prismd/internal/logging"
	"github.com/prismwall/prismd/internal/prism/service"
	"github.com/prismwall/prismd/internal/prism/types"
)

type Dependencies struct {
	Logger    zerolog.Logger
	Identity  Identifier
	Broker    *service.Broker
	Grants    *service.GrantService
	GrantFeed *service.GrantFeed
	Approvals *service.ApprovalReceiver
	Flow      *service.ApprovalFlow
	Changes   *service.ChangeNotifier
	State     *service.StateSyncer
}

type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
	mux        *http.ServeMux
	upgrader   websocket.Upgrader

	broker    *service.Broker
	grants    *service.GrantService
	grantFeed *service.GrantFeed
	approvals *service.ApprovalReceiver
	flow      *service.ApprovalFlow
	changes   *service.ChangeNotifier
	state     *service.StateSyncer
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:    d.Logger,
		mux:       mux,
		broker:    d.Broker,
		grants:    d.Grants,
		grantFeed: d.GrantFeed,
		approvals: d.Approvals,
		flow:      d.Flow,
		changes:   d.Changes,
		state:     d.State,
		upgrader: websocket.Upgrader{
			// Local socket only; there is no browser origin to check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux.HandleFunc("GET /v1/wallpapers", s.handleWallpapers)
	mux.HandleFunc("GET /v1/wallpapers/changes", s.handleWallpaperChanges)
	mux.HandleFunc("GET /v1/wallpapers/{slot}", s.handleWallpaper)

	mux.HandleFunc("POST /v1/approvals", s.selfOnly(s.handleApproval))
	mux.HandleFunc("GET /v1/grants", s.selfOnly(s.handleListGrants))
	mux.HandleFunc("GET /v1/grants/changes", s.selfOnly(s.handleGrantChanges))
	mux.HandleFunc("PUT /v1/grants/{identity}", s.selfOnly(s.handleSetAccess))
	mux.HandleFunc("GET /v1/state", s.selfOnly(s.handleState))
	mux.HandleFunc("POST /v1/state/sync", s.selfOnly(s.handleSync))
	mux.HandleFunc("PUT /v1/settings/notifications", s.selfOnly(s.handleSetNotifications))

	handler := loggingMiddleware(d.Logger, identityMiddleware(d.Identity, mux))

	s.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ConnContext:       ConnContext,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Serve blocks until the listener fails or Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ListenUnix binds path, replacing a stale socket left by a previous run.
func ListenUnix(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}

// ── Wallpapers ───────────────────────────────────────────────────────────────

func (s *Server) handleWallpapers(w http.ResponseWriter, r *http.Request) {
	rows := s.broker.Rows(r.Context(), CallerFromContext(r.Context()))
	if rows == nil {
		rows = []types.WallpaperRow{}
	}

	if wantsProtobuf(r) {
		writeProto(w, http.StatusOK, rowsToProto(rows))
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleWallpaper(w http.ResponseWriter, r *http.Request) {
	slot, err := types.ParseSlot(r.PathValue("slot"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_slot", err.Error())
		return
	}

	rc, err := s.broker.OpenSlotContent(r.Context(), CallerFromContext(r.Context()), slot)
	if err != nil {
		if errors.Is(err, service.ErrNoContent) {
			writeError(w, http.StatusNotFound, "not_found", "no wallpaper")
			return
		}
		logging.FromContext(r.Context()).Error().Err(err).Msg("open wallpaper")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	defer rc.Close()

	if f, ok := rc.(*os.File); ok {
		if info, err := f.Stat(); err == nil {
			http.ServeContent(w, r, "", info.ModTime(), f)
			return
		}
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = io.Copy(w, rc)
}

// handleWallpaperChanges streams one message per conflated change. The
// payload carries no wallpaper data, so it is open to every caller.
func (s *Server) handleWallpaperChanges(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.FromContext(r.Context()).Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go drainReads(conn, cancel)

	sub := s.changes.Subscribe(ctx)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeWS(conn, changeMessage{Type: "changed"}); err != nil {
				return
			}
		}
	}
}

// ── Approvals ────────────────────────────────────────────────────────────────

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	var msg types.ApprovalMessage
	if isProtobuf(r) {
		var st structpb.Struct
		if err := readProto(r, &st); err != nil {
			writeError(w, http.StatusBadRequest, "bad_proto", "invalid protobuf body")
			return
		}
		m, err := approvalFromProto(&st)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_proto", err.Error())
			return
		}
		msg = m
	} else if !decodeJSON(w, r, &msg) {
		return
	}

	err := s.approvals.Receive(r.Context(), msg)
	switch {
	case err == nil, errors.Is(err, service.ErrMalformedApproval):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, service.ErrReceiverClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting_down", err.Error())
	default:
		logging.FromContext(r.Context()).Error().Err(err).Msg("approval")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}

// ── Grants ───────────────────────────────────────────────────────────────────

func (s *Server) handleListGrants(w http.ResponseWriter, r *http.Request) {
	list, err := s.grants.List(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error().Err(err).Msg("list grants")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	if list == nil {
		list = []types.CallerGrant{}
	}

	if wantsProtobuf(r) {
		writeProto(w, http.StatusOK, grantsToProto(list))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleSetAccess(w http.ResponseWriter, r *http.Request) {
	var req types.SetAccessRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	g, found, err := s.grants.SetAccess(r.Context(), r.PathValue("identity"), req.Allowed)
	switch {
	case errors.Is(err, service.ErrInvalidIdentity):
		writeError(w, http.StatusBadRequest, "invalid_identity", err.Error())
	case err != nil:
		logging.FromContext(r.Context()).Error().Err(err).Msg("set access")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	case !found:
		writeError(w, http.StatusNotFound, "unknown_caller", "caller has never requested access")
	default:
		writeJSON(w, http.StatusOK, g)
	}
}

func (s *Server) handleGrantChanges(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.FromContext(r.Context()).Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go drainReads(conn, cancel)

	for list := range s.grantFeed.Watch(ctx) {
		if list == nil {
			list = []types.CallerGrant{}
		}
		if err := writeWS(conn, list); err != nil {
			return
		}
	}
}

// ── State ────────────────────────────────────────────────────────────────────

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.state.State())
}

func (s *Server) handleSync(w http.ResponseWriter, _ *http.Request) {
	s.state.Sync()
	w.WriteHeader(http.StatusAccepted)
}

type notificationsRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetNotifications(w http.ResponseWriter, r *http.Request) {
	var req notificationsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.flow.SetNotificationsEnabled(r.Context(), req.Enabled); err != nil {
		logging.FromContext(r.Context()).Error().Err(err).Msg("set notifications")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, notificationsRequest{Enabled: s.flow.NotificationsEnabled(r.Context())})
}

// selfOnly restricts admin routes to the daemon's own identity.
func (s *Server) selfOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := CallerFromContext(r.Context())
		if c == nil || *c != s.broker.SelfIdentity() {
			writeError(w, http.StatusForbidden, "forbidden", "admin routes are restricted to prismd")
			return
		}
		next(w, r)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return false
	}
	return true
}
