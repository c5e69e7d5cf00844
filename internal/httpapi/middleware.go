package httpapi

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prismwall/prismd/internal/logging"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer cannot hijack")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// loggingMiddleware tags each request with an id and a request-scoped logger
// and writes one access line when it finishes.
func loggingMiddleware(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now().UTC()
		reqID := uuid.NewString()

		l := logger.With().Str("request_id", reqID).Logger()
		ctx := logging.WithContext(r.Context(), l)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if v := recover(); v != nil {
				l.Error().Interface("panic", v).Str("path", r.URL.Path).Msg("handler panicked")
				if rec.status == http.StatusOK {
					writeError(rec, http.StatusInternalServerError, "internal_error", "unexpected server error")
				}
			}
			l.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("dur", time.Since(start)).
				Msg("request")
		}()

		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}

// identityMiddleware attributes the request once; handlers read the result
// with CallerFromContext.
func identityMiddleware(id Identifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := id.Identify(r)
		ctx := context.WithValue(r.Context(), callerKey{}, caller)
		if caller != nil {
			l := logging.FromContext(ctx).With().Str("caller", *caller).Logger()
			ctx = logging.WithContext(ctx, l)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
