package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// seenUser lets Auth, which runs below the logger, report the user id back.
type seenUser struct{ id string }

type seenUserKey struct{}

// Logger returns a middleware that logs one line per request. Server errors
// log at error level.
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusWriter(w)
			seen := &seenUser{}
			r = r.WithContext(context.WithValue(r.Context(), seenUserKey{}, seen))

			next.ServeHTTP(sw, r)

			evt := log.Info()
			if sw.status >= http.StatusInternalServerError {
				evt = log.Error()
			}

			spanCtx := trace.SpanContextFromContext(r.Context())
			if spanCtx.IsValid() {
				evt = evt.
					Str("trace_id", spanCtx.TraceID().String()).
					Str("span_id", spanCtx.SpanID().String())
			}
			if seen.id != "" {
				evt = evt.Str("user_id", seen.id)
			}

			evt.
				Str("request_id", GetRequestID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", routePattern(r)).
				Int("status", sw.status).
				Int64("bytes", sw.written).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Msg("request completed")
		})
	}
}
