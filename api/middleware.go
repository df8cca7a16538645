package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"

	"github.com/warp/attendance-bridge/logger"
)

// requestLogger puts a request-scoped logger carrying chi's request id into
// the context, where hlog.FromRequest finds it.
func requestLogger(base *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := middleware.GetReqID(r.Context())
			ctx := logger.WithRequestID(r.Context(), id)
			l := logger.C(ctx, base)
			if id != "" {
				w.Header().Set("X-Request-ID", id)
			}
			next.ServeHTTP(w, r.WithContext(l.WithContext(ctx)))
		})
	}
}

// accessLog logs one line per request; slow or failed requests at warn.
func accessLog(slow time.Duration) func(http.Handler) http.Handler {
	return hlog.AccessHandler(func(r *http.Request, status, size int, elapsed time.Duration) {
		log := hlog.FromRequest(r)
		evt := log.Info()
		if status >= http.StatusInternalServerError || (slow > 0 && elapsed >= slow) {
			evt = log.Warn()
		}
		evt.Int("status", status).
			Dur("elapsed", elapsed).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("bytes", size).
			Msg("request done")
	})
}

// securityHeaders sets the response headers browsers honor for an API
// that never serves HTML.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// RESPONSE GUARD
// =============================================================================

// responseGuard lets a handler send one response. A second WriteHeader and
// the body written after it are logged and dropped.
func responseGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&guardWriter{ResponseWriter: w, r: r}, r)
	})
}

type guardWriter struct {
	http.ResponseWriter
	r        *http.Request
	status   int
	rejected bool
}

func (g *guardWriter) WriteHeader(code int) {
	if g.status != 0 {
		g.rejected = true
		hlog.FromRequest(g.r).Warn().
			Int("sent_status", g.status).
			Int("dropped_status", code).
			Str("path", g.r.URL.Path).
			Msg("response already sent; dropping second response")
		return
	}
	g.status = code
	g.ResponseWriter.WriteHeader(code)
}

func (g *guardWriter) Write(b []byte) (int, error) {
	if g.rejected {
		return len(b), nil
	}
	if g.status == 0 {
		g.status = http.StatusOK
	}
	return g.ResponseWriter.Write(b)
}

func (g *guardWriter) Unwrap() http.ResponseWriter { return g.ResponseWriter }
