/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK (outermost first):
  1. RequestID:       Unique ID per request, echoed as X-Request-ID
  2. RealIP:          Terminal address from X-Forwarded-For behind a proxy
  3. requestLogger:   zerolog child logger carrying the request id
  4. accessLog:       One hlog line per request
  5. Recoverer:       Panic recovery (500 instead of crash)
  6. securityHeaders: nosniff, frame denial, no referrer
  7. CORS:            ALLOWED_ORIGINS, any origin when empty
  8. responseGuard:   One response per request

ROUTE GROUPS:
  /api/attendance/*     Terminal webhook and span lookups
  /api/admin/*          Reaper trigger, sweep and event journal
  /health               Liveness + store reachability

SECURITY NOTE:
  No authentication middleware. Terminals cannot send credentials; the
  service is expected to sit on the terminals' network segment.

SEE ALSO:
  - handlers.go: Handler implementations
  - cli/serve.go: Server startup
*/
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/attendance-bridge/logger"
)

// RouterOptions configures the middleware stack.
type RouterOptions struct {
	AllowedOrigins []string
	Logger         *logger.Logger
	SlowRequest    time.Duration
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Logger))
	r.Use(accessLog(opts.SlowRequest))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(responseGuard)

	r.NotFound(NotFound)
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		// Attendance routes
		r.Route("/attendance", func(r chi.Router) {
			r.Post("/send-attendance", h.SendAttendance)
			r.Get("/employees/{id}/open", h.GetOpenSpan)
			r.Get("/employees/{id}/spans", h.GetSummary)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/reaper/run", h.RunReaper)
			r.Get("/reaper/runs", h.ListReaperRuns)
			r.Get("/events", h.ListEvents)
		})
	})

	return r
}
