/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers
  3. httplog:    Structured request logging (slog, ECS schema)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /health           Liveness (public)
  /api/cron/*       Accrual trigger (shared secret)
  /api/*            Self-service (bearer token)
  /api/admin/*      Administration (bearer token, role admin)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token verification
  - cmd/server/main.go: Server startup
*/
package api

import (
	"io"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
)

// RouterOptions tunes cross-cutting middleware.
type RouterOptions struct {
	AllowedOrigins []string
	LogLevel       slog.Level
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(h.Logger, &httplog.Options{
		Level:  opts.LogLevel,
		Schema: httplog.SchemaECS,
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		// Cron routes authenticate with CRON_SECRET, not a user token
		r.Route("/cron", func(r chi.Router) {
			r.Get("/accrual", h.CronInfo)
			r.Post("/accrual", h.RunAccrual)
		})

		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(h.Auth.JWTAuth()))
			r.Use(h.authenticate)

			r.Get("/me", h.Me)
			r.Get("/leave-types", h.ListActiveLeaveTypes)
			r.Get("/balances", h.MyBalances)

			r.Route("/requests", func(r chi.Router) {
				r.Post("/", h.SubmitRequest)
				r.Get("/history", h.History)
				r.Get("/pending", h.MyPending)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(h.requireAdmin)

				r.Route("/requests", func(r chi.Router) {
					r.Get("/", h.ListRequests)
					r.Post("/{id}/approve", h.ApproveRequest)
					r.Post("/{id}/decline", h.DeclineRequest)
				})

				r.Route("/employees", func(r chi.Router) {
					r.Get("/", h.ListEmployees)
					r.Get("/export", h.ExportEmployees)
					r.Post("/{id}/balances", h.AssignBalance)
				})

				r.Route("/leave-types", func(r chi.Router) {
					r.Get("/", h.ListAllLeaveTypes)
					r.Post("/", h.CreateLeaveType)
					r.Patch("/{id}", h.UpdateLeaveType)
				})

				r.Get("/config", h.GetConfig)
				r.Put("/config", h.UpdateConfig)
			})
		})
	})

	return r
}

// NewLogger builds the JSON slog logger used across the server, formatted
// with the ECS schema so request logs and domain logs share field names.
func NewLogger(w io.Writer, level slog.Level, app, env string) *slog.Logger {
	logFormat := httplog.SchemaECS.Concise(false)
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", app),
		slog.String("env", env),
	)
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
