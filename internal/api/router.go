package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Permissions checked by the administrative routes.
const (
	permUsersCreate    = "users:create"
	permUsersRead      = "users:read"
	permUsersDisable   = "users:disable"
	permRolesAssign    = "roles:assign"
	permSessionsRead   = "sessions:read"
	permSessionsRevoke = "sessions:revoke"
	permAuditRead      = "audit:read"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.clientInfoMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.metrics.instrument)
	r.Use(cors.Handler(s.corsOptions()))
	r.Use(s.bodySizeLimitMiddleware)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Credential endpoints, throttled per client IP
		r.Group(func(r chi.Router) {
			if s.rateLimit.Enabled && s.rateLimit.RequestsPerMinute > 0 {
				r.Use(httprate.Limit(s.rateLimit.RequestsPerMinute, time.Minute,
					httprate.WithKeyFuncs(clientIPKey),
					httprate.WithLimitHandler(s.handleRateLimited),
				))
			}
			r.Post("/auth/login", s.handleLogin)
			r.Post("/auth/refresh", s.handleRefresh)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/logout", s.handleLogout)
			r.Post("/auth/authorize", s.handleAuthorize)
			r.Post("/auth/password", s.handleChangePassword)

			r.With(s.requirePermission(permSessionsRead)).Get("/auth/sessions", s.handleListSessions)
			r.With(s.requirePermission(permSessionsRevoke)).Delete("/auth/sessions/{family}", s.handleRevokeSession)

			r.Route("/users", func(r chi.Router) {
				r.With(s.requirePermission(permUsersCreate)).Post("/", s.handleCreateUser)
				r.With(s.requirePermission(permUsersDisable)).Put("/{id}/active", s.handleSetUserActive)
				r.With(s.requirePermission(permRolesAssign)).Post("/{id}/roles", s.handleGrantRole)
				r.With(s.requirePermission(permUsersRead), s.requirePermission(permSessionsRead)).
					Get("/{id}/sessions", s.handleListUserSessions)
				r.With(s.requirePermission(permUsersDisable), s.requirePermission(permSessionsRevoke)).
					Delete("/{id}/sessions", s.handleRevokeUserSessions)
			})

			r.With(s.requirePermission(permAuditRead)).Get("/audit", s.handleListAuditLogs)
		})
	})

	return otelhttp.NewHandler(r, "onward-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// corsOptions allows every origin when none are configured (development).
func (s *Server) corsOptions() cors.Options {
	origins := s.cfg.CORS.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	methods := s.cfg.CORS.AllowedMethods
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	headers := s.cfg.CORS.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Authorization", "Content-Type", "X-Request-ID"}
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: methods,
		AllowedHeaders: headers,
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         86400, //nolint:mnd // one day preflight cache
	}
}
