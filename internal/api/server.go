package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/DenisZakharchuk/onward-sub002/internal/audit"
	"github.com/DenisZakharchuk/onward-sub002/internal/auth"
	"github.com/DenisZakharchuk/onward-sub002/internal/infrastructure/config"
	"github.com/DenisZakharchuk/onward-sub002/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// AuthService is the authentication surface the handlers call.
// *auth.Service satisfies it.
type AuthService interface {
	Login(ctx context.Context, email, password string, client auth.ClientInfo) (*auth.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string, client auth.ClientInfo) (*auth.LoginResponse, error)
	Logout(ctx context.Context, userID string) error
	Authorize(ctx context.Context, userID, resource, action string) bool
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	ChangePassword(ctx context.Context, userID, current, next string, client auth.ClientInfo) error
	SetActive(ctx context.Context, userID string, active bool) error
	Sessions(ctx context.Context, userID string) ([]auth.Session, error)
	RevokeSession(ctx context.Context, userID, family string) error
	GrantRole(ctx context.Context, userID, roleName string) error
}

// TokenParser validates bearer access tokens.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// HealthChecker is a dependency probed by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// MetricsRegistry registers the HTTP metrics and serves /metrics.
// *prometheus.Registry satisfies it.
type MetricsRegistry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	RateLimit config.RateLimitConfig
	Logger    *logging.Logger
	Auth      AuthService
	Tokens    TokenParser
	Audit     audit.Repository         // optional: enables GET /audit
	Health    map[string]HealthChecker // optional: probed by /health
	Metrics   MetricsRegistry          // optional: a private registry is created when nil
	Version   string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes and middleware.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	rateLimit config.RateLimitConfig
	logger    *logging.Logger
	auth      AuthService
	tokens    TokenParser
	auditRepo audit.Repository
	health    map[string]HealthChecker
	registry  MetricsRegistry
	metrics   *httpMetrics
	version   string
	server    *http.Server
	listener  net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token parser is required")
	}

	registry := deps.Metrics
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	metrics, err := newHTTPMetrics(registry)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:       deps.Config,
		rateLimit: deps.RateLimit,
		logger:    deps.Logger,
		auth:      deps.Auth,
		tokens:    deps.Tokens,
		auditRepo: deps.Audit,
		health:    deps.Health,
		registry:  registry,
		metrics:   metrics,
		version:   deps.Version,
	}, nil
}

// Handler returns the fully wired router. Useful for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.listener = ln

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
