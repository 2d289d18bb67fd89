package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/stocky-app/stocky-core/internal/audit"
	"github.com/stocky-app/stocky-core/internal/connection"
	"github.com/stocky-app/stocky-core/internal/coordinator"
	"github.com/stocky-app/stocky-core/internal/infrastructure/config"
	"github.com/stocky-app/stocky-core/internal/infrastructure/logging"
	"github.com/stocky-app/stocky-core/internal/scanner"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by infrastructure clients reported on
// /health and /metrics.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Coordinator *coordinator.Coordinator
	Registry    *scanner.Registry
	Connections *connection.Manager
	Audit       audit.Repository         // optional; /scanner/events returns 503 without it
	DB          *sql.DB                  // optional; pool stats on /metrics
	Checks      map[string]HealthChecker // optional named dependency checks
	Version     string
}

// Server is the HTTP API server.
//
// It is created with New() and run with Serve(). Handler() exposes the
// router without a listener, for tests and embedding.
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	coord       *coordinator.Coordinator
	registry    *scanner.Registry
	connections *connection.Manager
	auditRepo   audit.Repository
	db          *sql.DB
	checks      map[string]HealthChecker
	version     string
	startTime   time.Time
	server      *http.Server
}

// New creates a new API server with the given dependencies.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("scanner registry is required")
	}
	if deps.Connections == nil {
		return nil, fmt.Errorf("connection manager is required")
	}

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		coord:       deps.Coordinator,
		registry:    deps.Registry,
		connections: deps.Connections,
		auditRepo:   deps.Audit,
		db:          deps.DB,
		checks:      deps.Checks,
		version:     deps.Version,
		startTime:   time.Now(),
	}, nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Serve listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully. Open WebSocket connections are
// closed through the connection manager.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", ln.Addr().String(), "cert", s.cfg.TLS.CertFile)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	s.connections.CloseAll()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
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
