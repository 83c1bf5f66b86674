package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-ilp/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-ilp/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-ilp/internal/relay"
	"github.com/nerrad567/gray-logic-ilp/internal/spool"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// StatsSource reports relay counters. Satisfied by *relay.Relay.
type StatsSource interface {
	Stats(ctx context.Context) relay.Stats
}

// HealthChecker is any component with an active health probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnectionState reports whether a client is connected. Satisfied by *mqtt.Client.
type ConnectionState interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Relay   StatsSource
	Spool   spool.Repository // Optional
	DB      *sql.DB          // Optional, for pool metrics
	MQTT    ConnectionState  // Optional
	Checks  map[string]HealthChecker
	Version string
}

// Server is the relay's status HTTP server.
//
// The server is created with New() and started with Start().
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	relay     StatsSource
	spool     spool.Repository
	db        *sql.DB
	mqtt      ConnectionState
	checks    map[string]HealthChecker
	version   string
	startTime time.Time

	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Relay == nil {
		return nil, fmt.Errorf("relay is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		relay:     deps.Relay,
		spool:     deps.Spool,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		checks:    deps.Checks,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listen address and serves in a background goroutine.
//
// Returns:
//   - error: If the address cannot be bound (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding API server to %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
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
