package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-sfc/internal/broadcast"
	"github.com/nerrad567/gray-logic-sfc/internal/catalog"
	"github.com/nerrad567/gray-logic-sfc/internal/design"
	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sfc/internal/recording"
	"github.com/nerrad567/gray-logic-sfc/internal/sfc"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// RunController starts, cancels and observes chart runs.
// *sfc.Manager satisfies it.
type RunController interface {
	StartRun(ctx context.Context, designID string) (string, error)
	CancelRun(ctx context.Context, designID string) error
	Active(designID string) (sfc.RunInfo, bool)
	ActiveCount() int
	Status(designID string) (broadcast.Snapshot, bool)
	RunStatus(runID string) (broadcast.Snapshot, bool)
	SubscribeDesign(designID string, s broadcast.Subscriber)
	SubscribeRun(runID string, s broadcast.Subscriber)
	Unsubscribe(key broadcast.Key, s broadcast.Subscriber)
}

// RunStore is the read side of recorded runs.
type RunStore interface {
	GetRun(ctx context.Context, runID string) (recording.Run, error)
	ListRuns(ctx context.Context, limit int) ([]recording.Run, error)
	Samples(ctx context.Context, runID string, variables []string, limit int) ([]recording.Sample, error)
	DeleteRun(ctx context.Context, runID string) error
}

// NameCache is flushed whenever the variable catalog is replaced.
type NameCache interface {
	Flush()
}

// Database is the health and pool-statistics view of the store.
type Database interface {
	HealthCheck(ctx context.Context) error
	Stats() sql.DBStats
}

// Broker reports the MQTT connection state.
type Broker interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Designs  design.Repository
	Catalog  catalog.Repository
	Runs     RunStore
	Manager  RunController
	Names    NameCache // optional
	Database Database  // optional
	MQTT     Broker    // optional
	Version  string
}

// Server is the HTTP API server for sfcd.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	designs   design.Repository
	catalog   catalog.Repository
	runs      RunStore
	manager   RunController
	names     NameCache
	db        Database
	mqtt      Broker
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, repositories, run manager)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Designs == nil:
		return nil, fmt.Errorf("design repository is required")
	case deps.Catalog == nil:
		return nil, fmt.Errorf("catalog repository is required")
	case deps.Runs == nil:
		return nil, fmt.Errorf("run store is required")
	case deps.Manager == nil:
		return nil, fmt.Errorf("run manager is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		designs:   deps.Designs,
		catalog:   deps.Catalog,
		runs:      deps.Runs,
		manager:   deps.Manager,
		names:     deps.Names,
		db:        deps.Database,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.WS, deps.Logger),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and launches the HTTP listener in a
// background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Handler returns the routed HTTP handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Close gracefully shuts down the API server.
//
// It disconnects WebSocket clients and waits up to 10 seconds for
// in-flight requests to complete.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
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

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
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
