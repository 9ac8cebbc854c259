package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/teemow/inboxledger/internal/instrumentation"
)

const (
	// DefaultAddr is the default address of the scheduler's HTTP server.
	DefaultAddr = ":9090"

	// DefaultReadTimeout is the default read header timeout.
	DefaultReadTimeout = 10 * time.Second

	// DefaultIdleTimeout is the default idle timeout.
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default timeout for graceful server shutdown.
	DefaultShutdownTimeout = 30 * time.Second
)

// Config holds the configuration of the HTTP server.
type Config struct {
	// Addr is the address to bind to (e.g., ":9090").
	Addr string

	// Provider supplies the Prometheus handler and HTTP metrics. Optional.
	Provider *instrumentation.Provider

	// Health serves /healthz, /readyz and /healthz/detailed. Required.
	Health *HealthChecker

	// Hub serves the /events websocket stream. Optional.
	Hub *Hub

	Logger *slog.Logger
}

// Server exposes metrics, health and the event stream of the scheduler.
type Server struct {
	config  Config
	logger  *slog.Logger
	handler http.Handler

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// New builds the server mux. /metrics is only registered when the provider
// exports to Prometheus.
func New(config Config) (*Server, error) {
	if config.Health == nil {
		return nil, fmt.Errorf("health checker is required")
	}
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	config.Health.RegisterHealthEndpoints(mux)

	var metrics *instrumentation.Metrics
	if config.Provider != nil && config.Provider.Enabled() {
		metrics = config.Provider.Metrics()
		if h := config.Provider.PrometheusHandler(); h != nil {
			mux.Handle("/metrics", h)
		}
	}
	if config.Hub != nil {
		mux.Handle("/events", config.Hub)
		config.Health.WatchHub(config.Hub)
	}

	return &Server{
		config:  config,
		logger:  logger,
		handler: withMetrics(mux, metrics),
	}, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until Shutdown. It
// returns http.ErrServerClosed after a graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: DefaultReadTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("starting http server", slog.String("addr", ln.Addr().String()))
	return srv.Serve(ln)
}

// Shutdown marks the server as draining and stops it gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.config.Health.SetShuttingDown()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("shutting down http server")
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// statusRecorder captures the response code for the metrics middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withMetrics records request counts and latency. The long-lived event stream
// is not recorded.
func withMetrics(next http.Handler, metrics *instrumentation.Metrics) http.Handler {
	if metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/events" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
