package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves the WebSocket channel, the HTTP fallback, /metrics and
// /healthz for one Broker.
type Server struct {
	broker   *Broker
	config   *ServerConfig
	router   chi.Router
	upgrader websocket.Upgrader
	logger   *slog.Logger

	// ctx outlives individual connections; in-flight actions keep running
	// after their connection closes.
	ctx    context.Context
	cancel context.CancelFunc

	connsMu  sync.Mutex
	conns    map[*Conn]struct{}
	draining bool

	httpServer *http.Server
}

// New creates a Server for b. A nil config uses DefaultServerConfig; zero
// fields are filled from it. The result is validated before any route is
// mounted.
func New(b *Broker, config *ServerConfig) (*Server, error) {
	config = config.withDefaults()
	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		broker: b,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		logger: config.Logger.With("component", "server"),
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[*Conn]struct{}),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.config.AccessLog {
		r.Use(accessLog(s.logger))
	}

	r.Get(s.config.WebSocketPath, s.HandleWebSocket)
	if !s.config.DisableFallback {
		r.HandleFunc(s.config.FallbackPath, s.handleAction)
		r.Get(s.config.FallbackPath+"/{componentID}", s.handleComponent)
	}
	if !s.config.DisableMetrics {
		r.Handle("/metrics", s.metricsHandler())
	}
	r.Get("/healthz", s.handleHealth)
	return r
}

func (s *Server) metricsHandler() http.Handler {
	if s.config.MetricsGatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(s.config.MetricsGatherer, promhttp.HandlerOpts{})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"sessions":   s.broker.Sessions().Len(),
		"components": s.broker.Components().Len(),
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router returns the chi router so hosts can mount their own pages.
func (s *Server) Router() chi.Router {
	return s.router
}

// Broker returns the broker this server dispatches to.
func (s *Server) Broker() *Broker {
	return s.broker
}

// Config returns the effective configuration.
func (s *Server) Config() *ServerConfig {
	return s.config
}

func (s *Server) track(c *Conn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if s.draining {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *Conn) {
	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()
}

// Connections returns the number of open WebSocket connections.
func (s *Server) Connections() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

// Run starts the server and blocks until SIGINT/SIGTERM or a listen error.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:              s.config.Address,
		Handler:           s,
		ReadHeaderTimeout: s.config.WriteTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			"address", s.config.Address,
			"ws", s.config.WebSocketPath,
			"fallback", !s.config.DisableFallback)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-shutdown:
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown closes every connection and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.connsMu.Lock()
	s.draining = true
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.connsMu.Unlock()

	s.broker.Shutdown()
	for _, c := range conns {
		c.Close()
	}
	s.cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}
	s.logger.Info("server shutdown complete")
	return nil
}
