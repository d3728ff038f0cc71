// Package server exposes the orchestrator over HTTP and websockets.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rxtech-lab/marketboard/internal/logger"
	"github.com/rxtech-lab/marketboard/internal/market"
	"github.com/rxtech-lab/marketboard/internal/metrics"
	"github.com/rxtech-lab/marketboard/internal/scheduler"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Server routes API requests to an orchestrator and its scheduler.
type Server struct {
	router    *mux.Router
	orch      *market.Orchestrator
	sched     *scheduler.Scheduler
	recorder  *metrics.Recorder
	hub       *Hub
	validate  *validator.Validate
	log       *logger.Logger
	mu        sync.RWMutex
	lifetime  context.Context
	startOnce sync.Once
}

// NewServer builds the router. sched and recorder may be nil; the scheduler
// routes then answer 503 and /metrics is not served.
func NewServer(orch *market.Orchestrator, sched *scheduler.Scheduler, recorder *metrics.Recorder, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}

	log = log.Named("server")

	var observer ClientObserver
	if recorder != nil {
		observer = recorder
	}

	s := &Server{
		router:    mux.NewRouter(),
		orch:      orch,
		sched:     sched,
		recorder:  recorder,
		hub:       NewHub(orch.View, observer, log),
		validate:  validator.New(),
		log:       log,
		mu:        sync.RWMutex{},
		lifetime:  context.Background(),
		startOnce: sync.Once{},
	}

	s.router.Use(loggingMiddleware(log))

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/ticker", s.handleTicker).Methods(http.MethodGet)
	api.HandleFunc("/depth", s.handleDepth).Methods(http.MethodGet)
	api.HandleFunc("/trades", s.handleTrades).Methods(http.MethodGet)
	api.HandleFunc("/tickers", s.handleTickers).Methods(http.MethodGet)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/symbol", s.handleSetSymbol).Methods(http.MethodPut)
	api.HandleFunc("/scheduler", s.handleSchedulerStatus).Methods(http.MethodGet)
	api.HandleFunc("/scheduler", s.handleSchedulerUpdate).Methods(http.MethodPut)

	s.router.HandleFunc("/ws", s.hub.HandleWS).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	if recorder != nil {
		s.router.Handle("/metrics", recorder.Handler()).Methods(http.MethodGet)
	}

	return s
}

// Handler returns the router, e.g. for httptest.NewServer.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start attaches the hub to the orchestrator and runs it until ctx is done.
// Refreshes requested through the API run under ctx. Only the first call has
// an effect.
func (s *Server) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.lifetime = ctx
		s.mu.Unlock()

		unsubscribe := s.orch.Subscribe(s.hub.OnUpdate)

		go s.hub.Run(ctx)
		go func() {
			<-ctx.Done()
			unsubscribe()
		}()
	})
}

// ListenAndServe starts the server on address and blocks until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	s.Start(ctx)

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- httpServer.Serve(listener)
	}()

	s.log.Info("listening", zap.String("address", listener.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}

	return nil
}

func (s *Server) lifetimeContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lifetime
}
