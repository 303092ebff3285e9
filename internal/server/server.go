// Package server exposes Prometheus metrics, health and run status over HTTP
// while a long-running ingestion is active.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/leapstack-labs/phonograph/internal/state"
	"github.com/leapstack-labs/phonograph/pkg/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// ShutdownTimeout bounds graceful shutdown once the context is cancelled.
const ShutdownTimeout = 5 * time.Second

// RunLister lists recorded runs. *state.SQLiteStore implements it.
type RunLister interface {
	ListRuns(ctx context.Context, filter state.RunFilter) ([]*core.Run, error)
}

// Config holds configuration for the server.
type Config struct {
	Addr string

	// Running reports whether the ingestion loop is active (optional).
	Running func() bool

	// Runs serves /runs when set.
	Runs RunLister

	// Gatherer defaults to the global Prometheus registry.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// Server serves the operational endpoints.
type Server struct {
	addr     string
	running  func() bool
	runs     RunLister
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// New creates a server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		addr:     cfg.Addr,
		running:  cfg.Running,
		runs:     cfg.Runs,
		gatherer: gatherer,
		logger:   logger,
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/status", s.handleStatus)
	if s.runs != nil {
		r.Get("/runs", s.handleRuns)
	}
	return r
}

// Serve listens on the configured address and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		s.logger.Debug("shutting down metrics server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

type statusResponse struct {
	Running bool `json:"running"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{}
	if s.running != nil {
		resp.Running = s.running()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	filter := state.RunFilter{
		MappingKey: r.URL.Query().Get("mapping"),
		Status:     core.RunStatus(r.URL.Query().Get("status")),
		Limit:      20,
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		filter.Limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list runs", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list runs"})
		return
	}

	if runs == nil {
		runs = []*core.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
