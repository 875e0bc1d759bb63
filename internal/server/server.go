// File: internal/server/server.go

// Package server is the HTTP boundary of the decision service: POST /act
// for one decision step, GET /health for readiness. It owns nothing of the
// pipeline; the agent is consumed as a capability and every pipeline
// failure has already been absorbed by the time a response is written.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/iwa/api/schemas"
	"github.com/xkilldash9x/iwa/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Decider is the decision pipeline as the server sees it: one call per
// step, never an error, at most one action back.
type Decider interface {
	Decide(ctx context.Context, req schemas.DecisionRequest) []schemas.Action
}

// Server wires the decision pipeline to HTTP.
type Server struct {
	cfg     config.ServerConfig
	decider Decider
	logger  *zap.Logger
	httpSrv *http.Server
}

func New(cfg config.ServerConfig, decider Decider, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		decider: decider,
		logger:  logger.Named("server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/act", s.handleAct)

	s.httpSrv = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		Handler:      requestLogging(s.logger, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

// Run serves until the context is cancelled, then drains in-flight
// requests within the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		s.logger.Info("Decision service listening", zap.String("addr", s.httpSrv.Addr))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
		defer cancel()
		s.logger.Info("Shutting down decision service")
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	return group.Wait()
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.ShutdownTimeout > 0 {
		return s.cfg.ShutdownTimeout
	}
	return 10 * time.Second
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decideMargin is how much of the write timeout is reserved for encoding
// and flushing the response after the pipeline returns.
const decideMargin = 2 * time.Second

// handleAct runs one decision step. A malformed body is the only non-2xx
// this endpoint produces; pipeline failures come back as an empty list.
func (s *Server) handleAct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req schemas.DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("Rejecting malformed decision request", zap.Error(err))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Bound the pipeline just inside the write timeout. A fully exhausted
	// model chain can outlast it, and a degraded empty answer that still
	// reaches the harness beats a dead connection.
	ctx := r.Context()
	if s.cfg.WriteTimeout > decideMargin {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.WriteTimeout-decideMargin)
		defer cancel()
	}

	actions := s.decider.Decide(ctx, req)
	if actions == nil {
		actions = []schemas.Action{}
	}
	writeJSON(w, http.StatusOK, actions)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
