// Package server exposes the examscan HTTP API: document upload and
// processing, job progress, extracted regions and questions, and manual
// region correction.
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

	"github.com/examscan/examscan/internal/correction"
	"github.com/examscan/examscan/internal/ingest"
	"github.com/examscan/examscan/internal/notify"
	"github.com/examscan/examscan/internal/pipeline"
	"github.com/examscan/examscan/internal/procerr"
	"github.com/examscan/examscan/internal/store"
)

// Config holds server configuration.
type Config struct {
	// Addr is the bind address (default 127.0.0.1:8080).
	Addr string

	Store       store.Store
	Runner      *pipeline.Runner
	Ingestor    *ingest.Ingestor
	Broker      *notify.Broker
	Diagnostics *procerr.Diagnostics
	Corrector   *correction.Corrector
	Logger      *slog.Logger
}

// Server is the examscan HTTP server.
type Server struct {
	httpServer  *http.Server
	store       store.Store
	runner      *pipeline.Runner
	ingestor    *ingest.Ingestor
	broker      *notify.Broker
	diagnostics *procerr.Diagnostics
	corrector   *correction.Corrector
	logger      *slog.Logger

	mu       sync.RWMutex
	listener net.Listener
	running  bool
}

// New creates a server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("server requires a store")
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	corrector := cfg.Corrector
	if corrector == nil {
		corrector = correction.NewCorrector(correction.NewAuditLog())
	}

	s := &Server{
		store:       cfg.Store,
		runner:      cfg.Runner,
		ingestor:    cfg.Ingestor,
		broker:      cfg.Broker,
		diagnostics: cfg.Diagnostics,
		corrector:   corrector,
		logger:      cfg.Logger.With("component", "server"),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Start begins listening. It returns once the listener is bound; the
// serve loop runs in a goroutine until Stop.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	s.running = true
	s.mu.Unlock()

	s.logger.Info("server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listen address, useful when binding port 0.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("server stopping")
	return s.httpServer.Shutdown(ctx)
}
