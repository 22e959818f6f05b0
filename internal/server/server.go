// Package server implements the HTTP API: routing, the middleware pipeline,
// and the process lifecycle around the listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/issueboard/issueboard/internal/config"
	"github.com/issueboard/issueboard/internal/storage"
)

// Server owns the HTTP listener and its dependencies.
type Server struct {
	cfg            config.ServerConfig
	apiKey         string
	requestTimeout time.Duration
	log            *zap.Logger
	store          *storage.Store
	repo           *storage.Repository
	requestMetrics *requestMetrics
	mux            *http.ServeMux
	httpServer     *http.Server
	listener       net.Listener
}

// New builds the server and registers its routes.
func New(cfg *config.Config, store *storage.Store, log *zap.Logger) (*Server, error) {
	rm, err := newRequestMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to build request metrics: %w", err)
	}

	s := &Server{
		cfg:            cfg.Server,
		apiKey:         cfg.Auth.APIKey,
		requestTimeout: cfg.Server.RequestTimeout,
		log:            log,
		store:          store,
		repo:           storage.NewRepository(store),
		requestMetrics: rm,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/issues", s.handleListIssues)
	s.mux.HandleFunc("POST /api/issues", s.handleCreateIssue)
	s.mux.HandleFunc("GET /api/issues/{id}", s.handleGetIssue)
	s.mux.HandleFunc("PATCH /api/issues/{id}", s.handleUpdateIssue)
	s.mux.HandleFunc("DELETE /api/issues/{id}", s.handleDeleteIssue)
	s.mux.HandleFunc("PATCH /api/issues/{id}/move", s.handleMoveIssue)
	s.mux.HandleFunc("GET /api/users", s.handleListUsers)
	s.mux.HandleFunc("GET /api/labels", s.handleListLabels)
}

// Handler assembles the full middleware pipeline around the mux, outer first:
// request id, real IP, access log, metrics, panic recovery, per-request
// timeout, CORS, auth, dispatch.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"X-API-Key", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	var h http.Handler = s.requireAPIKey(s.mux)
	h = c.Handler(h)
	h = s.timeout(h)
	h = s.recoverPanic(h)
	h = s.metrics(h)
	h = s.accessLog(h)
	h = s.realIP(h)
	h = s.requestID(h)
	return h
}

// Start binds the listen socket. Separate from Run so tests and callers can
// learn the bound address before serving.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return nil
}

// Addr returns the bound listen address. Valid after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr()
	}
	return s.listener.Addr().String()
}

// Run serves until ctx is canceled, then drains in-flight requests within the
// shutdown timeout. A clean drain returns nil.
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Start(); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", zap.String("addr", s.Addr()))
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.log.Info("shutting down", zap.Duration("timeout", s.cfg.ShutdownTimeout))
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown incomplete: %w", err)
		}
		return nil
	})
	return g.Wait()
}
