// Package server exposes the analysis pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KaramelBytes/dataloom-agent/internal/agent"
	"github.com/KaramelBytes/dataloom-agent/internal/logger"
)

// Analyzer runs one question set.
type Analyzer interface {
	Run(ctx context.Context, req agent.Request) (any, error)
}

// Config controls limits of the HTTP surface.
type Config struct {
	Version        string
	RequestTimeout time.Duration
	MaxUploadBytes int64
	// WorkDir is where per-request workspaces are created; empty means os.TempDir.
	WorkDir string
	Debug   bool
}

type Server struct {
	router   *gin.Engine
	analyzer Analyzer
	cfg      Config
}

// New wires the routes and middleware.
func New(a Analyzer, cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 180 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if !cfg.Debug && gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.RedirectTrailingSlash = false
	r.MaxMultipartMemory = cfg.MaxUploadBytes
	s := &Server{router: r, analyzer: a, cfg: cfg}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(requestID(), accessLog(), recovery(), cors())

	s.router.GET("/", s.root)
	s.router.GET("/health", s.health)
	s.router.POST("/api/", s.analyze)
	s.router.POST("/api", s.analyze)
}

// Handler returns the router for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("server.listening", "addr", addr, "version", s.cfg.Version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.L().Info("server.shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
