package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/adamkovacs/foliotrack/internal/config"
	"github.com/adamkovacs/foliotrack/internal/logger"
	"github.com/adamkovacs/foliotrack/internal/scheduler"
	"github.com/adamkovacs/foliotrack/internal/storage"
)

type Server struct {
	httpServer *http.Server
	repo       *storage.Repository
	scheduler  *scheduler.Scheduler
	config     *config.Config
	logger     *logger.Logger
}

func NewServer(repo *storage.Repository, sched *scheduler.Scheduler, cfg *config.Config, log *logger.Logger) *Server {
	s := &Server{
		repo:      repo,
		scheduler: sched,
		config:    cfg,
		logger:    log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/portfolios", s.handlePortfolios)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/sync", s.handleSync)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second, // sync can wait on price fetches
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("web server starting", "port", s.config.Web.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
