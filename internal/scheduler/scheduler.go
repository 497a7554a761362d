package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adamkovacs/foliotrack/internal/config"
	"github.com/adamkovacs/foliotrack/internal/history"
	"github.com/adamkovacs/foliotrack/internal/logger"
	"github.com/adamkovacs/foliotrack/internal/notify"
	"github.com/adamkovacs/foliotrack/internal/storage"
)

// Scheduler periodically syncs every portfolio's history and owns the
// per-portfolio locks that keep syncs single-writer. Ad-hoc triggers
// (the web handler, the sync CLI) go through SyncPortfolio so they share
// the same serialization.
type Scheduler struct {
	engine   *history.Engine
	repo     *storage.Repository
	notifier *notify.Notifier
	config   *config.Config
	logger   *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewScheduler(engine *history.Engine, repo *storage.Repository, notifier *notify.Notifier, cfg *config.Config, log *logger.Logger) *Scheduler {
	return &Scheduler{
		engine:   engine,
		repo:     repo,
		notifier: notifier,
		config:   cfg,
		logger:   log,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	interval := s.config.SyncInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", interval.String())

	// Run immediately on start
	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in scheduler cycle", "panic", fmt.Sprint(r))
			s.notifier.NotifySyncFailed("scheduler", fmt.Errorf("panic: %v", r))
		}
	}()

	portfolios, err := s.repo.ListPortfolios()
	if err != nil {
		s.logger.Error("list portfolios", "error", err)
		return
	}

	s.logger.Info("starting sync cycle", "portfolios", len(portfolios))

	for _, p := range portfolios {
		if ctx.Err() != nil {
			return
		}

		result, err := s.SyncPortfolio(ctx, p.ID, p.UserID)
		if err != nil {
			s.logger.Error("sync portfolio history", "portfolio", p.ID, "error", err)
			s.notifier.NotifySyncFailed(p.Name, err)
			continue
		}
		s.logger.Info("portfolio synced",
			"portfolio", p.ID, "status", result.Status, "days", result.DaysSynced)
	}

	s.logger.Info("sync cycle completed")
}

// SyncPortfolio runs one history sync, holding that portfolio's lock.
// Two concurrent syncs for the same portfolio would race on the latest
// stored row and upsert conflicting overlapping ranges.
func (s *Scheduler) SyncPortfolio(ctx context.Context, portfolioID, userID string) (history.SyncResult, error) {
	lock := s.portfolioLock(portfolioID)
	lock.Lock()
	defer lock.Unlock()

	return s.engine.Sync(ctx, portfolioID, userID)
}

func (s *Scheduler) portfolioLock(portfolioID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[portfolioID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[portfolioID] = lock
	}
	return lock
}
