package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adamkovacs/foliotrack/internal/config"
	"github.com/adamkovacs/foliotrack/internal/history"
	"github.com/adamkovacs/foliotrack/internal/logger"
	"github.com/adamkovacs/foliotrack/internal/marketdata"
	"github.com/adamkovacs/foliotrack/internal/notify"
	"github.com/adamkovacs/foliotrack/internal/scheduler"
	"github.com/adamkovacs/foliotrack/internal/storage"
	"github.com/adamkovacs/foliotrack/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dbPath := flag.String("db", "data/foliotrack.db", "path to SQLite database")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)
	log.Info("starting foliotrack", "base_currency", cfg.Portfolio.BaseCurrency)

	db, err := storage.NewDatabase(*dbPath)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	repo := storage.NewRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prices := marketdata.NewClient(cfg, log)
	engine := history.NewEngine(repo, repo, prices, cfg, log)
	notifier := notify.NewNotifier(cfg, log)
	sched := scheduler.NewScheduler(engine, repo, notifier, cfg, log)
	webServer := web.NewServer(repo, sched, cfg, log)

	go sched.Run(ctx)

	go func() {
		if err := webServer.Start(); err != nil {
			log.Error("web server error", "error", err)
		}
	}()

	notifier.NotifyStatus("📈 foliotrack started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", "signal", sig.String())

	cancel() // stop scheduler

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := webServer.Shutdown(shutdownCtx); err != nil {
		log.Error("web server shutdown error", "error", err)
	}

	notifier.NotifyStatus("🛑 foliotrack stopped")
	log.Info("foliotrack stopped")
}
