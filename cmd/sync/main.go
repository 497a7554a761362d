package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/adamkovacs/foliotrack/internal/config"
	"github.com/adamkovacs/foliotrack/internal/history"
	"github.com/adamkovacs/foliotrack/internal/logger"
	"github.com/adamkovacs/foliotrack/internal/marketdata"
	"github.com/adamkovacs/foliotrack/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dbPath := flag.String("db", "data/foliotrack.db", "path to SQLite database")
	portfolioID := flag.String("portfolio", "", "sync only this portfolio (default: all)")
	dryRun := flag.Bool("dry-run", false, "show pending gaps without writing")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)

	db, err := storage.NewDatabase(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database error: %v\n", err)
		os.Exit(1)
	}
	repo := storage.NewRepository(db)

	portfolios, err := repo.ListPortfolios()
	if err != nil {
		fmt.Fprintf(os.Stderr, "list portfolios error: %v\n", err)
		os.Exit(1)
	}
	if *portfolioID != "" {
		p, err := repo.PortfolioByID(*portfolioID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "portfolio %s not found: %v\n", *portfolioID, err)
			os.Exit(1)
		}
		portfolios = []storage.Portfolio{*p}
	}

	if len(portfolios) == 0 {
		fmt.Println("No portfolios.")
		return
	}

	if *dryRun {
		for _, p := range portfolios {
			printGap(repo, p)
		}
		fmt.Println("Dry run — nothing written.")
		return
	}

	prices := marketdata.NewClient(cfg, log)
	engine := history.NewEngine(repo, repo, prices, cfg, log)
	ctx := context.Background()

	var failed int
	for _, p := range portfolios {
		result, err := engine.Sync(ctx, p.ID, p.UserID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  [FAIL] %s: %v\n", p.Name, err)
			failed++
			continue
		}
		fmt.Printf("  [OK]   %s: %s\n", p.Name, result.Message)
	}

	fmt.Printf("\nDone: %d synced, %d failed.\n", len(portfolios)-failed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func printGap(repo *storage.Repository, p storage.Portfolio) {
	latest, err := repo.LatestHistoryEntry(p.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  %s: read history: %v\n", p.Name, err)
		return
	}
	if latest == nil {
		fmt.Printf("  %s: no history yet, full recompute pending\n", p.Name)
		return
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	gap := int(today.Sub(latest.Date.UTC().Truncate(24*time.Hour)).Hours() / 24)
	if gap <= 0 {
		fmt.Printf("  %s: up to date (last row %s)\n", p.Name, latest.Date.Format("2006-01-02"))
		return
	}
	fmt.Printf("  %s: %d day(s) behind (last row %s)\n", p.Name, gap, latest.Date.Format("2006-01-02"))
}
