package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/adamkovacs/foliotrack/internal/config"
	"github.com/adamkovacs/foliotrack/internal/logger"
	"github.com/adamkovacs/foliotrack/internal/marketdata"
	"github.com/adamkovacs/foliotrack/internal/storage"
)

// Ledger reads a portfolio and its activity. Both list reads must return
// rows ascending by date.
type Ledger interface {
	PortfolioByID(id string) (*storage.Portfolio, error)
	TradesByPortfolio(portfolioID string) ([]storage.Trade, error)
	CashTransactionsByPortfolio(portfolioID string) ([]storage.CashTransaction, error)
}

// HistoryStore persists computed history rows, unique on (portfolio, date).
type HistoryStore interface {
	LatestHistoryEntry(portfolioID string) (*storage.HistoryEntry, error)
	LatestHistoryEntryBefore(portfolioID string, day time.Time) (*storage.HistoryEntry, error)
	UpsertHistoryEntries(entries []storage.HistoryEntry) error
}

// PriceSource serves sparse historical daily closes.
type PriceSource interface {
	HistoricalPrices(ctx context.Context, symbol string, from, to time.Time) ([]marketdata.PricePoint, error)
	HistoricalBenchmark(ctx context.Context, from, to time.Time) ([]marketdata.PricePoint, error)
}

const (
	StatusSynced     = "synced"
	StatusUpToDate   = "up_to_date"
	StatusNoActivity = "no_activity"
)

type SyncResult struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	DaysSynced int    `json:"days_synced,omitempty"`
}

// Engine reconstructs a portfolio's day-by-day value history from its
// trade and cash ledgers and compounds its time-weighted return against
// a benchmark. Each Sync call resumes from the last stored row; all
// working state is local to the call. Concurrent Sync calls for the same
// portfolio are not safe, the caller serializes them per portfolio.
type Engine struct {
	ledger      Ledger
	store       HistoryStore
	prices      PriceSource
	logger      *logger.Logger
	defaultBase string
	now         func() time.Time
}

func NewEngine(ledger Ledger, store HistoryStore, prices PriceSource, cfg *config.Config, log *logger.Logger) *Engine {
	return &Engine{
		ledger:      ledger,
		store:       store,
		prices:      prices,
		logger:      log,
		defaultBase: cfg.Portfolio.BaseCurrency,
		now:         time.Now,
	}
}

// Sync brings the portfolio's history up to today. Ledger and history
// reads and the final write are fatal on error; individual price fetch
// failures only degrade valuation fidelity for the affected symbol.
func (e *Engine) Sync(ctx context.Context, portfolioID, userID string) (SyncResult, error) {
	p, err := e.ledger.PortfolioByID(portfolioID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("load portfolio: %w", err)
	}
	if userID != "" && p.UserID != userID {
		return SyncResult{}, fmt.Errorf("portfolio %s does not belong to user %s", portfolioID, userID)
	}
	base := p.BaseCurrency
	if base == "" {
		base = e.defaultBase
	}

	// The two ledger reads are independent; fetch them together.
	var (
		trades    []storage.Trade
		cash      []storage.CashTransaction
		tradesErr error
		cashErr   error
		wg        sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		trades, tradesErr = e.ledger.TradesByPortfolio(portfolioID)
	}()
	go func() {
		defer wg.Done()
		cash, cashErr = e.ledger.CashTransactionsByPortfolio(portfolioID)
	}()
	wg.Wait()
	if tradesErr != nil {
		return SyncResult{}, fmt.Errorf("load trades: %w", tradesErr)
	}
	if cashErr != nil {
		return SyncResult{}, fmt.Errorf("load cash transactions: %w", cashErr)
	}

	sortLedgers(trades, cash)
	for i := range trades {
		if trades[i].Currency == "" {
			trades[i].Currency = base
		}
	}

	if len(trades) == 0 && len(cash) == 0 {
		return SyncResult{Status: StatusNoActivity, Message: "no ledger activity to sync"}, nil
	}

	today := day(e.now())

	latest, err := e.store.LatestHistoryEntry(portfolioID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("load latest history entry: %w", err)
	}

	if latest != nil && day(latest.Date).Equal(today) {
		if !ledgerDirtySince(trades, cash, latest.UpdatedAt) {
			return SyncResult{Status: StatusUpToDate, Message: "history already up to date"}, nil
		}
		// Today's stored row predates new ledger activity; recompute it
		// from the row before it.
		latest, err = e.store.LatestHistoryEntryBefore(portfolioID, today)
		if err != nil {
			return SyncResult{}, fmt.Errorf("load previous history entry: %w", err)
		}
	}

	inception, ok := inceptionDay(trades, cash)
	if !ok {
		return SyncResult{Status: StatusNoActivity, Message: "no ledger activity to sync"}, nil
	}

	var st syncState
	if latest == nil {
		st = freshState(inception)
	} else {
		st = resumeState(latest, trades, cash)
	}

	symbols := fetchSymbols(trades, cash, base)
	cache := e.buildPriceCache(ctx, symbols, st.firstDay, today, inception)

	entries := iterateDays(&st, trades, cash, cache, base, portfolioID, inception, today, e.logger)
	if len(entries) == 0 {
		return SyncResult{Status: StatusUpToDate, Message: "no new gaps to sync"}, nil
	}

	if err := e.store.UpsertHistoryEntries(entries); err != nil {
		return SyncResult{}, fmt.Errorf("write history entries: %w", err)
	}

	return SyncResult{
		Status:     StatusSynced,
		Message:    fmt.Sprintf("synced %d day(s)", len(entries)),
		DaysSynced: len(entries),
	}, nil
}

// fetchSymbols lists every symbol the run needs prices for: each ticker
// ever traded plus one FX pair per non-base currency seen in cash.
func fetchSymbols(trades []storage.Trade, cash []storage.CashTransaction, base string) []string {
	seen := make(map[string]struct{})
	var symbols []string

	for _, t := range trades {
		if _, ok := seen[t.Ticker]; ok {
			continue
		}
		seen[t.Ticker] = struct{}{}
		symbols = append(symbols, t.Ticker)
	}
	addPair := func(currency string) {
		if currency == "" || currency == base {
			return
		}
		pair := pairSymbol(currency, base)
		if _, ok := seen[pair]; ok {
			return
		}
		seen[pair] = struct{}{}
		symbols = append(symbols, pair)
	}
	for _, tx := range cash {
		addPair(tx.Currency)
	}
	for _, t := range trades {
		addPair(t.Currency)
	}

	sort.Strings(symbols)
	return symbols
}

// day truncates to a calendar date in UTC; all date keys in the engine
// go through here so map lookups and comparisons line up.
func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
