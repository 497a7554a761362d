package history

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamkovacs/foliotrack/internal/config"
	"github.com/adamkovacs/foliotrack/internal/logger"
	"github.com/adamkovacs/foliotrack/internal/marketdata"
	"github.com/adamkovacs/foliotrack/internal/storage"
)

// --- fakes ---

type fakeLedger struct {
	portfolio *storage.Portfolio
	trades    []storage.Trade
	cash      []storage.CashTransaction
	tradesErr error
	cashErr   error
}

func (f *fakeLedger) PortfolioByID(id string) (*storage.Portfolio, error) {
	if f.portfolio == nil {
		return nil, errors.New("not found")
	}
	return f.portfolio, nil
}

func (f *fakeLedger) TradesByPortfolio(portfolioID string) ([]storage.Trade, error) {
	if f.tradesErr != nil {
		return nil, f.tradesErr
	}
	out := make([]storage.Trade, len(f.trades))
	copy(out, f.trades)
	return out, nil
}

func (f *fakeLedger) CashTransactionsByPortfolio(portfolioID string) ([]storage.CashTransaction, error) {
	if f.cashErr != nil {
		return nil, f.cashErr
	}
	out := make([]storage.CashTransaction, len(f.cash))
	copy(out, f.cash)
	return out, nil
}

type fakeStore struct {
	mu        sync.Mutex
	entries   map[string]storage.HistoryEntry // keyed by date
	upserts   int
	upsertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]storage.HistoryEntry)}
}

func (f *fakeStore) LatestHistoryEntry(portfolioID string) (*storage.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *storage.HistoryEntry
	for _, e := range f.entries {
		e := e
		if latest == nil || e.Date.After(latest.Date) {
			latest = &e
		}
	}
	return latest, nil
}

func (f *fakeStore) LatestHistoryEntryBefore(portfolioID string, day time.Time) (*storage.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *storage.HistoryEntry
	for _, e := range f.entries {
		e := e
		if !e.Date.Before(day) {
			continue
		}
		if latest == nil || e.Date.After(latest.Date) {
			latest = &e
		}
	}
	return latest, nil
}

func (f *fakeStore) UpsertHistoryEntries(entries []storage.HistoryEntry) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	for _, e := range entries {
		e.UpdatedAt = time.Now()
		f.entries[e.Date.Format("2006-01-02")] = e
	}
	return nil
}

func (f *fakeStore) sortedEntries() []storage.HistoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storage.HistoryEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

type fakePrices struct {
	mu       sync.Mutex
	series   map[string][]marketdata.PricePoint
	bench    []marketdata.PricePoint
	errs     map[string]error
	benchErr error
	fetched  []string
}

func (f *fakePrices) HistoricalPrices(ctx context.Context, symbol string, from, to time.Time) ([]marketdata.PricePoint, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, symbol)
	f.mu.Unlock()

	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	var out []marketdata.PricePoint
	for _, pt := range f.series[symbol] {
		if !pt.Date.Before(from) && !pt.Date.After(to) {
			out = append(out, pt)
		}
	}
	return out, nil
}

func (f *fakePrices) HistoricalBenchmark(ctx context.Context, from, to time.Time) ([]marketdata.PricePoint, error) {
	if f.benchErr != nil {
		return nil, f.benchErr
	}
	var out []marketdata.PricePoint
	for _, pt := range f.bench {
		if !pt.Date.Before(from) && !pt.Date.After(to) {
			out = append(out, pt)
		}
	}
	return out, nil
}

// --- helpers ---

func onDay(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// flatSeries produces one close per calendar day over [from, to].
func flatSeries(from, to string, px string) []marketdata.PricePoint {
	var points []marketdata.PricePoint
	for d := onDay(from); !d.After(onDay(to)); d = d.AddDate(0, 0, 1) {
		points = append(points, marketdata.PricePoint{Date: d, Close: dec(px)})
	}
	return points
}

func testPortfolio() *storage.Portfolio {
	return &storage.Portfolio{ID: "p1", UserID: "u1", Name: "main", BaseCurrency: "USD"}
}

func newTestEngine(ledger *fakeLedger, store *fakeStore, prices *fakePrices, today string) *Engine {
	cfg := &config.Config{}
	config.SetDefaults(cfg)
	e := NewEngine(ledger, store, prices, cfg, logger.New("error"))
	e.now = func() time.Time { return onDay(today) }
	return e
}

func buy(ticker, qty, price, date string) storage.Trade {
	return storage.Trade{
		Ticker:    ticker,
		Action:    storage.ActionBuy,
		Quantity:  dec(qty),
		Price:     dec(price),
		TradeDate: onDay(date),
		CreatedAt: time.Now().Add(-time.Hour),
		UpdatedAt: time.Now().Add(-time.Hour),
	}
}

func deposit(currency, amount, date string) storage.CashTransaction {
	return storage.CashTransaction{
		Currency:  currency,
		Amount:    dec(amount),
		Type:      storage.CashDeposit,
		Date:      onDay(date),
		CreatedAt: time.Now().Add(-time.Hour),
		UpdatedAt: time.Now().Add(-time.Hour),
	}
}

// --- tests ---

func TestSyncSingleBuyFlatPrice(t *testing.T) {
	ledger := &fakeLedger{
		portfolio: testPortfolio(),
		trades:    []storage.Trade{buy("XCORP", "10", "100", "2024-03-11")},
	}
	prices := &fakePrices{
		series: map[string][]marketdata.PricePoint{
			"XCORP": flatSeries("2024-03-01", "2024-03-15", "100"),
		},
	}
	store := newFakeStore()

	e := newTestEngine(ledger, store, prices, "2024-03-15")
	result, err := e.Sync(context.Background(), "p1", "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, result.Status)
	assert.Equal(t, 5, result.DaysSynced)

	entries := store.sortedEntries()
	require.Len(t, entries, 5)

	assert.True(t, entries[0].TotalValue.Equal(dec("1000")),
		"day 1 total = %s", entries[0].TotalValue)
	for _, entry := range entries {
		assert.True(t, entry.DailyReturn.IsZero(),
			"flat price must yield zero return on %s, got %s", entry.Date.Format("2006-01-02"), entry.DailyReturn)
	}
	assert.True(t, entries[4].CumulativeTwr.IsZero(),
		"cumulative TWR after day 5 = %s", entries[4].CumulativeTwr)
}

func TestSyncDepositAndBuySameDay(t *testing.T) {
	ledger := &fakeLedger{
		portfolio: testPortfolio(),
		trades:    []storage.Trade{buy("YCORP", "5", "100", "2024-03-11")},
		cash:      []storage.CashTransaction{deposit("USD", "1000", "2024-03-11")},
	}
	prices := &fakePrices{
		series: map[string][]marketdata.PricePoint{
			"YCORP": flatSeries("2024-03-01", "2024-03-12", "100"),
		},
	}
	store := newFakeStore()

	e := newTestEngine(ledger, store, prices, "2024-03-12")
	_, err := e.Sync(context.Background(), "p1", "u1")
	require.NoError(t, err)

	entries := store.sortedEntries()
	require.Len(t, entries, 2)

	// Cost basis is the deposit alone, the purchase is not double-counted.
	assert.True(t, entries[0].CostBasis.Equal(dec("1000")), "cost basis = %s", entries[0].CostBasis)
	// 500 cash left plus the 500 position.
	assert.True(t, entries[0].TotalValue.Equal(dec("1000")), "total = %s", entries[0].TotalValue)
	// The deposit must not read as a gain.
	assert.True(t, entries[0].DailyReturn.IsZero(), "daily return = %s", entries[0].DailyReturn)
	assert.True(t, entries[1].TotalValue.Equal(dec("1000")))
}

func TestSyncCumulativeTwrChainsDailyReturns(t *testing.T) {
	ledger := &fakeLedger{
		portfolio: testPortfolio(),
		trades:    []storage.Trade{buy("XCORP", "5", "100", "2024-03-11")},
		cash: []storage.CashTransaction{
			deposit("USD", "1000", "2024-03-11"),
			deposit("USD", "500", "2024-03-13"),
		},
	}
	prices := &fakePrices{
		series: map[string][]marketdata.PricePoint{
			"XCORP": {
				{Date: onDay("2024-03-11"), Close: dec("100")},
				{Date: onDay("2024-03-12"), Close: dec("110")},
				{Date: onDay("2024-03-13"), Close: dec("105")},
				{Date: onDay("2024-03-14"), Close: dec("120")},
				{Date: onDay("2024-03-15"), Close: dec("115")},
			},
		},
	}
	store := newFakeStore()

	e := newTestEngine(ledger, store, prices, "2024-03-15")
	_, err := e.Sync(context.Background(), "p1", "u1")
	require.NoError(t, err)

	entries := store.sortedEntries()
	require.Len(t, entries, 5)

	product := 1.0
	for _, entry := range entries {
		product *= 1 + entry.DailyReturn.InexactFloat64()
	}
	final := entries[len(entries)-1].CumulativeTwr.InexactFloat64()
	assert.InDelta(t, product-1, final, 1e-9)
}

func TestSyncSplitDepositFlowInvariance(t *testing.T) {
	trades := []storage.Trade{buy("XCORP", "5", "100", "2024-03-11")}
	prices := func() *fakePrices {
		return &fakePrices{
			series: map[string][]marketdata.PricePoint{
				"XCORP": {
					{Date: onDay("2024-03-11"), Close: dec("100")},
					{Date: onDay("2024-03-12"), Close: dec("130")},
					{Date: onDay("2024-03-13"), Close: dec("90")},
				},
			},
		}
	}

	run := func(cash []storage.CashTransaction) []storage.HistoryEntry {
		ledger := &fakeLedger{portfolio: testPortfolio(), trades: trades, cash: cash}
		store := newFakeStore()
		e := newTestEngine(ledger, store, prices(), "2024-03-13")
		_, err := e.Sync(context.Background(), "p1", "u1")
		require.NoError(t, err)
		return store.sortedEntries()
	}

	single := run([]storage.CashTransaction{deposit("USD", "1000", "2024-03-12")})
	split := run([]storage.CashTransaction{
		deposit("USD", "379.25", "2024-03-12"),
		deposit("USD", "620.75", "2024-03-12"),
	})

	require.Len(t, split, len(single))
	for i := range single {
		assert.True(t, single[i].DailyReturn.Equal(split[i].DailyReturn),
			"daily return diverged on %s: %s vs %s",
			single[i].Date.Format("2006-01-02"), single[i].DailyReturn, split[i].DailyReturn)
		assert.True(t, single[i].CumulativeTwr.Equal(split[i].CumulativeTwr),
			"cumulative TWR diverged on %s", single[i].Date.Format("2006-01-02"))
	}
}

func TestSyncIdempotence(t *testing.T) {
	ledger := &fakeLedger{
		portfolio: testPortfolio(),
		trades:    []storage.Trade{buy("XCORP", "10", "100", "2024-03-11")},
	}
	prices := &fakePrices{
		series: map[string][]marketdata.PricePoint{
			"XCORP": flatSeries("2024-03-01", "2024-03-15", "100"),
		},
	}
	store := newFakeStore()

	e := newTestEngine(ledger, store, prices, "2024-03-15")

	first, err := e.Sync(context.Background(), "p1", "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, first.Status)
	before := store.sortedEntries()

	second, err := e.Sync(context.Background(), "p1", "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusUpToDate, second.Status)
	assert.Equal(t, 1, store.upserts)

	after := store.sortedEntries()
	require.Len(t, after, len(before))
	for i := range before {
		assert.True(t, before[i].TotalValue.Equal(after[i].TotalValue))
		assert.True(t, before[i].CumulativeTwr.Equal(after[i].CumulativeTwr))
	}
}

func TestSyncResumeEquivalence(t *testing.T) {
	trades := []storage.Trade{buy("XCORP", "5", "100", "2024-03-11")}
	cash := []storage.CashTransaction{
		deposit("USD", "1000", "2024-03-11"),
		deposit("USD", "250", "2024-03-14"),
	}
	series := map[string][]marketdata.PricePoint{
		"XCORP": {
			{Date: onDay("2024-03-11"), Close: dec("100")},
			{Date: onDay("2024-03-12"), Close: dec("108")},
			{Date: onDay("2024-03-13"), Close: dec("97")},
			{Date: onDay("2024-03-14"), Close: dec("112")},
			{Date: onDay("2024-03-15"), Close: dec("118")},
		},
	}

	// One pass over all five days.
	onePassStore := newFakeStore()
	e := newTestEngine(&fakeLedger{portfolio: testPortfolio(), trades: trades, cash: cash}, onePassStore, &fakePrices{series: series}, "2024-03-15")
	_, err := e.Sync(context.Background(), "p1", "u1")
	require.NoError(t, err)

	// Same ledger computed in two passes with a resume in between.
	resumedStore := newFakeStore()
	e2 := newTestEngine(&fakeLedger{portfolio: testPortfolio(), trades: trades, cash: cash}, resumedStore, &fakePrices{series: series}, "2024-03-13")
	_, err = e2.Sync(context.Background(), "p1", "u1")
	require.NoError(t, err)
	require.Len(t, resumedStore.sortedEntries(), 3)

	e2.now = func() time.Time { return onDay("2024-03-15") }
	_, err = e2.Sync(context.Background(), "p1", "u1")
	require.NoError(t, err)

	onePass := onePassStore.sortedEntries()
	resumed := resumedStore.sortedEntries()
	require.Len(t, resumed, len(onePass))

	last := len(onePass) - 1
	assert.InDelta(t, onePass[last].TotalValue.InexactFloat64(), resumed[last].TotalValue.InexactFloat64(), 1e-9)
	assert.InDelta(t, onePass[last].CumulativeTwr.InexactFloat64(), resumed[last].CumulativeTwr.InexactFloat64(), 1e-12)
	assert.InDelta(t, onePass[last].CostBasis.InexactFloat64(), resumed[last].CostBasis.InexactFloat64(), 1e-9)
}

func TestSyncBenchmarkCumulative(t *testing.T) {
	ledger := &fakeLedger{
		portfolio: testPortfolio(),
		cash:      []storage.CashTransaction{deposit("USD", "1000", "2024-03-11")},
	}
	prices := &fakePrices{
		bench: []marketdata.PricePoint{
			{Date: onDay("2024-03-11"), Close: dec("100")},
			{Date: onDay("2024-03-12"), Close: dec("104")},
			// 13th missing: a non-trading day, factor carries over.
			{Date: onDay("2024-03-14"), Close: dec("110")},
		},
	}
	store := newFakeStore()

	e := newTestEngine(ledger, store, prices, "2024-03-14")
	_, err := e.Sync(context.Background(), "p1", "u1")
	require.NoError(t, err)

	entries := store.sortedEntries()
	require.Len(t, entries, 4)
	assert.True(t, entries[0].BenchCumulative.IsZero())
	assert.True(t, entries[1].BenchCumulative.Equal(dec("0.04")), "bench = %s", entries[1].BenchCumulative)
	assert.True(t, entries[2].BenchCumulative.Equal(dec("0.04")), "backfilled bench = %s", entries[2].BenchCumulative)
	assert.True(t, entries[3].BenchCumulative.Equal(dec("0.1")), "bench = %s", entries[3].BenchCumulative)
}

func TestSyncPriceFetchFailureDegradesGracefully(t *testing.T) {
	ledger := &fakeLedger{
		portfolio: testPortfolio(),
		trades:    []storage.Trade{buy("XCORP", "10", "0", "2024-03-11")},
		cash:      []storage.CashTransaction{deposit("USD", "1000", "2024-03-11")},
	}
	prices := &fakePrices{
		errs:     map[string]error{"XCORP": errors.New("provider down")},
		benchErr: errors.New("provider down"),
	}
	store := newFakeStore()

	e := newTestEngine(ledger, store, prices, "2024-03-12")
	result, err := e.Sync(context.Background(), "p1", "u1")
	require.NoError(t, err, "a single symbol failure must not abort the sync")
	assert.Equal(t, StatusSynced, result.Status)

	// The unpriced position contributes zero; cash still counts.
	entries := store.sortedEntries()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].TotalValue.Equal(dec("1000")), "total = %s", entries[0].TotalValue)
}

func TestSyncMultiCurrencyConversion(t *testing.T) {
	ledger := &fakeLedger{
		portfolio: testPortfolio(),
		cash:      []storage.CashTransaction{deposit("EUR", "1000", "2024-03-11")},
	}
	prices := &fakePrices{
		series: map[string][]marketdata.PricePoint{
			"EURUSD=X": flatSeries("2024-03-01", "2024-03-12", "1.1"),
		},
	}
	store := newFakeStore()

	e := newTestEngine(ledger, store, prices, "2024-03-11")
	_, err := e.Sync(context.Background(), "p1", "u1")
	require.NoError(t, err)

	entries := store.sortedEntries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].TotalValue.Equal(dec("1100")), "total = %s", entries[0].TotalValue)
	assert.True(t, entries[0].CostBasis.Equal(dec("1100")), "cost basis = %s", entries[0].CostBasis)
	assert.Contains(t, prices.fetched, "EURUSD=X")
}

func TestSyncNoActivity(t *testing.T) {
	ledger := &fakeLedger{portfolio: testPortfolio()}
	e := newTestEngine(ledger, newFakeStore(), &fakePrices{}, "2024-03-15")

	result, err := e.Sync(context.Background(), "p1", "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusNoActivity, result.Status)
}

func TestSyncUserMismatch(t *testing.T) {
	ledger := &fakeLedger{portfolio: testPortfolio()}
	e := newTestEngine(ledger, newFakeStore(), &fakePrices{}, "2024-03-15")

	_, err := e.Sync(context.Background(), "p1", "intruder")
	require.Error(t, err)
}

func TestSyncFatalLedgerErrors(t *testing.T) {
	ledger := &fakeLedger{
		portfolio: testPortfolio(),
		tradesErr: errors.New("db gone"),
	}
	e := newTestEngine(ledger, newFakeStore(), &fakePrices{}, "2024-03-15")

	_, err := e.Sync(context.Background(), "p1", "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load trades")
}

func TestSyncFatalWriteError(t *testing.T) {
	ledger := &fakeLedger{
		portfolio: testPortfolio(),
		cash:      []storage.CashTransaction{deposit("USD", "1000", "2024-03-15")},
	}
	store := newFakeStore()
	store.upsertErr = errors.New("disk full")

	e := newTestEngine(ledger, store, &fakePrices{}, "2024-03-15")
	_, err := e.Sync(context.Background(), "p1", "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write history entries")
}

func TestFetchSymbolsIncludesPairsOnce(t *testing.T) {
	trades := []storage.Trade{
		{Ticker: "XCORP", Currency: "USD"},
		{Ticker: "YCORP", Currency: "EUR"},
		{Ticker: "XCORP", Currency: "USD"},
	}
	cash := []storage.CashTransaction{
		{Currency: "EUR"},
		{Currency: "HUF"},
		{Currency: "USD"},
	}

	symbols := fetchSymbols(trades, cash, "USD")
	assert.Equal(t, []string{"EURUSD=X", "HUFUSD=X", "XCORP", "YCORP"}, symbols)
}
