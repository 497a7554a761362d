package history

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adamkovacs/foliotrack/internal/marketdata"
)

// backfillDays bounds how far back a lookup searches for the nearest
// available close before giving up on a date.
const backfillDays = 7

// benchmarkKey is the cache slot for the benchmark index series.
const benchmarkKey = "__benchmark__"

// priceCache holds per-symbol daily closes for one sync run. It is built
// once per run and discarded with it.
type priceCache struct {
	series map[string]map[time.Time]decimal.Decimal
}

// closeOn returns the close for symbol on d, backward-filling up to
// backfillDays calendar days. The second return is false when no close
// exists within the window.
func (c *priceCache) closeOn(symbol string, d time.Time) (decimal.Decimal, bool) {
	prices, ok := c.series[symbol]
	if !ok {
		return decimal.Zero, false
	}
	for i := 0; i <= backfillDays; i++ {
		if px, ok := prices[d.AddDate(0, 0, -i)]; ok {
			return px, true
		}
	}
	return decimal.Zero, false
}

// buildPriceCache fetches every ticker, FX pair and the benchmark
// concurrently. A failed fetch leaves that symbol's slot empty and never
// aborts the others. Symbols are fetched from one day before the first
// computed day (plus the backfill window) so the iterator has a previous
// close to lean on; the benchmark reaches back to inception because its
// cumulative return is anchored there.
func (e *Engine) buildPriceCache(ctx context.Context, symbols []string, firstDay, today, inception time.Time) *priceCache {
	cache := &priceCache{series: make(map[string]map[time.Time]decimal.Decimal)}

	from := firstDay.AddDate(0, 0, -(backfillDays + 1))
	benchFrom := inception.AddDate(0, 0, -backfillDays)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	store := func(key string, points []marketdata.PricePoint) {
		series := make(map[time.Time]decimal.Decimal, len(points))
		for _, pt := range points {
			series[day(pt.Date)] = pt.Close
		}
		mu.Lock()
		cache.series[key] = series
		mu.Unlock()
	}

	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			points, err := e.prices.HistoricalPrices(ctx, sym, from, today)
			if err != nil {
				e.logger.Error("fetch price history", "symbol", sym, "error", err)
				return
			}
			store(sym, points)
		}(sym)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		points, err := e.prices.HistoricalBenchmark(ctx, benchFrom, today)
		if err != nil {
			e.logger.Error("fetch benchmark history", "error", err)
			return
		}
		store(benchmarkKey, points)
	}()

	wg.Wait()
	return cache
}
