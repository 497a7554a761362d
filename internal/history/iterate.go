package history

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/adamkovacs/foliotrack/internal/logger"
	"github.com/adamkovacs/foliotrack/internal/storage"
)

// iterateDays walks every calendar day from the state's first day through
// today, applying that day's ledger activity, valuing the portfolio in
// the base currency and compounding the time-weighted return. Each day
// depends on the previous day's total value, so the walk is strictly
// sequential. Anomalies inside the loop never raise: missing prices
// contribute zero, oversized sells floor at zero.
func iterateDays(st *syncState, trades []storage.Trade, cash []storage.CashTransaction, cache *priceCache, base, portfolioID string, inception, today time.Time, log *logger.Logger) []storage.HistoryEntry {
	tradesByDay := make(map[time.Time][]storage.Trade, len(trades))
	for _, t := range trades {
		d := day(t.TradeDate)
		tradesByDay[d] = append(tradesByDay[d], t)
	}
	cashByDay := make(map[time.Time][]storage.CashTransaction, len(cash))
	for _, tx := range cash {
		d := day(tx.Date)
		cashByDay[d] = append(cashByDay[d], tx)
	}

	one := decimal.NewFromInt(1)
	benchInception, haveBenchInception := cache.closeOn(benchmarkKey, inception)

	var entries []storage.HistoryEntry
	for d := st.firstDay; !d.After(today); d = d.AddDate(0, 0, 1) {
		// Cash first. Deposits and withdrawals are external flows: they
		// move the cost basis and are excluded from the day's return via
		// the flow accumulator. Dividends, interest, fees, taxes and
		// adjustments only move the balance.
		externalFlow := decimal.Zero
		for _, tx := range cashByDay[d] {
			st.cash[tx.Currency] = st.cash[tx.Currency].Add(tx.Amount)

			if tx.Type != storage.CashDeposit && tx.Type != storage.CashWithdrawal {
				continue
			}
			converted, ok := cache.toBase(tx.Amount, tx.Currency, base, d)
			if !ok {
				log.Warn("no FX rate for external flow", "currency", tx.Currency, "date", d.Format("2006-01-02"))
				continue
			}
			externalFlow = externalFlow.Add(converted)
			st.costBasis = st.costBasis.Add(converted)
		}

		for _, t := range tradesByDay[d] {
			applyTrade(st.holdings, st.cash, t)
		}

		// Value positions and cash balances in base currency. A symbol
		// with no close inside the backfill window contributes zero.
		total := decimal.Zero
		for ticker, shares := range st.holdings {
			if !shares.IsPositive() {
				continue
			}
			px, ok := cache.closeOn(ticker, d)
			if !ok {
				continue
			}
			total = total.Add(shares.Mul(px))
		}
		for currency, balance := range st.cash {
			if balance.IsZero() {
				continue
			}
			converted, ok := cache.toBase(balance, currency, base, d)
			if !ok {
				continue
			}
			total = total.Add(converted)
		}

		// Flow-adjusted daily return. Adding the day's external flow to
		// the denominator keeps a deposit from reading as a gain.
		denominator := st.prevTotal.Add(externalFlow)
		dailyReturn := decimal.Zero
		if denominator.IsPositive() {
			dailyReturn = total.Sub(denominator).Div(denominator)
		}
		st.twrFactor = st.twrFactor.Mul(one.Add(dailyReturn))

		if haveBenchInception && benchInception.IsPositive() {
			if benchToday, ok := cache.closeOn(benchmarkKey, d); ok {
				st.benchFactor = benchToday.Div(benchInception)
			}
		}

		entries = append(entries, storage.HistoryEntry{
			PortfolioID:     portfolioID,
			Date:            d,
			TotalValue:      total,
			CostBasis:       st.costBasis,
			RealizedPnL:     st.realizedPnL,
			DailyReturn:     dailyReturn,
			CumulativeTwr:   st.twrFactor.Sub(one),
			BenchCumulative: st.benchFactor.Sub(one),
		})

		st.prevTotal = total
	}

	return entries
}
