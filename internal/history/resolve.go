package history

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adamkovacs/foliotrack/internal/storage"
)

// syncState is everything the daily iterator carries between days. It
// lives for one sync call only; nothing here is persisted except through
// the emitted history entries.
type syncState struct {
	holdings    map[string]decimal.Decimal // ticker -> share count
	cash        map[string]decimal.Decimal // currency -> balance
	costBasis   decimal.Decimal
	realizedPnL decimal.Decimal
	twrFactor   decimal.Decimal
	benchFactor decimal.Decimal
	prevTotal   decimal.Decimal

	firstDay time.Time // first day the iterator computes
}

// sortLedgers enforces the ascending-by-date precondition the replay and
// iteration logic depend on. Reads are expected sorted already; sorting
// here keeps a misbehaving caller from corrupting the replay cutoff.
func sortLedgers(trades []storage.Trade, cash []storage.CashTransaction) {
	sort.SliceStable(trades, func(i, j int) bool {
		if !trades[i].TradeDate.Equal(trades[j].TradeDate) {
			return trades[i].TradeDate.Before(trades[j].TradeDate)
		}
		return trades[i].ID < trades[j].ID
	})
	sort.SliceStable(cash, func(i, j int) bool {
		if !cash[i].Date.Equal(cash[j].Date) {
			return cash[i].Date.Before(cash[j].Date)
		}
		return cash[i].ID < cash[j].ID
	})
}

// replayLedger folds both ledgers up to and including cutoff into holdings
// and cash balances. It is a pure function of its inputs: holdings are
// never persisted, so a resumed sync rebuilds them from the ledger every
// time. Inputs must be sorted ascending; the fold stops at the first
// record past the cutoff. Within a day, cash transactions apply before
// trades, matching the daily iterator, so the two paths agree on every
// floor.
func replayLedger(trades []storage.Trade, cash []storage.CashTransaction, cutoff time.Time) (map[string]decimal.Decimal, map[string]decimal.Decimal) {
	holdings := make(map[string]decimal.Decimal)
	balances := make(map[string]decimal.Decimal)

	ti, ci := 0, 0
	for ti < len(trades) || ci < len(cash) {
		var current time.Time
		if ti < len(trades) {
			current = day(trades[ti].TradeDate)
		}
		if ci < len(cash) {
			if d := day(cash[ci].Date); current.IsZero() || d.Before(current) {
				current = d
			}
		}
		if current.After(cutoff) {
			break
		}

		for ci < len(cash) && day(cash[ci].Date).Equal(current) {
			tx := cash[ci]
			balances[tx.Currency] = balances[tx.Currency].Add(tx.Amount)
			ci++
		}
		for ti < len(trades) && day(trades[ti].TradeDate).Equal(current) {
			applyTrade(holdings, balances, trades[ti])
			ti++
		}
	}

	return holdings, balances
}

// applyTrade adjusts holdings and cash for one trade. A BUY settles
// against the cash balance of its currency and a SELL credits the
// proceeds, when a price was recorded. Neither the share count nor the
// cash balance ever goes negative: an oversized SELL floors the position
// at zero, and a BUY without recorded cash behind it floors the balance
// at zero instead of inventing debt.
func applyTrade(holdings, balances map[string]decimal.Decimal, t storage.Trade) {
	switch t.Action {
	case storage.ActionBuy:
		holdings[t.Ticker] = holdings[t.Ticker].Add(t.Quantity)
		if t.Price.IsPositive() {
			remaining := balances[t.Currency].Sub(t.Quantity.Mul(t.Price))
			if remaining.IsNegative() {
				remaining = decimal.Zero
			}
			balances[t.Currency] = remaining
		}
	case storage.ActionSell:
		remaining := holdings[t.Ticker].Sub(t.Quantity)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		holdings[t.Ticker] = remaining
		if t.Price.IsPositive() {
			balances[t.Currency] = balances[t.Currency].Add(t.Quantity.Mul(t.Price))
		}
	}
}

// freshState initializes state for a portfolio with no computed history:
// everything zero, both compounding factors at 1, starting at inception.
func freshState(inception time.Time) syncState {
	return syncState{
		holdings:    make(map[string]decimal.Decimal),
		cash:        make(map[string]decimal.Decimal),
		costBasis:   decimal.Zero,
		realizedPnL: decimal.Zero,
		twrFactor:   decimal.NewFromInt(1),
		benchFactor: decimal.NewFromInt(1),
		prevTotal:   decimal.Zero,
		firstDay:    inception,
	}
}

// resumeState rebuilds iterator state as of the last stored entry.
// Holdings and balances come from a ledger replay; the numeric
// accumulators are read straight from the stored row rather than
// recomputed.
func resumeState(latest *storage.HistoryEntry, trades []storage.Trade, cash []storage.CashTransaction) syncState {
	cutoff := day(latest.Date)
	holdings, balances := replayLedger(trades, cash, cutoff)

	one := decimal.NewFromInt(1)
	return syncState{
		holdings:    holdings,
		cash:        balances,
		costBasis:   latest.CostBasis,
		realizedPnL: latest.RealizedPnL,
		twrFactor:   one.Add(latest.CumulativeTwr),
		benchFactor: one.Add(latest.BenchCumulative),
		prevTotal:   latest.TotalValue,
		firstDay:    cutoff.AddDate(0, 0, 1),
	}
}

// inceptionDay is the earliest date across both ledgers. The bool is
// false when both are empty.
func inceptionDay(trades []storage.Trade, cash []storage.CashTransaction) (time.Time, bool) {
	var inception time.Time
	if len(trades) > 0 {
		inception = day(trades[0].TradeDate)
	}
	if len(cash) > 0 {
		d := day(cash[0].Date)
		if inception.IsZero() || d.Before(inception) {
			inception = d
		}
	}
	return inception, !inception.IsZero()
}

// ledgerDirtySince reports whether any ledger record was created or
// edited after the given instant, i.e. after the latest history row was
// computed.
func ledgerDirtySince(trades []storage.Trade, cash []storage.CashTransaction, since time.Time) bool {
	for _, t := range trades {
		if t.CreatedAt.After(since) || t.UpdatedAt.After(since) {
			return true
		}
	}
	for _, tx := range cash {
		if tx.CreatedAt.After(since) || tx.UpdatedAt.After(since) {
			return true
		}
	}
	return false
}
