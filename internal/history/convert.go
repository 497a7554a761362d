package history

import (
	"time"

	"github.com/shopspring/decimal"
)

// pairSymbol names the FX series converting currency into base,
// e.g. EURUSD=X for EUR amounts in a USD portfolio.
func pairSymbol(currency, base string) string {
	return currency + base + "=X"
}

// toBase converts an amount in currency to the base currency using the
// day's close of the {CUR}{BASE}=X pair. The pair quotes base units per
// one unit of currency, so conversion always multiplies; no call site
// ever divides by a rate. The base currency converts at 1. The second
// return is false when no rate is available within the backfill window.
func (c *priceCache) toBase(amount decimal.Decimal, currency, base string, d time.Time) (decimal.Decimal, bool) {
	if currency == base {
		return amount, true
	}
	rate, ok := c.closeOn(pairSymbol(currency, base), d)
	if !ok {
		return decimal.Zero, false
	}
	return amount.Mul(rate), true
}
