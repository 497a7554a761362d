package marketdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one daily close for a symbol. Series are sparse:
// non-trading days have no point.
type PricePoint struct {
	Date  time.Time       `json:"date"`
	Close decimal.Decimal `json:"close"`
}
