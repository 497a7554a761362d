package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

const (
	CashDeposit    = "DEPOSIT"
	CashWithdrawal = "WITHDRAWAL"
	CashDividend   = "DIVIDEND"
	CashInterest   = "INTEREST"
	CashFee        = "FEE"
	CashTax        = "TAX"
	CashAdjustment = "ADJUSTMENT"
)

type Portfolio struct {
	ID        string    `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID       string `gorm:"index;not null" json:"user_id"`
	Name         string `gorm:"not null" json:"name"`
	BaseCurrency string `gorm:"not null" json:"base_currency"`
}

type Trade struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PortfolioID string          `gorm:"index;not null" json:"portfolio_id"`
	Ticker      string          `gorm:"index;not null" json:"ticker"`
	Action      string          `gorm:"not null" json:"action"` // BUY or SELL
	Quantity    decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"quantity"`
	Price       decimal.Decimal `gorm:"type:decimal(20,8)" json:"price"`
	Currency    string          `json:"currency"` // settlement currency, portfolio base when empty
	TradeDate   time.Time       `gorm:"index;not null" json:"trade_date"`
}

type CashTransaction struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PortfolioID string          `gorm:"index;not null" json:"portfolio_id"`
	Currency    string          `gorm:"not null" json:"currency"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"` // signed
	Type        string          `gorm:"not null" json:"type"`
	Date        time.Time       `gorm:"index;not null" json:"date"`
}

type HistoryEntry struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PortfolioID     string          `gorm:"uniqueIndex:idx_portfolio_date;not null" json:"portfolio_id"`
	Date            time.Time       `gorm:"uniqueIndex:idx_portfolio_date;not null" json:"date"`
	TotalValue      decimal.Decimal `gorm:"type:decimal(20,8)" json:"total_value"`
	CostBasis       decimal.Decimal `gorm:"type:decimal(20,8)" json:"cost_basis"`
	RealizedPnL     decimal.Decimal `gorm:"column:realized_pnl;type:decimal(20,8)" json:"realized_pnl"`
	DailyReturn     decimal.Decimal `gorm:"type:decimal(20,10)" json:"daily_return"`
	CumulativeTwr   decimal.Decimal `gorm:"column:cumulative_twr;type:decimal(20,10)" json:"cumulative_twr"`
	BenchCumulative decimal.Decimal `gorm:"type:decimal(20,10)" json:"bench_cumulative"`
}
