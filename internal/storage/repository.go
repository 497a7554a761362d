package storage

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Portfolios

func (r *Repository) CreatePortfolio(p *Portfolio) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return r.db.Create(p).Error
}

func (r *Repository) PortfolioByID(id string) (*Portfolio, error) {
	var p Portfolio
	if err := r.db.First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) ListPortfolios() ([]Portfolio, error) {
	var portfolios []Portfolio
	err := r.db.Order("created_at ASC").Find(&portfolios).Error
	return portfolios, err
}

// Trades

func (r *Repository) SaveTrade(trade *Trade) error {
	return r.db.Save(trade).Error
}

func (r *Repository) TradesByPortfolio(portfolioID string) ([]Trade, error) {
	var trades []Trade
	err := r.db.Where("portfolio_id = ?", portfolioID).
		Order("trade_date ASC, id ASC").Find(&trades).Error
	return trades, err
}

// Cash transactions

func (r *Repository) SaveCashTransaction(tx *CashTransaction) error {
	return r.db.Save(tx).Error
}

func (r *Repository) CashTransactionsByPortfolio(portfolioID string) ([]CashTransaction, error) {
	var txs []CashTransaction
	err := r.db.Where("portfolio_id = ?", portfolioID).
		Order("date ASC, id ASC").Find(&txs).Error
	return txs, err
}

// History entries

// LatestHistoryEntry returns nil without error when no history exists yet.
func (r *Repository) LatestHistoryEntry(portfolioID string) (*HistoryEntry, error) {
	var entry HistoryEntry
	err := r.db.Where("portfolio_id = ?", portfolioID).
		Order("date DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *Repository) LatestHistoryEntryBefore(portfolioID string, day time.Time) (*HistoryEntry, error) {
	var entry HistoryEntry
	err := r.db.Where("portfolio_id = ? AND date < ?", portfolioID, day).
		Order("date DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *Repository) HistoryEntries(portfolioID string) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	err := r.db.Where("portfolio_id = ?", portfolioID).
		Order("date ASC").Find(&entries).Error
	return entries, err
}

// UpsertHistoryEntries writes rows keyed by (portfolio_id, date); re-running
// with identical input leaves the table unchanged.
func (r *Repository) UpsertHistoryEntries(entries []HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "portfolio_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_value", "cost_basis", "realized_pnl",
			"daily_return", "cumulative_twr", "bench_cumulative", "updated_at",
		}),
	}).Create(&entries).Error
}
