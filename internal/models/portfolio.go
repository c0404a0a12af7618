package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Portfolio is the current position of an (account, stock) pair. Rows only
// exist while Quantity is positive.
type Portfolio struct {
	ID              uint `gorm:"primarykey"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	AccountID       *uint           `gorm:"uniqueIndex:idx_portfolio_pair,priority:1"`
	Account         *Account        `json:",omitempty"`
	StockID         uint            `gorm:"not null;uniqueIndex:idx_portfolio_pair,priority:2"`
	Stock           *Stock          `json:",omitempty"`
	Quantity        decimal.Decimal `gorm:"type:decimal(20,6);not null"`
	AveragePrice    decimal.Decimal `gorm:"type:decimal(20,6);not null"`
	TotalInvestment decimal.Decimal `gorm:"type:decimal(20,6);not null"`
}

// BeforeSave keeps persisted amounts at their precision.
func (p *Portfolio) BeforeSave(*gorm.DB) error {
	p.Quantity = RoundLedger(p.Quantity)
	p.TotalInvestment = RoundLedger(p.TotalInvestment)
	p.AveragePrice = RoundDisplay(p.AveragePrice)
	return nil
}

// All lists every model for migration.
func All() []any {
	return []any{&Account{}, &Stock{}, &Transaction{}, &Portfolio{}}
}
