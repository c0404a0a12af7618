package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionType is either BUY or SELL.
type TransactionType string

const (
	TypeBuy  TransactionType = "BUY"
	TypeSell TransactionType = "SELL"
)

func (t TransactionType) Valid() bool { return t == TypeBuy || t == TypeSell }

// Transaction is a single BUY or SELL. A BUY doubles as a FIFO lot through
// RemainingQuantity; a SELL carries the realized P&L and cost basis computed
// when it was matched.
type Transaction struct {
	gorm.Model
	AccountID       *uint           `gorm:"index:idx_tx_pair,priority:1"`
	Account         *Account        `json:",omitempty"`
	StockID         uint            `gorm:"not null;index:idx_tx_pair,priority:2"`
	Stock           *Stock          `json:",omitempty"`
	Type            TransactionType `gorm:"size:4;not null"`
	Quantity        decimal.Decimal `gorm:"type:decimal(20,6);not null"`
	Price           decimal.Decimal `gorm:"type:decimal(20,6);not null"`
	Commission      decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0"`
	TransactionDate time.Time       `gorm:"not null;index:idx_tx_pair,priority:3"`
	Notes           string

	RemainingQuantity decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0"`
	RealizedPnl       decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0"`
	CostBasis         decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0"`
}

// Pair returns the bookkeeping pair the transaction belongs to.
func (t *Transaction) Pair() Pair {
	return Pair{Scope: ScopeOf(t.AccountID), StockID: t.StockID}
}

// Gross is price times quantity.
func (t *Transaction) Gross() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

// BeforeSave keeps persisted amounts at ledger precision and dates in UTC,
// which keeps stored dates comparable as text.
func (t *Transaction) BeforeSave(*gorm.DB) error {
	t.TransactionDate = t.TransactionDate.UTC()
	t.Quantity = RoundLedger(t.Quantity)
	t.Price = RoundLedger(t.Price)
	t.Commission = RoundLedger(t.Commission)
	t.RemainingQuantity = RoundLedger(t.RemainingQuantity)
	t.RealizedPnl = RoundDisplay(t.RealizedPnl)
	t.CostBasis = RoundLedger(t.CostBasis)
	return nil
}
