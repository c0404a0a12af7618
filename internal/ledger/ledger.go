// Package ledger is the FIFO lot inventory of an (account, stock) pair.
//
// Lots are BUY transactions with shares left to sell. OpenLots reads them
// from storage for a SELL; Book holds them in memory, oldest first, and hands
// them out to the FIFO matcher. The same Book serves incremental matching and
// full replays, so both paths consume lots identically.
package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trade-journal-go/internal/errs"
	"trade-journal-go/internal/models"
)

// Lot is a BUY transaction viewed as an inventory unit.
type Lot struct {
	TransactionID uint
	Date          time.Time
	Quantity      decimal.Decimal // bought
	Remaining     decimal.Decimal // not yet sold
	Cost          decimal.Decimal // price * quantity + commission
}

// LotOf views a BUY transaction as a lot.
func LotOf(t *models.Transaction) Lot {
	return Lot{
		TransactionID: t.ID,
		Date:          t.TransactionDate,
		Quantity:      t.Quantity,
		Remaining:     t.RemainingQuantity,
		Cost:          t.Gross().Add(t.Commission),
	}
}

// costOf attributes the lot's cost, commission included, to qty shares.
func (l *Lot) costOf(qty decimal.Decimal) decimal.Decimal {
	return l.Cost.Mul(qty).Div(l.Quantity)
}

// Consumption is the part of a lot matched against a SELL.
type Consumption struct {
	TransactionID uint
	Quantity      decimal.Decimal
	Cost          decimal.Decimal
}

// Book is the ordered lot inventory of one pair.
type Book struct {
	stockID uint
	lots    []*Lot
}

// NewBook builds a book from lots in any order.
func NewBook(stockID uint, lots ...Lot) *Book {
	b := &Book{stockID: stockID}
	for _, l := range lots {
		b.Add(l)
	}
	return b
}

// Add inserts a lot keeping the book ordered by date, then transaction id.
func (b *Book) Add(l Lot) {
	lot := l
	i := sort.Search(len(b.lots), func(i int) bool { return lotBefore(&lot, b.lots[i]) })
	b.lots = append(b.lots, nil)
	copy(b.lots[i+1:], b.lots[i:])
	b.lots[i] = &lot
}

func lotBefore(a, b *Lot) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	return a.TransactionID < b.TransactionID
}

// Lots returns a snapshot of the lots, oldest first.
func (b *Book) Lots() []Lot {
	out := make([]Lot, len(b.lots))
	for i, l := range b.lots {
		out[i] = *l
	}
	return out
}

// Available sums the remaining quantity of lots dated strictly before t.
func (b *Book) Available(before time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.lots {
		if !l.Date.Before(before) {
			break
		}
		total = total.Add(l.Remaining)
	}
	return total
}

// Remaining sums the remaining quantity of every lot.
func (b *Book) Remaining() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.lots {
		total = total.Add(l.Remaining)
	}
	return total
}

// Consume takes qty shares from the oldest lots dated strictly before the
// given time. When those lots hold fewer than qty shares nothing is consumed
// and an InsufficientLotsError is returned.
func (b *Book) Consume(qty decimal.Decimal, before time.Time) ([]Consumption, error) {
	if available := b.Available(before); available.LessThan(qty) {
		return nil, &errs.InsufficientLotsError{StockID: b.stockID, Requested: qty, Available: available}
	}

	var consumed []Consumption
	left := qty
	for _, l := range b.lots {
		if !left.IsPositive() {
			break
		}
		if !l.Remaining.IsPositive() {
			continue
		}
		take := decimal.Min(l.Remaining, left)
		consumed = append(consumed, Consumption{
			TransactionID: l.TransactionID,
			Quantity:      take,
			Cost:          l.costOf(take),
		})
		l.Remaining = l.Remaining.Sub(take)
		left = left.Sub(take)
	}
	return consumed, nil
}

// OpenLots returns the BUY transactions of pair with shares left that were
// made strictly before the given time, oldest first (date, then id). The rows
// are selected FOR UPDATE on databases with row locks.
func OpenLots(db *gorm.DB, pair models.Pair, before time.Time) ([]models.Transaction, error) {
	var lots []models.Transaction
	q := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("stock_id = ? AND type = ? AND remaining_quantity > 0 AND transaction_date < ?",
			pair.StockID, models.TypeBuy, before.UTC())
	err := pair.Scope.Where(q).
		Order("transaction_date asc, id asc").
		Find(&lots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load open lots for %s: %w", pair, err)
	}
	return lots, nil
}

// BookFor loads the open lots preceding before into a Book.
func BookFor(db *gorm.DB, pair models.Pair, before time.Time) (*Book, error) {
	rows, err := OpenLots(db, pair, before)
	if err != nil {
		return nil, err
	}
	b := NewBook(pair.StockID)
	for i := range rows {
		b.Add(LotOf(&rows[i]))
	}
	return b, nil
}
