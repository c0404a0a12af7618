// Package fifo matches SELL transactions against open BUY lots, oldest first,
// and derives realized P&L and cost basis from the matched lots.
package fifo

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trade-journal-go/internal/errs"
	"trade-journal-go/internal/ledger"
	"trade-journal-go/internal/models"
)

// Result is the outcome of matching one SELL.
type Result struct {
	RealizedPnl  decimal.Decimal // proceeds net of sell commission minus cost basis, display precision
	CostBasis    decimal.Decimal // ledger precision
	ConsumedLots []ledger.Consumption
}

// Match consumes sell from book and computes its result. The book is only
// modified when the sell can be fully covered.
func Match(book *ledger.Book, sell *models.Transaction) (*Result, error) {
	if sell.Type != models.TypeSell {
		return nil, errs.Invalid("type", fmt.Sprintf("transaction %d is not a SELL", sell.ID))
	}

	consumed, err := book.Consume(sell.Quantity, sell.TransactionDate)
	if err != nil {
		return nil, err
	}

	cost := decimal.Zero
	for _, c := range consumed {
		cost = cost.Add(c.Cost)
	}
	costBasis := models.RoundLedger(cost)
	proceeds := sell.Gross().Sub(sell.Commission)

	return &Result{
		RealizedPnl:  models.RoundDisplay(proceeds.Sub(costBasis)),
		CostBasis:    costBasis,
		ConsumedLots: consumed,
	}, nil
}

// Annotate copies the result onto the in-memory SELL.
func Annotate(sell *models.Transaction, res *Result) {
	sell.RealizedPnl = res.RealizedPnl
	sell.CostBasis = res.CostBasis
}

// Matcher runs FIFO matching against persisted lots.
type Matcher struct {
	logger *zap.Logger
}

// NewMatcher creates a Matcher.
func NewMatcher(logger *zap.Logger) *Matcher {
	return &Matcher{logger: logger.Named("fifo")}
}

// CalculateFifoProfit matches sell against the open lots of its pair dated
// strictly before it. Nothing is written.
func (m *Matcher) CalculateFifoProfit(db *gorm.DB, sell *models.Transaction) (*Result, error) {
	book, err := ledger.BookFor(db, sell.Pair(), sell.TransactionDate)
	if err != nil {
		return nil, err
	}

	res, err := Match(book, sell)
	if err != nil {
		m.logger.Warn("SELL cannot be matched",
			zap.Uint("transaction_id", sell.ID),
			zap.Stringer("pair", sell.Pair()),
			zap.Error(err))
		return nil, err
	}

	m.logger.Debug("Matched SELL against lots",
		zap.Uint("transaction_id", sell.ID),
		zap.Stringer("quantity", sell.Quantity),
		zap.Int("lots", len(res.ConsumedLots)),
		zap.Stringer("cost_basis", res.CostBasis),
		zap.Stringer("realized_pnl", res.RealizedPnl))
	return res, nil
}

// ApplyFifoResult writes the result onto sell and decrements the remaining
// quantity of every consumed lot. The writes form one atomic unit, nested as a
// savepoint when db is already inside a transaction.
func (m *Matcher) ApplyFifoResult(db *gorm.DB, sell *models.Transaction, res *Result) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, c := range res.ConsumedLots {
			if err := decrementLot(tx, c); err != nil {
				return err
			}
		}

		Annotate(sell, res)
		if err := SaveComputed(tx, sell); err != nil {
			return err
		}
		m.logger.Debug("Applied FIFO result",
			zap.Uint("transaction_id", sell.ID),
			zap.Int("lots", len(res.ConsumedLots)))
		return nil
	})
}

func decrementLot(tx *gorm.DB, c ledger.Consumption) error {
	var lot models.Transaction
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("type = ?", models.TypeBuy).
		First(&lot, c.TransactionID).Error
	if err != nil {
		return errs.FromGorm(err, "lot", c.TransactionID)
	}

	left := lot.RemainingQuantity.Sub(c.Quantity)
	if left.IsNegative() {
		// Someone consumed the lot since it was read.
		return &errs.InsufficientLotsError{StockID: lot.StockID, Requested: c.Quantity, Available: lot.RemainingQuantity}
	}
	lot.RemainingQuantity = left
	return SaveComputed(tx, &lot)
}

// SaveComputed persists the FIFO-derived columns of t: remaining quantity,
// realized P&L and cost basis.
func SaveComputed(db *gorm.DB, t *models.Transaction) error {
	err := db.Model(&models.Transaction{}).
		Where("id = ?", t.ID).
		UpdateColumns(map[string]any{
			"remaining_quantity": models.RoundLedger(t.RemainingQuantity),
			"realized_pnl":       models.RoundDisplay(t.RealizedPnl),
			"cost_basis":         models.RoundLedger(t.CostBasis),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to save FIFO state of transaction %d: %w", t.ID, err)
	}
	return nil
}
