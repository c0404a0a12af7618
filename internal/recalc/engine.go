// Package recalc rebuilds the FIFO and position state of a pair by replaying
// its whole transaction history.
package recalc

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trade-journal-go/internal/fifo"
	"trade-journal-go/internal/ledger"
	"trade-journal-go/internal/models"
	"trade-journal-go/internal/portfolio"
	"trade-journal-go/internal/uow"
)

// Engine replays transaction histories.
type Engine struct {
	aggregator *portfolio.Aggregator
	logger     *zap.Logger
}

// NewEngine creates an Engine writing positions through aggregator.
func NewEngine(aggregator *portfolio.Aggregator, logger *zap.Logger) *Engine {
	return &Engine{aggregator: aggregator, logger: logger.Named("recalc")}
}

type computed struct {
	remaining, pnl, costBasis decimal.Decimal
}

func computedOf(t *models.Transaction) computed {
	return computed{remaining: t.RemainingQuantity, pnl: t.RealizedPnl, costBasis: t.CostBasis}
}

func (c computed) equal(o computed) bool {
	return c.remaining.Equal(o.remaining) && c.pnl.Equal(o.pnl) && c.costBasis.Equal(o.costBasis)
}

// History returns every transaction of pair in replay order: date, then id.
func History(db *gorm.DB, pair models.Pair) ([]models.Transaction, error) {
	var rows []models.Transaction
	q := db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("stock_id = ?", pair.StockID)
	if err := pair.Scope.Where(q).Order("transaction_date asc, id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load history of %s: %w", pair, err)
	}
	return rows, nil
}

// Replay runs the history through a fresh lot book and position. It
// annotates every row in place: BUYs get the remaining quantity left after
// all later SELLs, SELLs their realized P&L and cost basis. It fails with an
// InsufficientLotsError at the first SELL the history cannot cover.
func Replay(stockID uint, history []models.Transaction) (portfolio.Position, error) {
	book := ledger.NewBook(stockID)
	var pos portfolio.Position
	for i := range history {
		t := &history[i]
		switch t.Type {
		case models.TypeBuy:
			t.RemainingQuantity = t.Quantity
			t.RealizedPnl, t.CostBasis = decimal.Zero, decimal.Zero
			book.Add(ledger.LotOf(t))
		case models.TypeSell:
			t.RemainingQuantity = decimal.Zero
			res, err := fifo.Match(book, t)
			if err != nil {
				return portfolio.Position{}, fmt.Errorf("failed to replay SELL %d: %w", t.ID, err)
			}
			fifo.Annotate(t, res)
		}
		pos.Apply(t)
	}

	remaining := make(map[uint]decimal.Decimal)
	for _, l := range book.Lots() {
		remaining[l.TransactionID] = l.Remaining
	}
	for i := range history {
		if history[i].Type == models.TypeBuy {
			history[i].RemainingQuantity = remaining[history[i].ID]
		}
	}
	return pos, nil
}

// Recalculate replaces the lot, SELL and position state of pair with the
// result of replaying its history. Only rows whose computed columns change
// are written. A pair without transactions loses its position row.
func (e *Engine) Recalculate(tx *uow.Tx, pair models.Pair) error {
	history, err := History(tx.DB, pair)
	if err != nil {
		return err
	}

	before := make([]computed, len(history))
	for i := range history {
		before[i] = computedOf(&history[i])
	}

	pos, err := Replay(pair.StockID, history)
	if err != nil {
		e.logger.Warn("Replay rejected", zap.Stringer("pair", pair), zap.String("op_id", tx.OpID), zap.Error(err))
		return err
	}

	changed := 0
	for i := range history {
		if computedOf(&history[i]).equal(before[i]) {
			continue
		}
		if err := fifo.SaveComputed(tx.DB, &history[i]); err != nil {
			return err
		}
		changed++
	}

	if err := e.aggregator.Replace(tx, pair, pos); err != nil {
		return err
	}

	e.logger.Info("Pair recalculated",
		zap.Stringer("pair", pair),
		zap.Int("transactions", len(history)),
		zap.Int("changed", changed),
		zap.Stringer("quantity", pos.Quantity),
		zap.String("op_id", tx.OpID))
	return nil
}

type pairRow struct {
	AccountID *uint
	StockID   uint
	Symbol    string
}

func pairsOf(db *gorm.DB) ([]pairRow, error) {
	var fromTx, fromPositions []pairRow
	err := db.Model(&models.Transaction{}).
		Select("DISTINCT transactions.account_id, transactions.stock_id, stocks.symbol").
		Joins("JOIN stocks ON stocks.id = transactions.stock_id").
		Scan(&fromTx).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction pairs: %w", err)
	}
	err = db.Model(&models.Portfolio{}).
		Select("portfolios.account_id, portfolios.stock_id, stocks.symbol").
		Joins("JOIN stocks ON stocks.id = portfolios.stock_id").
		Scan(&fromPositions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list position pairs: %w", err)
	}

	seen := make(map[string]bool)
	var out []pairRow
	for _, p := range append(fromTx, fromPositions...) {
		key := models.Pair{Scope: models.ScopeOf(p.AccountID), StockID: p.StockID}.String()
		if !seen[key] {
			seen[key] = true
			out = append(out, p)
		}
	}
	return out, nil
}

// RecalculateAll recalculates every pair that has transactions or a position,
// each in its own unit of work. A pair that fails does not stop the others;
// the failures are returned joined. It reports how many pairs were rebuilt.
func (e *Engine) RecalculateAll(ctx context.Context, u *uow.UnitOfWork) (int, error) {
	pairs, err := pairsOf(u.DB(ctx))
	if err != nil {
		return 0, err
	}

	var failures []error
	done := 0
	for _, p := range pairs {
		pair := models.Pair{Scope: models.ScopeOf(p.AccountID), StockID: p.StockID}
		err := u.Do(ctx, "recalculate", []string{uow.StockKey(p.Symbol)}, func(tx *uow.Tx) error {
			return e.Recalculate(tx, pair)
		})
		if err != nil {
			failures = append(failures, fmt.Errorf("%s (%s): %w", pair, p.Symbol, err))
			continue
		}
		done++
	}

	e.logger.Info("Rebuild finished", zap.Int("pairs", len(pairs)), zap.Int("rebuilt", done), zap.Int("failed", len(failures)))
	return done, errors.Join(failures...)
}
