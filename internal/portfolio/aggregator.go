// Package portfolio maintains the per-pair positions and serves the cached
// read-side views built on them.
package portfolio

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trade-journal-go/internal/cache"
	"trade-journal-go/internal/errs"
	"trade-journal-go/internal/models"
	"trade-journal-go/internal/uow"
)

// Aggregator writes position rows.
type Aggregator struct {
	logger *zap.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(logger *zap.Logger) *Aggregator {
	return &Aggregator{logger: logger.Named("portfolio")}
}

// Load returns the stored position row of pair, locked for update where the
// database supports it, or nil when the pair holds nothing.
func Load(db *gorm.DB, pair models.Pair) (*models.Portfolio, error) {
	var row models.Portfolio
	err := pair.Scope.Where(db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("stock_id = ?", pair.StockID)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load position %s: %w", pair, err)
	}
	return &row, nil
}

// UpdatePortfolio applies t to the stored position of its pair. SELLs must
// have been matched first so they carry their cost basis.
func (a *Aggregator) UpdatePortfolio(tx *uow.Tx, t *models.Transaction) error {
	pair := t.Pair()
	row, err := Load(tx.DB, pair)
	if err != nil {
		return err
	}
	pos := PositionOf(row)

	if t.Type == models.TypeSell {
		if pos.Quantity.LessThan(t.Quantity) {
			return errs.InvalidState("position %s holds %s shares, cannot sell %s; rebuild the pair",
				pair, pos.Quantity, t.Quantity)
		}
		a.logger.Debug("Reducing position",
			zap.Stringer("pair", pair),
			zap.Stringer("sold_ratio", SoldRatio(t.Quantity, pos.Quantity)),
			zap.Stringer("released_investment", t.CostBasis))
	}

	pos.Apply(t)
	return a.write(tx, pair, row, pos)
}

// Replace stores pos as the state of pair, deleting the row when nothing is held.
func (a *Aggregator) Replace(tx *uow.Tx, pair models.Pair, pos Position) error {
	row, err := Load(tx.DB, pair)
	if err != nil {
		return err
	}
	return a.write(tx, pair, row, pos)
}

func (a *Aggregator) write(tx *uow.Tx, pair models.Pair, row *models.Portfolio, pos Position) error {
	tx.Invalidate(cache.PortfolioGroups...)

	if !pos.Open() {
		if row == nil {
			return nil
		}
		if err := tx.DB.Delete(row).Error; err != nil {
			return fmt.Errorf("failed to delete position %s: %w", pair, err)
		}
		a.logger.Info("Position closed", zap.Stringer("pair", pair), zap.String("op_id", tx.OpID))
		return nil
	}

	if row == nil {
		row = &models.Portfolio{AccountID: pair.Scope.AccountID(), StockID: pair.StockID}
	}
	row.Quantity = pos.Quantity
	row.TotalInvestment = pos.TotalInvestment
	row.AveragePrice = pos.AveragePrice()
	if err := tx.DB.Omit(clause.Associations).Save(row).Error; err != nil {
		return fmt.Errorf("failed to save position %s: %w", pair, err)
	}

	a.logger.Debug("Position saved",
		zap.Stringer("pair", pair),
		zap.Stringer("quantity", row.Quantity),
		zap.Stringer("average_price", row.AveragePrice),
		zap.String("op_id", tx.OpID))
	return nil
}
