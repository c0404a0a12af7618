package portfolio

import (
	"github.com/shopspring/decimal"

	"trade-journal-go/internal/models"
)

// Position is the running state of an (account, stock) pair. Both the
// incremental path and the replay advance it through Apply, so they agree
// transaction by transaction.
type Position struct {
	Quantity        decimal.Decimal
	TotalInvestment decimal.Decimal
}

// PositionOf reads the state of a stored row.
func PositionOf(row *models.Portfolio) Position {
	if row == nil {
		return Position{}
	}
	return Position{Quantity: row.Quantity, TotalInvestment: row.TotalInvestment}
}

// Apply advances the position by t. A SELL must already carry its FIFO cost
// basis: the investment released by a sale is the cost of the lots it
// consumed. Once the quantity reaches zero any leftover investment is dropped.
func (p *Position) Apply(t *models.Transaction) {
	switch t.Type {
	case models.TypeBuy:
		p.Quantity = p.Quantity.Add(t.Quantity)
		p.TotalInvestment = models.RoundLedger(p.TotalInvestment.Add(t.Gross()).Add(t.Commission))
	case models.TypeSell:
		p.Quantity = p.Quantity.Sub(t.Quantity)
		p.TotalInvestment = models.RoundLedger(p.TotalInvestment.Sub(t.CostBasis))
	}
	if !p.Quantity.IsPositive() {
		p.Quantity = decimal.Zero
		p.TotalInvestment = decimal.Zero
	}
}

// Open reports whether shares are held.
func (p Position) Open() bool { return p.Quantity.IsPositive() }

// AveragePrice is total investment over quantity, rounded half up to cents.
func (p Position) AveragePrice() decimal.Decimal {
	if !p.Open() {
		return decimal.Zero
	}
	return models.RoundDisplay(p.TotalInvestment.Div(p.Quantity))
}

// SoldRatio is the share of held quantity a sale removes, at ledger precision.
func SoldRatio(sold, held decimal.Decimal) decimal.Decimal {
	if !held.IsPositive() {
		return decimal.Zero
	}
	return sold.DivRound(held, models.LedgerPlaces)
}
