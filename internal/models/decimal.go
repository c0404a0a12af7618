package models

import "github.com/shopspring/decimal"

const (
	// LedgerPlaces is the scale of every persisted quantity and money amount
	// and of intermediate ratios.
	LedgerPlaces = 6
	// DisplayPlaces is the scale of average prices and realized P&L.
	DisplayPlaces = 2
)

// RoundLedger rounds half away from zero to LedgerPlaces.
func RoundLedger(d decimal.Decimal) decimal.Decimal { return d.Round(LedgerPlaces) }

// RoundDisplay rounds half away from zero to DisplayPlaces.
func RoundDisplay(d decimal.Decimal) decimal.Decimal { return d.Round(DisplayPlaces) }
