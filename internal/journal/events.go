package journal

import (
	"context"

	"trade-journal-go/internal/models"
)

// Operation names the mutation behind a PositionChanged event.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// PositionChanged is published after a transaction mutation commits.
type PositionChanged struct {
	OpID          string
	UserID        string
	Operation     Operation
	TransactionID uint
	Symbol        string
	Pairs         []models.Pair
	Recalculated  bool
}

// Observer receives committed position changes. It runs on the caller's
// goroutine and cannot affect the mutation.
type Observer interface {
	PositionChanged(ctx context.Context, event PositionChanged)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event PositionChanged)

func (f ObserverFunc) PositionChanged(ctx context.Context, event PositionChanged) { f(ctx, event) }
