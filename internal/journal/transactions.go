// Package journal records BUY and SELL transactions and keeps the FIFO lots
// and positions consistent with them. Every mutation runs in one unit of work
// holding the stock's lock: new transactions are booked incrementally, while
// edits, deletions and back-dated entries replay the affected pairs.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trade-journal-go/internal/errs"
	"trade-journal-go/internal/fifo"
	"trade-journal-go/internal/models"
	"trade-journal-go/internal/portfolio"
	"trade-journal-go/internal/recalc"
	"trade-journal-go/internal/uow"
	"trade-journal-go/internal/userctx"
)

// CreateRequest describes a new transaction. A nil AccountID books it on the
// user's default account, a zero Date at the current time.
type CreateRequest struct {
	AccountID  *uint
	Symbol     string
	Type       models.TransactionType
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Commission decimal.NullDecimal
	Date       time.Time
	Notes      string
}

// UpdateRequest lists the fields to change; unset fields are kept.
type UpdateRequest struct {
	AccountID  *uint
	Quantity   decimal.NullDecimal
	Price      decimal.NullDecimal
	Commission decimal.NullDecimal
	Date       *time.Time
	Notes      *string
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	AccountID *uint
	Symbol    string
	Type      models.TransactionType
}

// TransactionService is the entry point for transaction mutations.
type TransactionService struct {
	uow        *uow.UnitOfWork
	stocks     *StockService
	matcher    *fifo.Matcher
	aggregator *portfolio.Aggregator
	engine     *recalc.Engine
	observer   Observer
	logger     *zap.Logger
	now        func() time.Time
}

// NewTransactionService creates a TransactionService.
func NewTransactionService(
	u *uow.UnitOfWork,
	stocks *StockService,
	matcher *fifo.Matcher,
	aggregator *portfolio.Aggregator,
	engine *recalc.Engine,
	logger *zap.Logger,
) *TransactionService {
	return &TransactionService{
		uow:        u,
		stocks:     stocks,
		matcher:    matcher,
		aggregator: aggregator,
		engine:     engine,
		logger:     logger.Named("transactions"),
		now:        time.Now,
	}
}

// SetObserver registers the receiver of PositionChanged events.
func (s *TransactionService) SetObserver(o Observer) {
	s.observer = o
}

func validateAmounts(quantity, price, commission decimal.Decimal) error {
	checks := []struct {
		field string
		value decimal.Decimal
		ok    bool
		rule  string
	}{
		{"quantity", quantity, quantity.IsPositive(), "must be positive"},
		{"price", price, price.IsPositive(), "must be positive"},
		{"commission", commission, !commission.IsNegative(), "must not be negative"},
	}
	for _, c := range checks {
		if !c.ok {
			return errs.Invalid(c.field, c.rule)
		}
		if !models.RoundLedger(c.value).Equal(c.value) {
			return errs.Invalid(c.field, fmt.Sprintf("more than %d decimal places", models.LedgerPlaces))
		}
	}
	return nil
}

// owned restricts transactions to the user's accounts and the legacy rows.
func owned(db *gorm.DB, userID string) *gorm.DB {
	return db.Model(&models.Transaction{}).
		Select("transactions.*").
		Joins("LEFT JOIN accounts ON accounts.id = transactions.account_id").
		Where("(accounts.user_id = ? OR transactions.account_id IS NULL)", userID)
}

func loadOwned(db *gorm.DB, userID string, id uint) (*models.Transaction, error) {
	var t models.Transaction
	if err := owned(db, userID).First(&t, id).Error; err != nil {
		return nil, errs.FromGorm(err, "transaction", id)
	}
	return &t, nil
}

// hasLater reports whether pair has a transaction dated after date.
func hasLater(db *gorm.DB, pair models.Pair, date time.Time) (bool, error) {
	var n int64
	q := db.Model(&models.Transaction{}).Where("stock_id = ? AND transaction_date > ?", pair.StockID, date.UTC())
	if err := pair.Scope.Where(q).Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to check history of %s: %w", pair, err)
	}
	return n > 0, nil
}

func (s *TransactionService) resolveAccount(db *gorm.DB, userID string, id *uint) (*models.Account, error) {
	if id == nil {
		return findDefaultAccount(db, userID)
	}
	return findAccount(db, userID, *id)
}

// Get returns one of the user's transactions with its stock and account.
func (s *TransactionService) Get(ctx context.Context, id uint) (*models.Transaction, error) {
	return loadOwned(s.uow.DB(ctx).Preload("Stock").Preload("Account"), userctx.UserID(ctx), id)
}

// List returns the user's transactions ordered by date, then id.
func (s *TransactionService) List(ctx context.Context, filter ListFilter) ([]models.Transaction, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, errs.Invalid("type", fmt.Sprintf("unknown transaction type %q", filter.Type))
	}
	userID := userctx.UserID(ctx)

	q := owned(s.uow.DB(ctx), userID).Preload("Stock").Preload("Account")
	if filter.AccountID != nil {
		q = q.Where("transactions.account_id = ?", *filter.AccountID)
	}
	if filter.Symbol != "" {
		q = q.Joins("JOIN stocks ON stocks.id = transactions.stock_id").
			Where("stocks.symbol = ?", NormalizeSymbol(filter.Symbol))
	}
	if filter.Type != "" {
		q = q.Where("transactions.type = ?", filter.Type)
	}

	var out []models.Transaction
	if err := q.Order("transactions.transaction_date asc, transactions.id asc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions of '%s': %w", userID, err)
	}
	return out, nil
}

// Create records a transaction. A BUY opens a lot and grows the position; a
// SELL is matched against the oldest lots that precede it and is rejected
// with an InsufficientLotsError when they cannot cover it. When the pair
// already has later transactions the pair is replayed instead.
func (s *TransactionService) Create(ctx context.Context, req CreateRequest) (*models.Transaction, error) {
	if !req.Type.Valid() {
		return nil, errs.Invalid("type", fmt.Sprintf("unknown transaction type %q", req.Type))
	}
	commission := decimal.Zero
	if req.Commission.Valid {
		commission = req.Commission.Decimal
	}
	if err := validateAmounts(req.Quantity, req.Price, commission); err != nil {
		return nil, err
	}
	date := req.Date
	if date.IsZero() {
		date = s.now()
	}

	stock, err := s.stocks.FindOrCreate(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	userID := userctx.UserID(ctx)
	t := &models.Transaction{
		StockID:         stock.ID,
		Type:            req.Type,
		Quantity:        req.Quantity,
		Price:           req.Price,
		Commission:      commission,
		TransactionDate: date.UTC(),
		Notes:           req.Notes,
	}
	event := PositionChanged{UserID: userID, Operation: OpCreate, Symbol: stock.Symbol}

	err = s.uow.Do(ctx, "create-transaction", []string{uow.StockKey(stock.Symbol)}, func(tx *uow.Tx) error {
		event.OpID = tx.OpID
		account, err := s.resolveAccount(tx.DB, userID, req.AccountID)
		if err != nil {
			return err
		}
		t.AccountID = &account.ID
		t.Account = account
		if t.Type == models.TypeBuy {
			t.RemainingQuantity = t.Quantity
		}

		backdated, err := hasLater(tx.DB, t.Pair(), t.TransactionDate)
		if err != nil {
			return err
		}
		if err := tx.DB.Omit(clause.Associations).Create(t).Error; err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}
		event.TransactionID = t.ID
		event.Pairs = []models.Pair{t.Pair()}

		if backdated {
			tx.Logger.Info("Back-dated transaction, replaying pair",
				zap.Uint("transaction_id", t.ID), zap.Stringer("pair", t.Pair()))
			event.Recalculated = true
			if err := s.engine.Recalculate(tx, t.Pair()); err != nil {
				return err
			}
			return tx.DB.First(t, t.ID).Error
		}
		return s.book(tx, t)
	})
	if err != nil {
		return nil, err
	}

	t.Stock = stock
	s.logger.Info("Transaction created",
		zap.Uint("transaction_id", t.ID),
		zap.String("symbol", stock.Symbol),
		zap.String("type", string(t.Type)),
		zap.Stringer("quantity", t.Quantity),
		zap.Stringer("price", t.Price),
		zap.String("op_id", event.OpID))
	s.notify(ctx, event)
	return t, nil
}

// book runs the incremental path for a freshly stored transaction.
func (s *TransactionService) book(tx *uow.Tx, t *models.Transaction) error {
	if t.Type == models.TypeSell {
		res, err := s.matcher.CalculateFifoProfit(tx.DB, t)
		if err != nil {
			return err
		}
		if err := s.matcher.ApplyFifoResult(tx.DB, t, res); err != nil {
			return err
		}
	}
	return s.aggregator.UpdatePortfolio(tx, t)
}

// Update edits a transaction and replays its pair. Moving it to another
// account replays both the old and the new pair.
func (s *TransactionService) Update(ctx context.Context, id uint, req UpdateRequest) (*models.Transaction, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	userID := userctx.UserID(ctx)
	event := PositionChanged{UserID: userID, Operation: OpUpdate, TransactionID: id, Symbol: current.Stock.Symbol, Recalculated: true}
	var t *models.Transaction

	err = s.uow.Do(ctx, "update-transaction", []string{uow.StockKey(current.Stock.Symbol)}, func(tx *uow.Tx) error {
		event.OpID = tx.OpID
		var err error
		if t, err = loadOwned(tx.DB.Clauses(clause.Locking{Strength: "UPDATE"}), userID, id); err != nil {
			return err
		}
		oldPair := t.Pair()

		if req.AccountID != nil && (t.AccountID == nil || *t.AccountID != *req.AccountID) {
			account, err := findAccount(tx.DB, userID, *req.AccountID)
			if err != nil {
				return err
			}
			t.AccountID = &account.ID
		}
		if req.Quantity.Valid {
			t.Quantity = req.Quantity.Decimal
		}
		if req.Price.Valid {
			t.Price = req.Price.Decimal
		}
		if req.Commission.Valid {
			t.Commission = req.Commission.Decimal
		}
		if req.Date != nil {
			t.TransactionDate = req.Date.UTC()
		}
		if req.Notes != nil {
			t.Notes = *req.Notes
		}
		if err := validateAmounts(t.Quantity, t.Price, t.Commission); err != nil {
			return err
		}

		if err := tx.DB.Omit(clause.Associations).Save(t).Error; err != nil {
			return fmt.Errorf("failed to update transaction %d: %w", id, err)
		}

		event.Pairs = []models.Pair{oldPair}
		if newPair := t.Pair(); newPair != oldPair {
			event.Pairs = append(event.Pairs, newPair)
		}
		for _, pair := range event.Pairs {
			if err := s.engine.Recalculate(tx, pair); err != nil {
				return err
			}
		}
		return tx.DB.Preload("Stock").Preload("Account").First(t, id).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Transaction updated",
		zap.Uint("transaction_id", id),
		zap.Int("pairs", len(event.Pairs)),
		zap.String("op_id", event.OpID))
	s.notify(ctx, event)
	return t, nil
}

// Delete removes a transaction and replays its pair. Removing a BUY that a
// later SELL depends on fails with an InsufficientLotsError and changes nothing.
func (s *TransactionService) Delete(ctx context.Context, id uint) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	userID := userctx.UserID(ctx)
	event := PositionChanged{UserID: userID, Operation: OpDelete, TransactionID: id, Symbol: current.Stock.Symbol, Recalculated: true}

	err = s.uow.Do(ctx, "delete-transaction", []string{uow.StockKey(current.Stock.Symbol)}, func(tx *uow.Tx) error {
		event.OpID = tx.OpID
		t, err := loadOwned(tx.DB.Clauses(clause.Locking{Strength: "UPDATE"}), userID, id)
		if err != nil {
			return err
		}
		if err := tx.DB.Unscoped().Delete(&models.Transaction{}, t.ID).Error; err != nil {
			return fmt.Errorf("failed to delete transaction %d: %w", id, err)
		}
		event.Pairs = []models.Pair{t.Pair()}
		return s.engine.Recalculate(tx, t.Pair())
	})
	if err != nil {
		return err
	}

	s.logger.Info("Transaction deleted", zap.Uint("transaction_id", id), zap.String("op_id", event.OpID))
	s.notify(ctx, event)
	return nil
}

func (s *TransactionService) notify(ctx context.Context, event PositionChanged) {
	if s.observer != nil {
		s.observer.PositionChanged(ctx, event)
	}
}
