package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trade-journal-go/internal/errs"
	"trade-journal-go/internal/marketdata"
	"trade-journal-go/internal/models"
	"trade-journal-go/internal/uow"
)

// NormalizeSymbol trims and upper-cases a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// StockService resolves symbols to stock rows.
type StockService struct {
	uow      *uow.UnitOfWork
	profiles marketdata.ProfileProvider
	logger   *zap.Logger
}

// NewStockService creates a StockService. profiles may be nil, in which case
// new stocks carry only their symbol.
func NewStockService(u *uow.UnitOfWork, profiles marketdata.ProfileProvider, logger *zap.Logger) *StockService {
	return &StockService{uow: u, profiles: profiles, logger: logger.Named("stocks")}
}

func findStock(db *gorm.DB, symbol string) (*models.Stock, error) {
	var stock models.Stock
	if err := db.Where("symbol = ?", symbol).First(&stock).Error; err != nil {
		return nil, errs.FromGorm(err, "stock", symbol)
	}
	return &stock, nil
}

// FindOrCreate returns the stock for symbol, creating it when first seen.
// New stocks are enriched from the profile provider before any database
// transaction is opened; a failed lookup leaves a row named after the symbol.
func (s *StockService) FindOrCreate(ctx context.Context, symbol string) (*models.Stock, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, errs.Invalid("symbol", "must not be empty")
	}

	stock, err := findStock(s.uow.DB(ctx), symbol)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	stock = s.enrich(ctx, symbol)
	err = s.uow.Do(ctx, "create-stock", []string{uow.StockKey(symbol)}, func(tx *uow.Tx) error {
		if err := tx.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(stock).Error; err != nil {
			return fmt.Errorf("failed to create stock %s: %w", symbol, err)
		}
		// A concurrent creation wins the conflict; read its row back.
		stored, err := findStock(tx.DB, symbol)
		if err != nil {
			return err
		}
		stock = stored
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Stock registered", zap.String("symbol", symbol), zap.String("name", stock.Name))
	return stock, nil
}

func (s *StockService) enrich(ctx context.Context, symbol string) *models.Stock {
	stock := &models.Stock{Symbol: symbol, Name: symbol}
	if s.profiles == nil {
		return stock
	}

	profile, err := s.profiles.GetProfile(ctx, symbol)
	if err != nil {
		s.logger.Warn("Profile lookup failed, using symbol only", zap.String("symbol", symbol), zap.Error(err))
		return stock
	}
	if profile.Name != "" {
		stock.Name = profile.Name
	}
	stock.Exchange = profile.Exchange
	stock.Sector = profile.Sector
	return stock
}
