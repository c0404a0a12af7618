// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"trade-journal-go/internal/database"
	"trade-journal-go/internal/models"
)

// OpenDB opens a migrated in-memory database private to the test. The pool is
// capped at one connection, like the sqlite production setup, so concurrent
// units of work serialize on it.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// Day returns midnight UTC of the given day in January 2024.
func Day(n int) time.Time {
	return time.Date(2024, time.January, n, 0, 0, 0, 0, time.UTC)
}

// D parses a decimal literal and panics on malformed input.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// CreateAccount inserts an account for user.
func CreateAccount(t *testing.T, db *gorm.DB, userID, name string, isDefault bool) models.Account {
	t.Helper()
	account := models.Account{UserID: userID, Name: name, IsDefault: isDefault}
	require.NoError(t, db.Create(&account).Error)
	return account
}

// CreateStock inserts a stock with the symbol.
func CreateStock(t *testing.T, db *gorm.DB, symbol string) models.Stock {
	t.Helper()
	stock := models.Stock{Symbol: symbol, Name: symbol}
	require.NoError(t, db.Create(&stock).Error)
	return stock
}

// InsertTransaction writes a raw transaction row without running any bookkeeping.
// BUY rows start with their full quantity open.
func InsertTransaction(t *testing.T, db *gorm.DB, accountID *uint, stockID uint, typ models.TransactionType, qty, price string, day int) models.Transaction {
	t.Helper()
	tx := models.Transaction{
		AccountID:       accountID,
		StockID:         stockID,
		Type:            typ,
		Quantity:        D(qty),
		Price:           D(price),
		TransactionDate: Day(day),
	}
	if typ == models.TypeBuy {
		tx.RemainingQuantity = tx.Quantity
	}
	require.NoError(t, db.Create(&tx).Error)
	return tx
}

// AssertDecimal compares decimals by value.
func AssertDecimal(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, D(expected).Equal(actual), "expected %s, got %s %v", expected, actual, msgAndArgs)
}
