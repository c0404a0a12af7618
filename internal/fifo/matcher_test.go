package fifo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"trade-journal-go/internal/errs"
	"trade-journal-go/internal/ledger"
	"trade-journal-go/internal/models"
	"trade-journal-go/internal/testutil"
)

type fixture struct {
	db      *gorm.DB
	account models.Account
	stock   models.Stock
	matcher *Matcher
}

func setupTest(t *testing.T) fixture {
	db := testutil.OpenDB(t)
	return fixture{
		db:      db,
		account: testutil.CreateAccount(t, db, "alice", "Main", true),
		stock:   testutil.CreateStock(t, db, "AAPL"),
		matcher: NewMatcher(zap.NewNop()),
	}
}

func (f fixture) insert(t *testing.T, typ models.TransactionType, qty, price string, day int) models.Transaction {
	return testutil.InsertTransaction(t, f.db, &f.account.ID, f.stock.ID, typ, qty, price, day)
}

func TestCalculateFifoProfit_OldestLotsFirst(t *testing.T) {
	// Arrange
	f := setupTest(t)
	first := f.insert(t, models.TypeBuy, "10", "10", 1)
	second := f.insert(t, models.TypeBuy, "10", "20", 2)
	sell := f.insert(t, models.TypeSell, "12", "30", 3)

	// Act
	res, err := f.matcher.CalculateFifoProfit(f.db, &sell)

	// Assert
	require.NoError(t, err)
	testutil.AssertDecimal(t, "140", res.CostBasis)
	testutil.AssertDecimal(t, "220", res.RealizedPnl)
	require.Len(t, res.ConsumedLots, 2)
	assert.Equal(t, first.ID, res.ConsumedLots[0].TransactionID)
	testutil.AssertDecimal(t, "10", res.ConsumedLots[0].Quantity)
	assert.Equal(t, second.ID, res.ConsumedLots[1].TransactionID)
	testutil.AssertDecimal(t, "2", res.ConsumedLots[1].Quantity)

	// Nothing is written by the calculation.
	var reloaded models.Transaction
	require.NoError(t, f.db.First(&reloaded, first.ID).Error)
	testutil.AssertDecimal(t, "10", reloaded.RemainingQuantity)
}

func TestApplyFifoResult(t *testing.T) {
	// Arrange
	f := setupTest(t)
	first := f.insert(t, models.TypeBuy, "10", "10", 1)
	second := f.insert(t, models.TypeBuy, "10", "20", 2)
	sell := f.insert(t, models.TypeSell, "12", "30", 3)
	res, err := f.matcher.CalculateFifoProfit(f.db, &sell)
	require.NoError(t, err)

	// Act
	err = f.matcher.ApplyFifoResult(f.db, &sell, res)

	// Assert
	require.NoError(t, err)
	var lots []models.Transaction
	require.NoError(t, f.db.Order("id").Find(&lots, []uint{first.ID, second.ID}).Error)
	testutil.AssertDecimal(t, "0", lots[0].RemainingQuantity)
	testutil.AssertDecimal(t, "8", lots[1].RemainingQuantity)

	var stored models.Transaction
	require.NoError(t, f.db.First(&stored, sell.ID).Error)
	testutil.AssertDecimal(t, "140", stored.CostBasis)
	testutil.AssertDecimal(t, "220", stored.RealizedPnl)
}

func TestApplyFifoResult_StaleResultIsRejected(t *testing.T) {
	f := setupTest(t)
	f.insert(t, models.TypeBuy, "10", "10", 1)
	a := f.insert(t, models.TypeSell, "6", "12", 2)
	b := f.insert(t, models.TypeSell, "6", "12", 2)

	// Both results are computed before either is applied.
	resA, err := f.matcher.CalculateFifoProfit(f.db, &a)
	require.NoError(t, err)
	resB, err := f.matcher.CalculateFifoProfit(f.db, &b)
	require.NoError(t, err)

	require.NoError(t, f.matcher.ApplyFifoResult(f.db, &a, resA))
	err = f.matcher.ApplyFifoResult(f.db, &b, resB)

	assert.ErrorIs(t, err, errs.ErrInsufficientLots)
	var stored models.Transaction
	require.NoError(t, f.db.First(&stored, b.ID).Error)
	assert.True(t, stored.CostBasis.IsZero(), "failed apply leaves no partial write")
}

func TestCalculateFifoProfit_InsufficientLots(t *testing.T) {
	f := setupTest(t)
	f.insert(t, models.TypeBuy, "5", "10", 1)
	f.insert(t, models.TypeBuy, "5", "10", 3) // after the sell
	sell := f.insert(t, models.TypeSell, "6", "30", 2)

	_, err := f.matcher.CalculateFifoProfit(f.db, &sell)

	var lotsErr *errs.InsufficientLotsError
	require.ErrorAs(t, err, &lotsErr)
	testutil.AssertDecimal(t, "6", lotsErr.Requested)
	testutil.AssertDecimal(t, "5", lotsErr.Available)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestMatch(t *testing.T) {
	testCases := []struct {
		name         string
		lots         []ledger.Lot
		sell         models.Transaction
		expectedCost string
		expectedPnl  string
		expectError  error
	}{
		{
			name: "Sell commission reduces proceeds",
			lots: []ledger.Lot{{TransactionID: 1, Date: testutil.Day(1), Quantity: testutil.D("10"), Remaining: testutil.D("10"), Cost: testutil.D("100")}},
			sell: models.Transaction{Type: models.TypeSell, Quantity: testutil.D("10"), Price: testutil.D("12"),
				Commission: testutil.D("1.5"), TransactionDate: testutil.Day(2)},
			expectedCost: "100",
			expectedPnl:  "18.5",
		},
		{
			name: "Buy commission is part of cost basis",
			lots: []ledger.Lot{{TransactionID: 1, Date: testutil.Day(1), Quantity: testutil.D("3"), Remaining: testutil.D("3"), Cost: testutil.D("100")}},
			sell: models.Transaction{Type: models.TypeSell, Quantity: testutil.D("1"), Price: testutil.D("40"),
				TransactionDate: testutil.Day(2)},
			expectedCost: "33.333333",
			expectedPnl:  "6.67",
		},
		{
			name: "Loss",
			lots: []ledger.Lot{{TransactionID: 1, Date: testutil.Day(1), Quantity: testutil.D("2"), Remaining: testutil.D("2"), Cost: testutil.D("50")}},
			sell: models.Transaction{Type: models.TypeSell, Quantity: testutil.D("2"), Price: testutil.D("20"),
				TransactionDate: testutil.Day(2)},
			expectedCost: "50",
			expectedPnl:  "-10",
		},
		{
			name:        "Not a sell",
			sell:        models.Transaction{Type: models.TypeBuy, Quantity: testutil.D("1"), Price: testutil.D("1")},
			expectError: errs.ErrValidation,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Match(ledger.NewBook(1, tc.lots...), &tc.sell)

			if tc.expectError != nil {
				assert.ErrorIs(t, err, tc.expectError)
				return
			}
			require.NoError(t, err)
			testutil.AssertDecimal(t, tc.expectedCost, res.CostBasis)
			testutil.AssertDecimal(t, tc.expectedPnl, res.RealizedPnl)
		})
	}
}
