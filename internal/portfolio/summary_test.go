package portfolio

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trade-journal-go/internal/errs"
	"trade-journal-go/internal/models"
	"trade-journal-go/internal/testutil"
	"trade-journal-go/internal/userctx"
)

type mockQuotes struct {
	mock.Mock
}

func (m *mockQuotes) GetQuotes(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	args := m.Called(ctx, symbols)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]decimal.Decimal), args.Error(1)
}

var _ QuoteProvider = (*mockQuotes)(nil)

func (f fixture) position(t *testing.T, accountID *uint, stockID uint, qty, investment string) {
	t.Helper()
	row := models.Portfolio{
		AccountID:       accountID,
		StockID:         stockID,
		Quantity:        testutil.D(qty),
		TotalInvestment: testutil.D(investment),
	}
	row.AveragePrice = PositionOf(&row).AveragePrice()
	require.NoError(t, f.db.Create(&row).Error)
}

func (f fixture) sale(t *testing.T, accountID *uint, stockID uint, qty, price, costBasis, pnl string, day int) {
	t.Helper()
	tr := testutil.InsertTransaction(t, f.db, accountID, stockID, models.TypeSell, qty, price, day)
	require.NoError(t, f.db.Model(&tr).UpdateColumns(map[string]any{
		"cost_basis":   testutil.D(costBasis),
		"realized_pnl": testutil.D(pnl),
	}).Error)
}

func TestSummary(t *testing.T) {
	// Arrange
	f := setupTest(t)
	msft := testutil.CreateStock(t, f.db, "MSFT")
	require.NoError(t, f.db.Model(&f.stock).Update("sector", "Technology").Error)
	bob := testutil.CreateAccount(t, f.db, "bob", "Main", true)

	f.position(t, &f.account.ID, f.stock.ID, "8", "160")
	f.position(t, nil, msft.ID, "2", "40")
	f.position(t, &bob.ID, msft.ID, "100", "1000")
	f.sale(t, &f.account.ID, f.stock.ID, "12", "30", "140", "220", 3)

	quotes := new(mockQuotes)
	quotes.On("GetQuotes", mock.Anything, []string{"AAPL", "MSFT"}).
		Return(map[string]decimal.Decimal{"AAPL": testutil.D("25"), "MSFT": testutil.D("30")}, nil).Once()
	reader := NewReader(f.db, f.cache, quotes, 0.22, zap.NewNop())
	ctx := userctx.WithUser(context.Background(), "alice")

	// Act
	s, err := reader.Summary(ctx)

	// Assert
	require.NoError(t, err)
	require.Len(t, s.Holdings, 2, "legacy rows are included, other users are not")
	assert.Equal(t, "AAPL", s.Holdings[0].Symbol)
	assert.Equal(t, "Main", s.Holdings[0].AccountName)
	assert.Nil(t, s.Holdings[1].AccountID)
	testutil.AssertDecimal(t, "200", s.TotalInvestment)
	require.True(t, s.MarketValue.Valid)
	testutil.AssertDecimal(t, "260", s.MarketValue.Decimal)
	testutil.AssertDecimal(t, "60", s.UnrealizedPnl.Decimal)
	testutil.AssertDecimal(t, "220", s.RealizedPnl)
	require.Len(t, s.Sectors, 2)
	assert.Equal(t, "Technology", s.Sectors[0].Sector)
	testutil.AssertDecimal(t, "80", s.Sectors[0].WeightPercent)

	// The second read is served from the cache.
	again, err := reader.Summary(ctx)
	require.NoError(t, err)
	assert.Same(t, s, again)
	quotes.AssertExpectations(t)
}

func TestSummary_QuoteFailureLeavesValuesEmpty(t *testing.T) {
	f := setupTest(t)
	f.position(t, &f.account.ID, f.stock.ID, "8", "160")
	quotes := new(mockQuotes)
	quotes.On("GetQuotes", mock.Anything, mock.Anything).Return(nil, errors.New("offline"))
	reader := NewReader(f.db, f.cache, quotes, 0.22, zap.NewNop())

	s, err := reader.Summary(userctx.WithUser(context.Background(), "alice"))

	require.NoError(t, err)
	require.Len(t, s.Holdings, 1)
	assert.False(t, s.Holdings[0].LastPrice.Valid)
	assert.False(t, s.MarketValue.Valid)
	testutil.AssertDecimal(t, "160", s.TotalInvestment)
}

func TestPosition(t *testing.T) {
	f := setupTest(t)
	broker := testutil.CreateAccount(t, f.db, "alice", "Broker", false)
	f.position(t, &f.account.ID, f.stock.ID, "1", "100")
	f.position(t, &broker.ID, f.stock.ID, "2", "100")
	reader := NewReader(f.db, f.cache, nil, 0.22, zap.NewNop())
	ctx := userctx.WithUser(context.Background(), "alice")

	p, err := reader.Position(ctx, " aapl ")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", p.Symbol)
	assert.Len(t, p.Holdings, 2)
	testutil.AssertDecimal(t, "3", p.Quantity)
	testutil.AssertDecimal(t, "66.67", p.AveragePrice)

	_, err = reader.Position(ctx, "TSLA")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestRealizedGains(t *testing.T) {
	testCases := []struct {
		name        string
		pnls        []string
		expectedPnl string
		expectedTax string
	}{
		{name: "Gain is taxed", pnls: []string{"100", "50"}, expectedPnl: "150", expectedTax: "33"},
		{name: "Losses offset gains", pnls: []string{"100", "-40"}, expectedPnl: "60", expectedTax: "13.2"},
		{name: "Net loss owes nothing", pnls: []string{"10", "-40"}, expectedPnl: "-30", expectedTax: "0"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := setupTest(t)
			for i, pnl := range tc.pnls {
				f.sale(t, &f.account.ID, f.stock.ID, "1", "10", "1", pnl, i+2)
			}
			// Outside the reported year.
			old := testutil.InsertTransaction(t, f.db, &f.account.ID, f.stock.ID, models.TypeSell, "1", "10", 1)
			require.NoError(t, f.db.Model(&old).Updates(map[string]any{
				"transaction_date": testutil.Day(1).AddDate(-1, 0, 0),
				"realized_pnl":     testutil.D("1000"),
			}).Error)
			reader := NewReader(f.db, f.cache, nil, 0.22, zap.NewNop())

			report, err := reader.RealizedGains(userctx.WithUser(context.Background(), "alice"), 2024)

			require.NoError(t, err)
			testutil.AssertDecimal(t, tc.expectedPnl, report.RealizedPnl)
			testutil.AssertDecimal(t, tc.expectedTax, report.EstimatedTax)
			require.Len(t, report.Symbols, 1)
			assert.Equal(t, len(tc.pnls), report.Symbols[0].Sales)
		})
	}
}
