package journal

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"trade-journal-go/internal/cache"
	"trade-journal-go/internal/fifo"
	"trade-journal-go/internal/marketdata"
	"trade-journal-go/internal/models"
	"trade-journal-go/internal/portfolio"
	"trade-journal-go/internal/recalc"
	"trade-journal-go/internal/testutil"
	"trade-journal-go/internal/uow"
	"trade-journal-go/internal/userctx"
)

type mockProfiles struct {
	mock.Mock
}

func (m *mockProfiles) GetProfile(ctx context.Context, symbol string) (*marketdata.Profile, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*marketdata.Profile), args.Error(1)
}

var _ marketdata.ProfileProvider = (*mockProfiles)(nil)

type fixture struct {
	ctx          context.Context
	db           *gorm.DB
	cache        *cache.Cache
	accounts     *AccountService
	stocks       *StockService
	transactions *TransactionService
	reader       *portfolio.Reader
	account      models.Account
}

func setupTest(t *testing.T, profiles marketdata.ProfileProvider) fixture {
	db := testutil.OpenDB(t)
	c := cache.New(0)
	u := uow.New(db, c, zap.NewNop())
	aggregator := portfolio.NewAggregator(zap.NewNop())
	stocks := NewStockService(u, profiles, zap.NewNop())

	return fixture{
		ctx:      userctx.WithUser(context.Background(), "alice"),
		db:       db,
		cache:    c,
		accounts: NewAccountService(u, zap.NewNop()),
		stocks:   stocks,
		transactions: NewTransactionService(u, stocks, fifo.NewMatcher(zap.NewNop()), aggregator,
			recalc.NewEngine(aggregator, zap.NewNop()), zap.NewNop()),
		reader:  portfolio.NewReader(db, c, nil, 0.22, zap.NewNop()),
		account: testutil.CreateAccount(t, db, "alice", "Main", true),
	}
}

func (f fixture) request(typ models.TransactionType, qty, price string, day int) CreateRequest {
	return CreateRequest{
		Symbol:   "AAPL",
		Type:     typ,
		Quantity: testutil.D(qty),
		Price:    testutil.D(price),
		Date:     testutil.Day(day),
	}
}

func (f fixture) create(t *testing.T, typ models.TransactionType, qty, price string, day int) *models.Transaction {
	t.Helper()
	tr, err := f.transactions.Create(f.ctx, f.request(typ, qty, price, day))
	require.NoError(t, err)
	return tr
}

func (f fixture) reload(t *testing.T, id uint) models.Transaction {
	t.Helper()
	var tr models.Transaction
	require.NoError(t, f.db.First(&tr, id).Error)
	return tr
}

func (f fixture) position(t *testing.T, accountID uint) *models.Portfolio {
	t.Helper()
	var stock models.Stock
	require.NoError(t, f.db.Where("symbol = ?", "AAPL").First(&stock).Error)
	row, err := portfolio.Load(f.db, models.Pair{Scope: models.ExplicitScope(accountID), StockID: stock.ID})
	require.NoError(t, err)
	return row
}

// assertSettled checks that the open lots of every pair add up to its position.
func (f fixture) assertSettled(t *testing.T) {
	t.Helper()
	var lots []models.Transaction
	require.NoError(t, f.db.Where("type = ?", models.TypeBuy).Find(&lots).Error)
	sums := make(map[models.Pair]decimal.Decimal)
	for _, l := range lots {
		sums[l.Pair()] = sums[l.Pair()].Add(l.RemainingQuantity)
	}

	var rows []models.Portfolio
	require.NoError(t, f.db.Find(&rows).Error)
	positions := make(map[models.Pair]decimal.Decimal)
	for _, r := range rows {
		positions[models.Pair{Scope: models.ScopeOf(r.AccountID), StockID: r.StockID}] = r.Quantity
	}

	for pair, sum := range sums {
		testutil.AssertDecimal(t, sum.String(), positions[pair], "position of %s", pair)
	}
	for pair, qty := range positions {
		testutil.AssertDecimal(t, qty.String(), sums[pair], "lots of %s", pair)
	}
}

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(testutil.D(s))
}
