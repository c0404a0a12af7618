package journal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"trade-journal-go/internal/marketdata"
	"trade-journal-go/internal/models"
)

func TestStockService_FindOrCreate(t *testing.T) {
	t.Run("EnrichesNewStock", func(t *testing.T) {
		// Arrange
		profiles := new(mockProfiles)
		profiles.On("GetProfile", mock.Anything, "AAPL").
			Return(&marketdata.Profile{Symbol: "AAPL", Name: "Apple Inc.", Exchange: "NASDAQ", Sector: "Technology"}, nil).
			Once()
		f := setupTest(t, profiles)

		// Act
		stock, err := f.stocks.FindOrCreate(f.ctx, " aapl ")
		require.NoError(t, err)
		again, err := f.stocks.FindOrCreate(f.ctx, "AAPL")
		require.NoError(t, err)

		// Assert
		assert.Equal(t, "AAPL", stock.Symbol)
		assert.Equal(t, "Apple Inc.", stock.Name)
		assert.Equal(t, "NASDAQ", stock.Exchange)
		assert.Equal(t, "Technology", stock.Sector)
		assert.Equal(t, stock.ID, again.ID)
		profiles.AssertExpectations(t)
	})

	t.Run("LookupFailureFallsBackToSymbol", func(t *testing.T) {
		profiles := new(mockProfiles)
		profiles.On("GetProfile", mock.Anything, "XYZ").Return(nil, errors.New("provider down"))
		f := setupTest(t, profiles)

		stock, err := f.stocks.FindOrCreate(f.ctx, "xyz")

		require.NoError(t, err)
		assert.Equal(t, "XYZ", stock.Name)
		assert.Empty(t, stock.Exchange)
		var count int64
		f.db.Model(&models.Stock{}).Count(&count)
		assert.Equal(t, int64(1), count)
	})

	t.Run("TransactionOnUnknownSymbolSurvivesLookupFailure", func(t *testing.T) {
		profiles := new(mockProfiles)
		profiles.On("GetProfile", mock.Anything, "AAPL").Return(nil, errors.New("timeout"))
		f := setupTest(t, profiles)

		tr, err := f.transactions.Create(f.ctx, f.request(models.TypeBuy, "1", "10", 1))

		require.NoError(t, err)
		assert.Equal(t, "AAPL", tr.Stock.Name)
	})
}
