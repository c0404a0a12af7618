package journal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-journal-go/internal/errs"
	"trade-journal-go/internal/models"
	"trade-journal-go/internal/userctx"
)

func TestAccountService_FirstAccountIsDefault(t *testing.T) {
	f := setupTest(t, nil)
	ctx := userctx.WithUser(f.ctx, "carol")

	first, err := f.accounts.Create(ctx, "ISA", false)
	require.NoError(t, err)
	second, err := f.accounts.Create(ctx, "Broker", false)
	require.NoError(t, err)

	assert.True(t, first.IsDefault)
	assert.False(t, second.IsDefault)
	def, err := f.accounts.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, def.ID)
}

func TestAccountService_SetDefaultKeepsExactlyOne(t *testing.T) {
	f := setupTest(t, nil)
	other, err := f.accounts.Create(f.ctx, "Broker", false)
	require.NoError(t, err)

	_, err = f.accounts.SetDefault(f.ctx, other.ID)
	require.NoError(t, err)

	accounts, err := f.accounts.List(f.ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, other.ID, accounts[0].ID, "default is listed first")
	assert.True(t, accounts[0].IsDefault)
	assert.False(t, accounts[1].IsDefault)
}

func TestAccountService_CreateAsDefault(t *testing.T) {
	f := setupTest(t, nil)

	created, err := f.accounts.Create(f.ctx, "  Pension ", true)

	require.NoError(t, err)
	assert.Equal(t, "Pension", created.Name)
	var defaults int64
	f.db.Model(&models.Account{}).Where("user_id = ? AND is_default = ?", "alice", true).Count(&defaults)
	assert.Equal(t, int64(1), defaults)
}

func TestAccountService_Delete(t *testing.T) {
	testCases := []struct {
		name        string
		arrange     func(t *testing.T, f fixture) uint
		expectError error
	}{
		{
			name:        "Default account",
			arrange:     func(t *testing.T, f fixture) uint { return f.account.ID },
			expectError: errs.ErrInvalidState,
		},
		{
			name: "Account with positions",
			arrange: func(t *testing.T, f fixture) uint {
				other, err := f.accounts.Create(f.ctx, "Broker", false)
				require.NoError(t, err)
				req := f.request(models.TypeBuy, "1", "10", 1)
				req.AccountID = &other.ID
				_, err = f.transactions.Create(f.ctx, req)
				require.NoError(t, err)
				return other.ID
			},
			expectError: errs.ErrInvalidState,
		},
		{
			name: "Another user's account",
			arrange: func(t *testing.T, f fixture) uint {
				ctx := userctx.WithUser(f.ctx, "bob")
				other, err := f.accounts.Create(ctx, "Main", false)
				require.NoError(t, err)
				return other.ID
			},
			expectError: errs.ErrNotFound,
		},
		{
			name: "Empty account",
			arrange: func(t *testing.T, f fixture) uint {
				other, err := f.accounts.Create(f.ctx, "Broker", false)
				require.NoError(t, err)
				return other.ID
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := setupTest(t, nil)
			id := tc.arrange(t, f)

			err := f.accounts.Delete(f.ctx, id)

			if tc.expectError != nil {
				assert.ErrorIs(t, err, tc.expectError)
				return
			}
			require.NoError(t, err)
			_, err = f.accounts.Get(f.ctx, id)
			assert.ErrorIs(t, err, errs.ErrNotFound)
		})
	}
}

func TestAccountService_EmptyName(t *testing.T) {
	f := setupTest(t, nil)

	_, err := f.accounts.Create(f.ctx, " ", false)

	assert.ErrorIs(t, err, errs.ErrValidation)
}
