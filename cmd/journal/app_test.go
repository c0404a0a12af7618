package main

import (
	"bytes"
	"context"
	"flag"
	"testing"

	"github.com/google/subcommands"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trade-journal-go/internal/config"
	"trade-journal-go/internal/errs"
	"trade-journal-go/internal/models"
	"trade-journal-go/internal/testutil"
)

func setupApp(t *testing.T) (*app, *bytes.Buffer) {
	db := testutil.OpenDB(t)
	testutil.CreateAccount(t, db, "default", "Main", true)
	cfg := config.Config{Journal: config.Journal{TaxRate: 0.22}}

	a := newApp(&cfg, db, zap.NewNop())
	out := new(bytes.Buffer)
	a.out = out
	return a, out
}

func run(t *testing.T, a *app, cmd subcommands.Command, args ...string) subcommands.ExitStatus {
	t.Helper()
	f := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.SetFlags(f)
	require.NoError(t, f.Parse(args))
	return cmd.Execute(context.Background(), f, a)
}

func TestTradeAndReportCommands(t *testing.T) {
	// Arrange
	a, out := setupApp(t)

	// Act
	buy := run(t, a, &tradeCmd{typ: models.TypeBuy}, "-q", "10", "-p", "10", "-d", "2024-01-01", "aapl")
	sell := run(t, a, &tradeCmd{typ: models.TypeSell}, "-q", "4", "-p", "15", "-c", "1", "-d", "2024-02-01", "AAPL")
	gains := run(t, a, &gainsCmd{}, "-y", "2024")

	// Assert
	assert.Equal(t, subcommands.ExitSuccess, buy)
	assert.Equal(t, subcommands.ExitSuccess, sell)
	assert.Equal(t, subcommands.ExitSuccess, gains)
	assert.Contains(t, out.String(), "realized P&L 19.00")
	assert.Contains(t, out.String(), "estimated tax at 0.22: 4.18")
}

func TestTradeCommand_Oversell(t *testing.T) {
	a, _ := setupApp(t)

	status := run(t, a, &tradeCmd{typ: models.TypeSell}, "-q", "1", "-p", "15", "AAPL")

	assert.Equal(t, subcommands.ExitUsageError, status)
}

func TestParseDate(t *testing.T) {
	testCases := []struct {
		in       string
		expected string
		invalid  bool
	}{
		{in: "2024-03-05", expected: "2024-03-05T00:00:00Z"},
		{in: "2024-03-05 14:30", expected: "2024-03-05T14:30:00Z"},
		{in: "2024-03-05T14:30:00+02:00", expected: "2024-03-05T12:30:00Z"},
		{in: "05/03/2024", invalid: true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			d, err := parseDate(tc.in)
			if tc.invalid {
				assert.ErrorIs(t, err, errs.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, d.Format("2006-01-02T15:04:05Z07:00"))
		})
	}
}
