package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"trade-journal-go/internal/cache"
	"trade-journal-go/internal/config"
	"trade-journal-go/internal/errs"
	"trade-journal-go/internal/fifo"
	"trade-journal-go/internal/journal"
	"trade-journal-go/internal/marketdata"
	"trade-journal-go/internal/models"
	"trade-journal-go/internal/portfolio"
	"trade-journal-go/internal/recalc"
	"trade-journal-go/internal/uow"
)

// app holds the services the commands run against.
type app struct {
	log          *zap.Logger
	uow          *uow.UnitOfWork
	accounts     *journal.AccountService
	transactions *journal.TransactionService
	reader       *portfolio.Reader
	engine       *recalc.Engine
	out          io.Writer
}

func newApp(cfg *config.Config, db *gorm.DB, log *zap.Logger) *app {
	var (
		profiles marketdata.ProfileProvider
		quotes   portfolio.QuoteProvider
	)
	if cfg.MarketData.Enabled {
		client := marketdata.NewClient(&cfg.MarketData, log)
		profiles, quotes = client, client
	}

	c := cache.New(cfg.Journal.CacheTTL())
	u := uow.New(db, c, log)
	aggregator := portfolio.NewAggregator(log)
	engine := recalc.NewEngine(aggregator, log)
	stocks := journal.NewStockService(u, profiles, log)

	transactions := journal.NewTransactionService(u, stocks, fifo.NewMatcher(log), aggregator, engine, log)
	transactions.SetObserver(journal.ObserverFunc(func(_ context.Context, e journal.PositionChanged) {
		pairs := make([]string, len(e.Pairs))
		for i, p := range e.Pairs {
			pairs[i] = p.String()
		}
		log.Debug("Position changed",
			zap.String("op_id", e.OpID),
			zap.String("operation", string(e.Operation)),
			zap.Uint("transaction_id", e.TransactionID),
			zap.String("symbol", e.Symbol),
			zap.Strings("pairs", pairs),
			zap.Bool("recalculated", e.Recalculated))
	}))

	return &app{
		log:          log,
		uow:          u,
		accounts:     journal.NewAccountService(u, log),
		transactions: transactions,
		reader:       portfolio.NewReader(db, c, quotes, cfg.Journal.TaxRate, log),
		engine:       engine,
		out:          os.Stdout,
	}
}

func appOf(args []interface{}) *app {
	return args[0].(*app)
}

func register(c *subcommands.Commander) {
	c.Register(&accountsCmd{}, "accounts")

	c.Register(&tradeCmd{typ: models.TypeBuy}, "transactions")
	c.Register(&tradeCmd{typ: models.TypeSell}, "transactions")
	c.Register(&listCmd{}, "transactions")
	c.Register(&editCmd{}, "transactions")
	c.Register(&deleteCmd{}, "transactions")

	c.Register(&positionsCmd{}, "reports")
	c.Register(&gainsCmd{}, "reports")

	c.Register(&rebuildCmd{}, "maintenance")
}

// fail reports err on stderr and maps it to an exit status.
func (a *app) fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, "Error:", err)
	if errors.Is(err, errs.ErrValidation) {
		return subcommands.ExitUsageError
	}
	return subcommands.ExitFailure
}

func (a *app) table(header ...string) *tabwriter.Writer {
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, strings.Join(header, "\t")+"\t")
	return w
}

func (a *app) printJSON(v any) subcommands.ExitStatus {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return a.fail(err)
	}
	return subcommands.ExitSuccess
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errs.Invalid("date", fmt.Sprintf("cannot parse %q, use YYYY-MM-DD", s))
}

func parseDecimal(field, s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, errs.Invalid(field, fmt.Sprintf("%q is not a number", s))
	}
	return decimal.NewNullDecimal(d), nil
}

func optionalID(id uint) *uint {
	if id == 0 {
		return nil
	}
	return &id
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.StringFixed(2)
}
