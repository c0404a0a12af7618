package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"
)

type positionsCmd struct {
	asJSON bool
}

func (*positionsCmd) Name() string     { return "positions" }
func (*positionsCmd) Synopsis() string { return "show current positions" }
func (*positionsCmd) Usage() string {
	return `journal positions [-json] [<symbol>]

  Shows every open position, valued at the last quote when market data is
  enabled, or the position in one symbol across accounts.
`
}

func (c *positionsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.asJSON, "json", false, "Print JSON instead of a table.")
}

func (c *positionsCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appOf(args)

	if f.NArg() > 0 {
		p, err := a.reader.Position(ctx, f.Arg(0))
		if err != nil {
			return a.fail(err)
		}
		if c.asJSON {
			return a.printJSON(p)
		}
		fmt.Fprintf(a.out, "%s: %s shares, average %s, invested %s, realized %s\n",
			p.Symbol, p.Quantity, p.AveragePrice.StringFixed(2), p.TotalInvestment.StringFixed(2), p.RealizedPnl.StringFixed(2))
		return subcommands.ExitSuccess
	}

	s, err := a.reader.Summary(ctx)
	if err != nil {
		return a.fail(err)
	}
	if c.asJSON {
		return a.printJSON(s)
	}

	w := a.table("ACCOUNT", "SYMBOL", "QTY", "AVG", "INVESTED", "LAST", "VALUE", "UNREALIZED")
	for _, h := range s.Holdings {
		account := h.AccountName
		if h.AccountID == nil {
			account = "legacy"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			account, h.Symbol, h.Quantity, h.AveragePrice.StringFixed(2), h.TotalInvestment.StringFixed(2),
			nullString(h.LastPrice), nullString(h.MarketValue), nullString(h.UnrealizedPnl))
	}
	fmt.Fprintf(w, "\t\t\t\t%s\t\t%s\t%s\t\n",
		s.TotalInvestment.StringFixed(2), nullString(s.MarketValue), nullString(s.UnrealizedPnl))
	if err := w.Flush(); err != nil {
		return a.fail(err)
	}

	fmt.Fprintf(a.out, "\nrealized P&L %s\n", s.RealizedPnl.StringFixed(2))
	for _, sw := range s.Sectors {
		fmt.Fprintf(a.out, "  %-20s %6s%%\n", sw.Sector, sw.WeightPercent.StringFixed(2))
	}
	return subcommands.ExitSuccess
}

type gainsCmd struct {
	year   int
	asJSON bool
}

func (*gainsCmd) Name() string     { return "gains" }
func (*gainsCmd) Synopsis() string { return "report realized gains and estimated tax for a year" }
func (*gainsCmd) Usage() string {
	return `journal gains [-y <year>] [-json]

  Sums the realized P&L of the year's sales per symbol. Losses offset gains.
`
}

func (c *gainsCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.year, "y", time.Now().Year(), "Calendar year.")
	f.BoolVar(&c.asJSON, "json", false, "Print JSON instead of a table.")
}

func (c *gainsCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appOf(args)
	report, err := a.reader.RealizedGains(ctx, c.year)
	if err != nil {
		return a.fail(err)
	}
	if c.asJSON {
		return a.printJSON(report)
	}

	w := a.table("SYMBOL", "SALES", "PROCEEDS", "COST", "P&L")
	for _, g := range report.Symbols {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t\n",
			g.Symbol, g.Sales, g.Proceeds.StringFixed(2), g.CostBasis.StringFixed(2), g.RealizedPnl.StringFixed(2))
	}
	if err := w.Flush(); err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.out, "\n%d realized P&L %s, estimated tax at %s: %s\n",
		report.Year, report.RealizedPnl.StringFixed(2), report.TaxRate.String(), report.EstimatedTax.StringFixed(2))
	return subcommands.ExitSuccess
}

type rebuildCmd struct{}

func (*rebuildCmd) Name() string     { return "rebuild" }
func (*rebuildCmd) Synopsis() string { return "recompute every lot and position from the transactions" }
func (*rebuildCmd) Usage() string {
	return `journal rebuild

  Replays the history of every (account, stock) pair. Pairs whose history
  cannot be replayed are reported and left unchanged.
`
}
func (*rebuildCmd) SetFlags(*flag.FlagSet) {}

func (*rebuildCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appOf(args)
	n, err := a.engine.RecalculateAll(ctx, a.uow)
	fmt.Fprintf(a.out, "rebuilt %d pairs\n", n)
	if err != nil {
		return a.fail(err)
	}
	return subcommands.ExitSuccess
}
