package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"trade-journal-go/internal/journal"
	"trade-journal-go/internal/models"
)

// tradeCmd records a BUY or a SELL.
type tradeCmd struct {
	typ        models.TransactionType
	account    uint
	date       string
	quantity   string
	price      string
	commission string
	notes      string
}

func (c *tradeCmd) Name() string { return strings.ToLower(string(c.typ)) }
func (c *tradeCmd) Synopsis() string {
	return fmt.Sprintf("record a %s transaction", c.typ)
}
func (c *tradeCmd) Usage() string {
	return fmt.Sprintf(`journal %s -q <quantity> -p <price> [-c <commission>] [-d <date>] [-a <account>] [-n <notes>] <symbol>

  Records a %s of <symbol>. Without -a the default account is used, without
  -d the current time.
`, c.Name(), c.typ)
}

func (c *tradeCmd) SetFlags(f *flag.FlagSet) {
	f.UintVar(&c.account, "a", 0, "Account id.")
	f.StringVar(&c.date, "d", "", "Transaction date (YYYY-MM-DD or RFC 3339).")
	f.StringVar(&c.quantity, "q", "", "Quantity.")
	f.StringVar(&c.price, "p", "", "Price per share.")
	f.StringVar(&c.commission, "c", "", "Commission paid.")
	f.StringVar(&c.notes, "n", "", "Free-form notes.")
}

func (c *tradeCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appOf(args)
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	req := journal.CreateRequest{
		AccountID: optionalID(c.account),
		Symbol:    f.Arg(0),
		Type:      c.typ,
		Notes:     c.notes,
	}
	var err error
	if req.Date, err = parseDate(c.date); err != nil {
		return a.fail(err)
	}
	quantity, err := parseDecimal("quantity", c.quantity)
	if err != nil {
		return a.fail(err)
	}
	price, err := parseDecimal("price", c.price)
	if err != nil {
		return a.fail(err)
	}
	if req.Commission, err = parseDecimal("commission", c.commission); err != nil {
		return a.fail(err)
	}
	req.Quantity, req.Price = quantity.Decimal, price.Decimal

	t, err := a.transactions.Create(ctx, req)
	if err != nil {
		return a.fail(err)
	}

	fmt.Fprintf(a.out, "recorded %s #%d: %s %s @ %s\n", t.Type, t.ID, t.Quantity, t.Stock.Symbol, t.Price)
	if t.Type == models.TypeSell {
		fmt.Fprintf(a.out, "cost basis %s, realized P&L %s\n", t.CostBasis.StringFixed(2), t.RealizedPnl.StringFixed(2))
	}
	return subcommands.ExitSuccess
}

type listCmd struct {
	account uint
	typ     string
	asJSON  bool
}

func (*listCmd) Name() string     { return "tx" }
func (*listCmd) Synopsis() string { return "list transactions" }
func (*listCmd) Usage() string {
	return `journal tx [-a <account>] [-t BUY|SELL] [-json] [<symbol>]

  Lists transactions ordered by date.
`
}

func (c *listCmd) SetFlags(f *flag.FlagSet) {
	f.UintVar(&c.account, "a", 0, "Only this account.")
	f.StringVar(&c.typ, "t", "", "Only BUY or SELL transactions.")
	f.BoolVar(&c.asJSON, "json", false, "Print JSON instead of a table.")
}

func (c *listCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appOf(args)
	filter := journal.ListFilter{
		AccountID: optionalID(c.account),
		Symbol:    f.Arg(0),
		Type:      models.TransactionType(strings.ToUpper(c.typ)),
	}

	list, err := a.transactions.List(ctx, filter)
	if err != nil {
		return a.fail(err)
	}
	if c.asJSON {
		return a.printJSON(list)
	}

	w := a.table("ID", "DATE", "ACCOUNT", "SYMBOL", "TYPE", "QTY", "PRICE", "COMMISSION", "OPEN", "P&L")
	for _, t := range list {
		account := "legacy"
		if t.Account != nil {
			account = t.Account.Name
		}
		open, pnl := "", ""
		if t.Type == models.TypeBuy {
			open = t.RemainingQuantity.String()
		} else {
			pnl = t.RealizedPnl.StringFixed(2)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			t.ID, t.TransactionDate.Format("2006-01-02"), account, t.Stock.Symbol, t.Type,
			t.Quantity, t.Price, t.Commission, open, pnl)
	}
	if err := w.Flush(); err != nil {
		return a.fail(err)
	}
	return subcommands.ExitSuccess
}

type editCmd struct {
	account    uint
	date       string
	quantity   string
	price      string
	commission string
	notes      string
	setNotes   bool
}

func (*editCmd) Name() string     { return "edit" }
func (*editCmd) Synopsis() string { return "edit a transaction and rebuild its position" }
func (*editCmd) Usage() string {
	return `journal edit [-q <quantity>] [-p <price>] [-c <commission>] [-d <date>] [-a <account>] [-n <notes>] <id>

  Changes the given fields of a transaction. The affected positions and every
  SELL after it are recomputed.
`
}

func (c *editCmd) SetFlags(f *flag.FlagSet) {
	f.UintVar(&c.account, "a", 0, "Move to this account.")
	f.StringVar(&c.date, "d", "", "New date.")
	f.StringVar(&c.quantity, "q", "", "New quantity.")
	f.StringVar(&c.price, "p", "", "New price.")
	f.StringVar(&c.commission, "c", "", "New commission.")
	f.Func("n", "New notes.", func(s string) error {
		c.notes, c.setNotes = s, true
		return nil
	})
}

func (c *editCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appOf(args)
	id, ok := transactionID(f)
	if !ok {
		return subcommands.ExitUsageError
	}

	req := journal.UpdateRequest{AccountID: optionalID(c.account)}
	if c.setNotes {
		req.Notes = &c.notes
	}
	if c.date != "" {
		d, err := parseDate(c.date)
		if err != nil {
			return a.fail(err)
		}
		req.Date = &d
	}
	var err error
	fields := []struct {
		name  string
		value string
		dst   *decimal.NullDecimal
	}{
		{"quantity", c.quantity, &req.Quantity},
		{"price", c.price, &req.Price},
		{"commission", c.commission, &req.Commission},
	}
	for _, fl := range fields {
		if *fl.dst, err = parseDecimal(fl.name, fl.value); err != nil {
			return a.fail(err)
		}
	}

	t, err := a.transactions.Update(ctx, id, req)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.out, "updated %s #%d: %s %s @ %s\n", t.Type, t.ID, t.Quantity, t.Stock.Symbol, t.Price)
	return subcommands.ExitSuccess
}

type deleteCmd struct{}

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "delete a transaction and rebuild its position" }
func (*deleteCmd) Usage() string {
	return `journal delete <id>

  Deletes a transaction. Deleting a BUY that a later SELL was matched against
  is refused.
`
}
func (*deleteCmd) SetFlags(*flag.FlagSet) {}

func (*deleteCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appOf(args)
	id, ok := transactionID(f)
	if !ok {
		return subcommands.ExitUsageError
	}
	if err := a.transactions.Delete(ctx, id); err != nil {
		return a.fail(err)
	}
	fmt.Fprintf(a.out, "deleted transaction #%d\n", id)
	return subcommands.ExitSuccess
}

func transactionID(f *flag.FlagSet) (uint, bool) {
	var id uint
	if f.NArg() != 1 {
		f.Usage()
		return 0, false
	}
	if _, err := fmt.Sscan(f.Arg(0), &id); err != nil || id == 0 {
		fmt.Fprintf(f.Output(), "invalid transaction id %q\n", f.Arg(0))
		return 0, false
	}
	return id, true
}
