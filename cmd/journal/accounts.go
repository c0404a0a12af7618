package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type accountsCmd struct {
	create      string
	makeDefault bool
	setDefault  uint
	remove      uint
}

func (*accountsCmd) Name() string     { return "accounts" }
func (*accountsCmd) Synopsis() string { return "list, create or manage accounts" }
func (*accountsCmd) Usage() string {
	return `journal accounts [-create <name> [-default]] [-set-default <id>] [-delete <id>]

  Without flags, lists the user's accounts. The first account of a user is
  always the default one.
`
}

func (c *accountsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.create, "create", "", "Create an account with this name.")
	f.BoolVar(&c.makeDefault, "default", false, "Make the created account the default one.")
	f.UintVar(&c.setDefault, "set-default", 0, "Make the account with this id the default one.")
	f.UintVar(&c.remove, "delete", 0, "Delete the account with this id.")
}

func (c *accountsCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appOf(args)

	switch {
	case c.create != "":
		account, err := a.accounts.Create(ctx, c.create, c.makeDefault)
		if err != nil {
			return a.fail(err)
		}
		fmt.Fprintf(a.out, "created account %d %q\n", account.ID, account.Name)
	case c.setDefault != 0:
		account, err := a.accounts.SetDefault(ctx, c.setDefault)
		if err != nil {
			return a.fail(err)
		}
		fmt.Fprintf(a.out, "account %d %q is now the default\n", account.ID, account.Name)
	case c.remove != 0:
		if err := a.accounts.Delete(ctx, c.remove); err != nil {
			return a.fail(err)
		}
		fmt.Fprintf(a.out, "deleted account %d\n", c.remove)
	}

	accounts, err := a.accounts.List(ctx)
	if err != nil {
		return a.fail(err)
	}
	w := a.table("ID", "NAME", "DEFAULT")
	for _, acc := range accounts {
		def := ""
		if acc.IsDefault {
			def = "*"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t\n", acc.ID, acc.Name, def)
	}
	if err := w.Flush(); err != nil {
		return a.fail(err)
	}
	return subcommands.ExitSuccess
}
