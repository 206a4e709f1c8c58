// Command admin runs operational tasks against the ledger database:
// reporting balance drift and repairing it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"lekha.app/internal/store/pg"
)

func openStore(dsn string) (*pg.Store, error) {
	if dsn == "" {
		dsn = os.Getenv("LEKHA_PG_DSN")
	}
	if dsn == "" {
		return nil, fmt.Errorf("missing DSN: provide via -dsn or LEKHA_PG_DSN")
	}
	return pg.Open(dsn)
}

type driftCmd struct {
	dsn   string
	owner string
}

func (*driftCmd) Name() string     { return "drift" }
func (*driftCmd) Synopsis() string { return "report balance drift for an owner's accounts" }
func (*driftCmd) Usage() string {
	return "drift -owner <user-id> [-dsn <postgres-dsn>]\n"
}

func (c *driftCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.dsn, "dsn", "", "PostgreSQL DSN (defaults to LEKHA_PG_DSN)")
	f.StringVar(&c.owner, "owner", "", "Owner user id")
}

func (c *driftCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.owner == "" {
		fmt.Fprintln(os.Stderr, "missing -owner")
		return subcommands.ExitUsageError
	}
	store, err := openStore(c.dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer store.Close()

	accounts, err := store.ListAccounts(ctx, c.owner)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list accounts: %v\n", err)
		return subcommands.ExitFailure
	}
	drifted := 0
	for _, acc := range accounts {
		truth, err := store.Recompute(ctx, c.owner, acc.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "recompute %s: %v\n", acc.ID, err)
			return subcommands.ExitFailure
		}
		if truth != acc.Balance {
			drifted++
			fmt.Printf("%s\t%s\tstored=%s computed=%s drift=%s\n",
				acc.ID, acc.Name, acc.Balance, truth, acc.Balance-truth)
		}
	}
	fmt.Printf("%d of %d accounts drifted\n", drifted, len(accounts))
	return subcommands.ExitSuccess
}

type repairCmd struct {
	dsn     string
	owner   string
	account string
}

func (*repairCmd) Name() string     { return "repair" }
func (*repairCmd) Synopsis() string { return "recompute and overwrite a drifted balance" }
func (*repairCmd) Usage() string {
	return "repair -owner <user-id> -account <account-id> [-dsn <postgres-dsn>]\n"
}

func (c *repairCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.dsn, "dsn", "", "PostgreSQL DSN (defaults to LEKHA_PG_DSN)")
	f.StringVar(&c.owner, "owner", "", "Owner user id")
	f.StringVar(&c.account, "account", "", "Account id to repair")
}

func (c *repairCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.owner == "" || c.account == "" {
		fmt.Fprintln(os.Stderr, "missing -owner or -account")
		return subcommands.ExitUsageError
	}
	store, err := openStore(c.dsn)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer store.Close()

	res, err := store.RecomputeAndRepair(ctx, c.owner, c.account)
	if err != nil {
		fmt.Fprintf(os.Stderr, "repair: %v\n", err)
		return subcommands.ExitFailure
	}
	if res.Drift == 0 {
		fmt.Printf("%s: balance %s already consistent\n", res.AccountID, res.After)
	} else {
		fmt.Printf("%s: %s -> %s (drift %s)\n", res.AccountID, res.Before, res.After, res.Drift)
	}
	return subcommands.ExitSuccess
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&driftCmd{}, "ledger")
	subcommands.Register(&repairCmd{}, "ledger")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}
