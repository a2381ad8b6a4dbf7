package main

import (
	"context"
	"flag"

	autopkg "github.com/go-autopkg/autopkg"
	"github.com/go-autopkg/autopkg/internal/executor"
	"github.com/go-autopkg/autopkg/internal/logging"
	"github.com/go-autopkg/autopkg/internal/store"
)

const autoremoveHelp = `autopkg autoremove

Compute the Plan list from the current targets.json/git.json and
remove, from the published repository, every package not named by any
Plan's build or keep list. Unlike "update autoremove", this never
builds anything first.
`

func cmdAutoremove(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("autoremove", flag.ExitOnError)
	fset.Usage = usage(fset, autoremoveHelp)
	fset.Parse(args)

	lock, err := store.AcquireRunLock()
	if err != nil {
		return err
	}
	autopkg.RegisterAtExit(lock.Release)

	repo, err := openRepository(ctx)
	if err != nil {
		return err
	}
	plans, err := computePlans(ctx, repo)
	if err != nil {
		return err
	}
	if err := executor.Autoremove(ctx, plans, repo); err != nil {
		return err
	}
	logging.Good("autoremove complete")
	return nil
}
