package main

import (
	"context"
	"flag"

	autopkg "github.com/go-autopkg/autopkg"
	"github.com/go-autopkg/autopkg/internal/env"
	"github.com/go-autopkg/autopkg/internal/executor"
	"github.com/go-autopkg/autopkg/internal/logging"
	"github.com/go-autopkg/autopkg/internal/store"
)

const updateHelp = `autopkg update [autoremove]

Resolve targets, plan, and build: the end-to-end driver. Pass the
literal argument "autoremove" to additionally remove, after a
successful build, every repository package not named by any Plan.
`

func cmdUpdate(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("update", flag.ExitOnError)
	fset.Usage = usage(fset, updateHelp)
	fset.Parse(args)
	doAutoremove := fset.NArg() > 0 && fset.Arg(0) == "autoremove"

	lock, err := store.AcquireRunLock()
	if err != nil {
		return err
	}
	autopkg.RegisterAtExit(lock.Release)

	logging.Header("resolving targets")
	repo, err := openRepository(ctx)
	if err != nil {
		return err
	}
	plans, err := computePlans(ctx, repo)
	if err != nil {
		return err
	}
	printPlans(plans)

	logging.Header("building")
	if err := executor.Run(ctx, plans, repo, env.Workspaces(), env.RepositoryName, env.SignKey); err != nil {
		return err
	}

	if doAutoremove {
		logging.Header("autoremove")
		if err := executor.Autoremove(ctx, plans, repo); err != nil {
			return err
		}
	}

	logging.Good("update complete")
	return nil
}
