package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	autopkg "github.com/go-autopkg/autopkg"
	"github.com/go-autopkg/autopkg/internal/env"
	"github.com/go-autopkg/autopkg/internal/pkgrepo"
	"github.com/go-autopkg/autopkg/internal/store"
)

const packagesHelp = `autopkg packages {add|remove|list} [path|name...]

Inspect and manually manage the published repository, independent of
targets.json/git.json and the backend resolution they drive.

Examples:
  % autopkg packages list
  % autopkg packages add ./mypkg-1.0-1-x86_64.pkg.tar.xz
  % autopkg packages remove mypkg
`

func cmdPackages(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("packages", flag.ExitOnError)
	fset.Usage = usage(fset, packagesHelp)
	fset.Parse(args)
	if fset.NArg() == 0 {
		fset.Usage()
		os.Exit(2)
	}
	sub, rest := fset.Arg(0), fset.Args()[1:]

	repo, err := pkgrepo.Open(ctx, env.RepositoryName, env.Repository(), env.SignKey, false)
	if err != nil {
		return err
	}

	switch sub {
	case "add":
		lock, err := store.AcquireRunLock()
		if err != nil {
			return err
		}
		autopkg.RegisterAtExit(lock.Release)
		for _, path := range rest {
			if err := repo.Add(ctx, path); err != nil {
				return err
			}
		}
		return nil
	case "remove":
		lock, err := store.AcquireRunLock()
		if err != nil {
			return err
		}
		autopkg.RegisterAtExit(lock.Release)
		for _, name := range rest {
			if err := repo.Remove(ctx, name); err != nil {
				return err
			}
		}
		return nil
	case "list":
		names := repo.Packages()
		sort.Strings(names)
		for _, n := range names {
			v, _ := repo.Lookup(n)
			fmt.Printf("%s %s\n", n, v)
		}
		return nil
	default:
		fset.Usage()
		os.Exit(2)
	}
	return nil
}
