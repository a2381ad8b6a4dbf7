package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/go-autopkg/autopkg/internal/store"
)

const targetsHelp = `autopkg targets {add|remove|list} [name...]

Maintain the list of desired package names in targets.json.

Examples:
  % autopkg targets add foo bar
  % autopkg targets remove bar
  % autopkg targets list
`

func cmdTargets(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("targets", flag.ExitOnError)
	fset.Usage = usage(fset, targetsHelp)
	fset.Parse(args)
	if fset.NArg() == 0 {
		fset.Usage()
		os.Exit(2)
	}
	sub, names := fset.Arg(0), fset.Args()[1:]
	switch sub {
	case "add":
		return store.Targets(func(targets *[]string) {
			have := make(map[string]bool, len(*targets))
			for _, t := range *targets {
				have[t] = true
			}
			for _, n := range names {
				if !have[n] {
					*targets = append(*targets, n)
					have[n] = true
				}
			}
		})
	case "remove":
		remove := make(map[string]bool, len(names))
		for _, n := range names {
			remove[n] = true
		}
		return store.Targets(func(targets *[]string) {
			kept := (*targets)[:0:0]
			for _, t := range *targets {
				if !remove[t] {
					kept = append(kept, t)
				}
			}
			*targets = kept
		})
	case "list":
		var targets []string
		if err := store.Targets(func(t *[]string) { targets = *t }); err != nil {
			return err
		}
		sorted := append([]string(nil), targets...)
		sort.Strings(sorted)
		for _, t := range sorted {
			fmt.Println(t)
		}
		return nil
	default:
		fset.Usage()
		os.Exit(2)
	}
	return nil
}
