package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/go-autopkg/autopkg/internal/plan"
)

const planHelp = `autopkg plan

Resolve the current targets.json/git.json through the backend chain,
build the dependency graph, and print the resulting Plan list without
building anything.
`

func cmdPlan(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("plan", flag.ExitOnError)
	fset.Usage = usage(fset, planHelp)
	fset.Parse(args)

	repo, err := openRepository(ctx)
	if err != nil {
		return err
	}
	plans, err := computePlans(ctx, repo)
	if err != nil {
		return err
	}
	printPlans(plans)
	return nil
}

func printPlans(plans []*plan.Plan) {
	for _, p := range plans {
		fmt.Printf("%s chroot=%v\n", p.Ref, p.Chroot())
		if len(p.Requisites) > 0 {
			fmt.Printf("  requisites: %v\n", p.Requisites)
		}
		if len(p.Build) > 0 {
			fmt.Printf("  build: %v\n", p.Build)
		}
		if len(p.Keep) > 0 {
			fmt.Printf("  keep: %v\n", p.Keep)
		}
	}
}
