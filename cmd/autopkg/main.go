// Command autopkg is a personal package-build orchestrator: it
// resolves a user-maintained list of target package names through
// pluggable backends (AUR, GNOME Shell extensions, ad-hoc Git trees),
// plans an ordered build, executes it — in a clean chroot when
// required — and publishes the results into a signed local pacman
// repository.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	autopkg "github.com/go-autopkg/autopkg"
	"github.com/go-autopkg/autopkg/internal/logging"
)

var debug = flag.Bool("debug", false, "enable debug mode: format error messages with additional detail")

func funcmain() error {
	flag.Parse()

	if err := logging.Init(); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}

	type cmd struct {
		fn func(ctx context.Context, args []string) error
	}
	verbs := map[string]cmd{
		"targets":    {cmdTargets},
		"packages":   {cmdPackages},
		"git":        {cmdGit},
		"plan":       {cmdPlan},
		"update":     {cmdUpdate},
		"autoremove": {cmdAutoremove},
	}

	args := flag.Args()
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" || args[0] == "-help" {
		printTopLevelHelp()
		if len(args) == 0 {
			os.Exit(2)
		}
		return nil
	}

	verb, rest := args[0], args[1:]
	v, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", verb)
		printTopLevelHelp()
		os.Exit(2)
	}

	ctx, canc := autopkg.InterruptibleContext()
	defer canc()

	if err := v.fn(ctx, rest); err != nil {
		if err := autopkg.RunAtExit(); err != nil {
			fmt.Fprintf(os.Stderr, "during cleanup: %v\n", err)
		}
		if *debug {
			return fmt.Errorf("%s: %+v", verb, err)
		}
		return fmt.Errorf("%s: %v", verb, err)
	}

	return autopkg.RunAtExit()
}

func printTopLevelHelp() {
	fmt.Fprintf(os.Stderr, "autopkg [-flags] <command> [-flags] <args>\n")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "To get help on any command, use autopkg <command> -help.\n")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "Target list commands:\n")
	fmt.Fprintf(os.Stderr, "\ttargets    - maintain the desired package name list\n")
	fmt.Fprintf(os.Stderr, "\tgit        - maintain ad-hoc git recipe sources\n")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "Build commands:\n")
	fmt.Fprintf(os.Stderr, "\tplan       - print the computed build plan without building\n")
	fmt.Fprintf(os.Stderr, "\tupdate     - resolve, plan, build, and publish\n")
	fmt.Fprintf(os.Stderr, "\tautoremove - remove repository packages no plan names\n")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "Repository commands:\n")
	fmt.Fprintf(os.Stderr, "\tpackages   - inspect/manually manage the published repository\n")
}

func main() {
	if err := funcmain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
