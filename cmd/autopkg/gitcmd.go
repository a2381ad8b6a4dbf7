package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/go-autopkg/autopkg/internal/backend"
	"github.com/go-autopkg/autopkg/internal/store"
)

const gitHelp = `autopkg git {add <url> [path] [branch] | remove <index>... | list}

Maintain the list of ad-hoc Git recipe sources in git.json. path
defaults to "/" and branch defaults to "master" when omitted.

Examples:
  % autopkg git add https://example.com/foo.git pkg/foo release
  % autopkg git list
  % autopkg git remove 0
`

func cmdGit(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("git", flag.ExitOnError)
	fset.Usage = usage(fset, gitHelp)
	fset.Parse(args)
	if fset.NArg() == 0 {
		fset.Usage()
		os.Exit(2)
	}
	sub, rest := fset.Arg(0), fset.Args()[1:]

	switch sub {
	case "add":
		if len(rest) == 0 {
			fset.Usage()
			os.Exit(2)
		}
		cfg := backend.GitConfig{Repository: rest[0]}
		if len(rest) > 1 {
			cfg.Path = rest[1]
		}
		if len(rest) > 2 {
			cfg.Branch = rest[2]
		}
		return store.GitSources(func(sources *[]backend.GitConfig) {
			*sources = append(*sources, cfg)
		})
	case "remove":
		indices := make(map[int]bool, len(rest))
		for _, s := range rest {
			i, err := strconv.Atoi(s)
			if err != nil {
				return fmt.Errorf("git remove: %q is not an index: %w", s, err)
			}
			indices[i] = true
		}
		return store.GitSources(func(sources *[]backend.GitConfig) {
			kept := (*sources)[:0:0]
			for i, c := range *sources {
				if !indices[i] {
					kept = append(kept, c)
				}
			}
			*sources = kept
		})
	case "list":
		var sources []backend.GitConfig
		if err := store.GitSources(func(s *[]backend.GitConfig) { sources = *s }); err != nil {
			return err
		}
		for i, c := range sources {
			path := c.Path
			if path == "" {
				path = "/"
			}
			branch := c.Branch
			if branch == "" {
				branch = "master"
			}
			fmt.Printf("%d: %s %s %s\n", i, c.Repository, path, branch)
		}
		return nil
	default:
		fset.Usage()
		os.Exit(2)
	}
	return nil
}
