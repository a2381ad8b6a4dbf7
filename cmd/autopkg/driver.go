package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-autopkg/autopkg/internal/backend"
	"github.com/go-autopkg/autopkg/internal/depgraph"
	"github.com/go-autopkg/autopkg/internal/env"
	"github.com/go-autopkg/autopkg/internal/pkgrepo"
	"github.com/go-autopkg/autopkg/internal/plan"
	"github.com/go-autopkg/autopkg/internal/store"
)

// backendsInPriorityOrder constructs the fixed Git -> GShellExt -> AUR
// backend chain from the persisted git.json, each a fresh per-run
// instance so their memoization caches don't leak across invocations.
func backendsInPriorityOrder() ([]backend.Backend, error) {
	var gitConfigs []backend.GitConfig
	if err := store.GitSources(func(sources *[]backend.GitConfig) {
		gitConfigs = *sources
	}); err != nil {
		return nil, fmt.Errorf("reading git.json: %w", err)
	}
	if err := os.MkdirAll(env.Workspaces(), 0o755); err != nil {
		return nil, err
	}
	return []backend.Backend{
		backend.NewGit(gitConfigs, env.Workspaces()),
		backend.NewGShellExt(),
		backend.NewAUR(),
	}, nil
}

// loadTargets returns the contents of targets.json in stored order;
// depgraph.Build deduplicates them case-insensitively.
func loadTargets() ([]string, error) {
	var targets []string
	if err := store.Targets(func(t *[]string) {
		targets = *t
	}); err != nil {
		return nil, fmt.Errorf("reading targets.json: %w", err)
	}
	return targets, nil
}

// openRepository opens (creating if necessary) the published outer
// repository at env.Repository().
func openRepository(ctx context.Context) (*pkgrepo.Repository, error) {
	return pkgrepo.Open(ctx, env.RepositoryName, env.Repository(), env.SignKey, false)
}

// computePlans resolves the current targets through the standard
// backend chain, builds the dependency graph, and lowers it to an
// ordered Plan list against repo.
func computePlans(ctx context.Context, repo *pkgrepo.Repository) ([]*plan.Plan, error) {
	targets, err := loadTargets()
	if err != nil {
		return nil, err
	}
	backends, err := backendsInPriorityOrder()
	if err != nil {
		return nil, err
	}
	roots, graph, err := depgraph.Build(ctx, targets, backends)
	if err != nil {
		return nil, fmt.Errorf("resolving dependency graph: %w", err)
	}
	plans, err := plan.Build(ctx, roots, graph, repo)
	if err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}
	return plans, nil
}
