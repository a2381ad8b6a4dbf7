// Package executor drives a planned build run: it decides once,
// up front, whether any Plan needs a chroot at all, acquires one if
// so, and then walks the Plan list in order — seeding requisites,
// materializing each Buildable's recipe into a fresh workspace,
// building, and publishing the resulting artifacts. A failed build is
// logged and its Plan abandoned; every other error is fatal to the
// run, matching spec.md §7's "local recovery for ... individual Plan
// build failures; everything else bubbles to the driver".
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	autopkg "github.com/go-autopkg/autopkg"
	"github.com/go-autopkg/autopkg/internal/chroot"
	"github.com/go-autopkg/autopkg/internal/logging"
	"github.com/go-autopkg/autopkg/internal/pkginfo"
	"github.com/go-autopkg/autopkg/internal/plan"
)

// Repository is the subset of *pkgrepo.Repository the executor needs.
// Factored out so tests can drive executePlan against a fake.
type Repository interface {
	plan.RepositoryVersions
	FindArtifact(pkgname string) (string, error)
	Add(ctx context.Context, artifactFile string) error
	Remove(ctx context.Context, pkgname string) error
	Packages() []string
}

// Run drives plans in order against repo. workspaceDir is the base
// directory (typically env.Workspaces()) under which per-run chroot
// and per-plan build workspaces are created. repoName is the outer
// repository's name, needed to stand up the chroot's inner repository
// under the same name.
func Run(ctx context.Context, plans []*plan.Plan, repo Repository, workspaceDir, repoName, signKey string) error {
	needsChroot := false
	for _, p := range plans {
		if len(p.Build) > 0 && p.Chroot() {
			needsChroot = true
			break
		}
	}

	if !needsChroot {
		return runPlans(ctx, plans, repo, nil, workspaceDir)
	}

	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return fmt.Errorf("executor: %w", err)
	}
	ws, err := os.MkdirTemp(workspaceDir, "autopkg-chroot-")
	if err != nil {
		return fmt.Errorf("executor: %w", err)
	}
	autopkg.RegisterAtExit(func() error { return os.RemoveAll(ws) })

	return chroot.WithArchRoot(ctx, ws, repoName, signKey, func(c *chroot.Chroot) error {
		return runPlans(ctx, plans, repo, c, workspaceDir)
	})
}

func runPlans(ctx context.Context, plans []*plan.Plan, repo Repository, c *chroot.Chroot, workspaceDir string) error {
	for _, p := range plans {
		if len(p.Build) == 0 {
			continue
		}
		if err := executePlan(ctx, p, repo, c, workspaceDir); err != nil {
			return fmt.Errorf("executor: plan %s: %w", p.Ref, err)
		}
	}
	return nil
}

// executePlan runs one Plan's worth of work: seed requisites (if this
// plan runs in the chroot), materialize the recipe into a fresh
// workspace, build, and publish. A build-tool failure is logged and
// reported as nil (abandon this Plan, keep going); any other error is
// returned so the caller can terminate the run.
func executePlan(ctx context.Context, p *plan.Plan, repo Repository, c *chroot.Chroot, workspaceDir string) error {
	if p.Chroot() && c != nil {
		for _, req := range p.Requisites {
			artifact, err := repo.FindArtifact(req)
			if err != nil {
				return fmt.Errorf("seeding requisite %s: %w", req, err)
			}
			if err := c.InnerRepo.Add(ctx, artifact); err != nil {
				return fmt.Errorf("seeding requisite %s into chroot: %w", req, err)
			}
		}
	}

	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return err
	}
	ws, err := os.MkdirTemp(workspaceDir, "autopkg-build-")
	if err != nil {
		return err
	}
	autopkg.RegisterAtExit(func() error { return os.RemoveAll(ws) })

	dir, err := p.Representative.WritePKGBUILDTo(ctx, ws)
	if err != nil {
		return fmt.Errorf("materializing recipe: %w", err)
	}

	var buildErr error
	if p.Chroot() {
		if c == nil {
			return fmt.Errorf("plan requires a chroot but none was acquired")
		}
		buildErr = c.Build(ctx, dir)
	} else {
		buildErr = chroot.Build(ctx, dir)
	}
	if buildErr != nil {
		var be *chroot.BuildError
		if errors.As(buildErr, &be) {
			logrus.Errorf("build of %s failed: %v", p.Ref, be)
			return nil
		}
		return buildErr
	}

	for _, name := range p.Build {
		artifactName, err := pkginfo.PickArtifactAt(dir, name)
		if err != nil {
			return fmt.Errorf("locating built artifact for %s: %w", name, err)
		}
		if err := repo.Add(ctx, filepath.Join(dir, artifactName)); err != nil {
			return fmt.Errorf("publishing %s: %w", name, err)
		}
		logging.Good("built and published %s", name)
	}
	return nil
}

// Autoremove deletes from repo every package not named by any Plan's
// Build or Keep list, so that §8's property 5 (repo.packages ⊆
// ⋃(build ∪ keep) after autoremove) holds.
func Autoremove(ctx context.Context, plans []*plan.Plan, repo Repository) error {
	needed := make(map[string]bool)
	for _, p := range plans {
		for _, n := range p.Build {
			needed[n] = true
		}
		for _, n := range p.Keep {
			needed[n] = true
		}
	}
	for _, pkgname := range repo.Packages() {
		if needed[pkgname] {
			continue
		}
		if err := repo.Remove(ctx, pkgname); err != nil {
			return fmt.Errorf("autoremove: removing %s: %w", pkgname, err)
		}
	}
	return nil
}
