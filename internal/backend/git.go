package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/go-autopkg/autopkg/internal/pkginfo"
	"github.com/go-autopkg/autopkg/internal/run"
	"github.com/go-autopkg/autopkg/internal/version"
)

// GitConfig is one configured ad-hoc Git recipe source: a repository,
// an in-tree path to the PKGBUILD (defaults to "/"), and a branch
// (defaults to "master").
type GitConfig struct {
	Repository string `json:"repository"`
	Path       string `json:"path,omitempty"`
	Branch     string `json:"branch,omitempty"`
}

func (c GitConfig) pathOrDefault() string {
	if c.Path == "" {
		return "/"
	}
	return c.Path
}

func (c GitConfig) branchOrDefault() string {
	if c.Branch == "" {
		return "master"
	}
	return c.Branch
}

// Git is the ad-hoc Git tree backend: a fixed, user-configured list of
// (repository, path, branch) records, each evaluated as a PKGBUILD.
type Git struct {
	configs []GitConfig
	workDir string // base directory for scratch clones, e.g. env.Workspaces()

	once    sync.Once
	onceErr error
	cache   map[string]Buildable // pkgname -> Buildable
}

// NewGit constructs a Git backend over the given configured sources.
// workDir is the base directory new scratch clone workspaces are
// created under.
func NewGit(configs []GitConfig, workDir string) *Git {
	return &Git{configs: configs, workDir: workDir, cache: make(map[string]Buildable)}
}

func (g *Git) Kind() Kind { return KindGit }

func (g *Git) ensureResolved(ctx context.Context) error {
	g.once.Do(func() {
		g.onceErr = g.resolveAll(ctx)
	})
	return g.onceErr
}

func (g *Git) resolveAll(ctx context.Context) error {
	// Clone every distinct repository URL concurrently: these clones
	// share no state and their relative completion order doesn't affect
	// the result, so there's no reason to serialize them (see SPEC_FULL
	// §5's concurrency note).
	repoWorkspace := make(map[string]string)
	var order []string
	for _, c := range g.configs {
		if _, ok := repoWorkspace[c.Repository]; !ok {
			repoWorkspace[c.Repository] = ""
			order = append(order, c.Repository)
		}
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	for _, repoURL := range order {
		repoURL := repoURL
		// A single branch per repository URL suffices for the clone
		// step; per-record branch switches happen afterward via
		// `git checkout`, matching the original implementation.
		// --no-single-branch keeps the other branches' tips available
		// for that checkout despite --depth.
		branch := "master"
		for _, c := range g.configs {
			if c.Repository == repoURL {
				branch = c.branchOrDefault()
				break
			}
		}
		eg.Go(func() error {
			ws, err := os.MkdirTemp(g.workDir, "autopkg-git-")
			if err != nil {
				return err
			}
			if _, err := run.Run(egCtx, []string{"git", "clone", "--depth", "1", "--no-single-branch", "--branch", branch, repoURL, ws}, run.Options{}); err != nil {
				return fmt.Errorf("git backend: cloning %s: %w", repoURL, err)
			}
			mu.Lock()
			repoWorkspace[repoURL] = ws
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for _, c := range g.configs {
		ws := repoWorkspace[c.Repository]
		if _, err := run.Run(ctx, []string{"git", "checkout", c.branchOrDefault()}, run.Options{Dir: ws, Quiet: true}); err != nil {
			return fmt.Errorf("git backend: checking out %s in %s: %w", c.branchOrDefault(), c.Repository, err)
		}
		recipeDir := filepath.Join(ws, c.pathOrDefault())

		pkgname, err := valueFromPKGBUILD(ctx, recipeDir, "pkgname")
		if err != nil {
			return err
		}
		pkgver, err := valueFromPKGBUILD(ctx, recipeDir, "pkgver")
		if err != nil {
			return err
		}
		pkgrel, err := valueFromPKGBUILD(ctx, recipeDir, "pkgrel")
		if err != nil {
			return err
		}
		epoch, _ := valueFromPKGBUILD(ctx, recipeDir, "epoch")
		pkgbase, _ := valueFromPKGBUILD(ctx, recipeDir, "pkgbase")
		depends, err := arrayFromPKGBUILD(ctx, recipeDir, "depends")
		if err != nil {
			return err
		}
		makedepends, err := arrayFromPKGBUILD(ctx, recipeDir, "makedepends")
		if err != nil {
			return err
		}
		checkdepends, err := arrayFromPKGBUILD(ctx, recipeDir, "checkdepends")
		if err != nil {
			return err
		}

		v := version.FromComponents(pkgver, pkgrel, epoch)
		info := pkginfo.New(pkgname, v, pkgbase, depends, makedepends, checkdepends)
		ref := SourceReference{Backend: KindGit, Source: GitSource{RepoURL: c.Repository, Path: c.pathOrDefault(), Branch: c.branchOrDefault()}}
		b := Buildable{
			Kind:    KindGit,
			Info:    info,
			Ref:     ref,
			RepoURL: c.Repository,
			Path:    c.pathOrDefault(),
			Branch:  c.branchOrDefault(),
		}
		if _, exists := g.cache[pkgname]; exists {
			logrus.Warnf("multiple git sources for pkgname %s", pkgname)
			continue
		}
		g.cache[pkgname] = b
	}
	return nil
}

// Resolve implements Backend.
func (g *Git) Resolve(ctx context.Context, names []string) ([]Buildable, error) {
	if err := g.ensureResolved(ctx); err != nil {
		return nil, err
	}
	var out []Buildable
	for _, name := range names {
		if b, ok := g.cache[name]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func valueFromPKGBUILD(ctx context.Context, dir, name string) (string, error) {
	out, err := run.Run(ctx, []string{"bash", "-c", fmt.Sprintf(`set +u && . PKGBUILD && echo "$%s"`, name)}, run.Options{Dir: dir, Quiet: true})
	if err != nil {
		return "", fmt.Errorf("git backend: reading %s from PKGBUILD in %s: %w", name, dir, err)
	}
	return strings.TrimSpace(out), nil
}

func arrayFromPKGBUILD(ctx context.Context, dir, name string) ([]string, error) {
	out, err := run.Run(ctx, []string{"bash", "-c", fmt.Sprintf(`set +u && . PKGBUILD && printf '%%s\n' "${%s[@]}"`, name)}, run.Options{Dir: dir, Quiet: true})
	if err != nil {
		return nil, fmt.Errorf("git backend: reading %s[] from PKGBUILD in %s: %w", name, dir, err)
	}
	var values []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) > 0 {
			values = append(values, line)
		}
	}
	return values, nil
}

func writeGitPKGBUILD(ctx context.Context, b Buildable, ws string) (string, error) {
	if _, err := run.Run(ctx, []string{"git", "clone", "--depth", "1", "--branch", b.Branch, b.RepoURL, ws}, run.Options{}); err != nil {
		return "", fmt.Errorf("git backend: cloning %s: %w", b.RepoURL, err)
	}
	return filepath.Join(ws, b.Path), nil
}
