// Package chroot implements the scoped build-chroot lifecycle: create
// a fresh root via mkarchroot, point its pacman.conf at an inner
// pkgrepo.Repository (seeded from the outer one by the executor), run
// retried builds inside it with
// makechrootpkg, and tear everything down on every exit path —
// including copy-on-write-aware subvolume deletion on btrfs.
package chroot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	autopkg "github.com/go-autopkg/autopkg"
	"github.com/go-autopkg/autopkg/internal/env"
	"github.com/go-autopkg/autopkg/internal/logging"
	"github.com/go-autopkg/autopkg/internal/pkgrepo"
	"github.com/go-autopkg/autopkg/internal/run"
)

// BuildError wraps a build-tool failure (makepkg or makechrootpkg)
// that exhausted its retry budget.
type BuildError struct {
	Dir string
	Err error
}

func (e *BuildError) Error() string { return fmt.Sprintf("build failed in %s: %v", e.Dir, e.Err) }
func (e *BuildError) Unwrap() error { return e.Err }

// Chroot is a live, scoped build root created by WithArchRoot.
type Chroot struct {
	root      string
	working   string
	InnerRepo *pkgrepo.Repository
}

// Root is the chroot's filesystem root, passed as -r to makechrootpkg.
func (c *Chroot) Root() string { return c.root }

// WithArchRoot acquires a chroot rooted at a fresh subdirectory of ws
// (a caller-owned scratch directory), runs body, and guarantees
// cleanup of both "root" and the sibling "working" directory
// regardless of how body returns.
func WithArchRoot(ctx context.Context, ws, repoName, signKey string, body func(*Chroot) error) error {
	c := &Chroot{
		root:    filepath.Join(ws, "root"),
		working: filepath.Join(ws, "working"),
	}

	if _, err := run.Run(ctx, []string{"mkarchroot", c.root, "base-devel"}, run.Options{Sudo: true}); err != nil {
		return fmt.Errorf("chroot: mkarchroot: %w", err)
	}
	// Registered rather than deferred: the driver runs RunAtExit on every
	// return path, including a cooperatively canceled SIGINT, so teardown
	// happens even if body's own unwind is cut short.
	autopkg.RegisterAtExit(func() error {
		cleanup(ctx, c.root, c.working)
		return nil
	})

	stanza := fmt.Sprintf("\n[%s]\nSigLevel = Never\nServer = file:///repo\n", repoName)
	pacmanConf := filepath.Join(c.root, "etc/pacman.conf")
	if _, err := run.Run(ctx, []string{"tee", "-a", pacmanConf}, run.Options{Sudo: true, Stdin: stanza, Quiet: true}); err != nil {
		return fmt.Errorf("chroot: appending repo stanza to %s: %w", pacmanConf, err)
	}

	inner, err := pkgrepo.Open(ctx, repoName, filepath.Join(c.root, "repo"), signKey, true)
	if err != nil {
		return fmt.Errorf("chroot: opening inner repository: %w", err)
	}
	c.InnerRepo = inner

	return body(c)
}

// cleanup removes root and working, detecting btrfs so subvolumes
// (the chroot root itself and any nested var/lib/machines) are
// deleted with `btrfs subvolume delete` instead of a plain rm -rf,
// since a subvolume cannot be unlinked like an ordinary directory.
func cleanup(ctx context.Context, root, working string) {
	if isBtrfs(root) {
		machines := filepath.Join(root, "var/lib/machines")
		if _, err := os.Stat(machines); err == nil {
			if _, err := run.Run(ctx, []string{"btrfs", "subvolume", "delete", machines}, run.Options{Sudo: true, AllowError: true}); err != nil {
				logrus.Warnf("chroot: btrfs subvolume delete %s: %v", machines, err)
			}
		}
		if _, err := run.Run(ctx, []string{"btrfs", "subvolume", "delete", root}, run.Options{Sudo: true, AllowError: true}); err != nil {
			logrus.Warnf("chroot: btrfs subvolume delete %s: %v", root, err)
		}
	}
	if _, err := run.Run(ctx, []string{"rm", "-rf", root}, run.Options{Sudo: true, AllowError: true}); err != nil {
		logrus.Warnf("chroot: rm -rf %s: %v", root, err)
	}
	if _, err := run.Run(ctx, []string{"rm", "-rf", working}, run.Options{Sudo: true, AllowError: true}); err != nil {
		logrus.Warnf("chroot: rm -rf %s: %v", working, err)
	}
}

// isBtrfs reports whether path resides on a btrfs filesystem, via a
// direct Statfs syscall rather than shelling out to `stat -f -c %T`.
func isBtrfs(path string) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return false
	}
	return int64(st.Type) == unix.BTRFS_SUPER_MAGIC
}

// Build runs makechrootpkg against pkgbuildDir inside c, retrying up
// to env.Retry times. The first successful attempt returns
// immediately; exhausting all attempts returns a *BuildError.
func (c *Chroot) Build(ctx context.Context, pkgbuildDir string) error {
	var lastErr error
	attempts := env.Retry
	for i := 0; i < attempts; i++ {
		err := run.Inherit(ctx, []string{"makechrootpkg", "-c", "-u", "-l", "working", "-r", c.root}, run.Options{Dir: pkgbuildDir}, os.Stdout, os.Stderr)
		if err == nil {
			return nil
		}
		lastErr = err
		logging.Header(fmt.Sprintf("build attempt %d/%d failed in %s", i+1, attempts, pkgbuildDir))
	}
	return &BuildError{Dir: pkgbuildDir, Err: lastErr}
}

// Build runs makepkg once against pkgbuildDir, outside any chroot.
func Build(ctx context.Context, pkgbuildDir string) error {
	if err := run.Inherit(ctx, []string{"makepkg"}, run.Options{Dir: pkgbuildDir}, os.Stdout, os.Stderr); err != nil {
		return &BuildError{Dir: pkgbuildDir, Err: err}
	}
	return nil
}
