// Package run centralizes every external command invocation autopkg makes
// (git, mkarchroot, makechrootpkg, makepkg, repo-add, repo-remove, gpg,
// pacman, vercmp, and privileged cleanup commands), so that sudo
// elevation, working directory, stdin piping, quiet-mode logging and
// error tolerance are handled in exactly one place.
package run

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Options configures a single invocation. The zero value runs the
// command verbosely (logged at debug level), without sudo, in the
// caller's working directory, capturing stdout and stderr separately.
type Options struct {
	// Sudo runs the command through sudo(1). The caller is assumed to
	// have non-interactive sudo rights for the small set of commands
	// autopkg invokes this way.
	Sudo bool
	// Dir sets the subprocess's working directory.
	Dir string
	// Quiet suppresses the debug-level "running command" log line (used for
	// high-frequency or uninteresting invocations such as vercmp).
	Quiet bool
	// Stdin, if non-empty, is piped to the subprocess's standard input.
	Stdin string
	// AllowError suppresses the error log and returns (output, nil) even
	// when the subprocess exits non-zero. Used for cleanup commands like
	// "btrfs subvolume delete" on a path that may not be a subvolume.
	AllowError bool
}

// Run executes command with the given options and returns its stdout
// only, to match callers that parse it (e.g. pkgbuild variable
// extraction). stderr is captured separately and, when the command
// fails, included in the returned error for context.
func Run(ctx context.Context, command []string, opts Options) (string, error) {
	if len(command) == 0 {
		return "", xerrors.New("run: empty command")
	}
	argv := command
	if opts.Sudo {
		argv = append([]string{"sudo"}, command...)
	}

	if !opts.Quiet {
		logrus.WithField("argv", strings.Join(argv, " ")).Debug("running command")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if opts.AllowError {
			return stdout.String(), nil
		}
		logrus.WithFields(logrus.Fields{
			"argv":   strings.Join(argv, " "),
			"stderr": stderr.String(),
		}).Error("command failed")
		return stdout.String(), xerrors.Errorf("%v: %w (stderr: %s)", argv, err, stderr.String())
	}
	return stdout.String(), nil
}

// Inherit runs command with stdout/stderr connected directly to
// autopkg's own, for long-running or interactive tools (makepkg,
// makechrootpkg, mkarchroot) whose output the user wants to see live
// rather than captured.
func Inherit(ctx context.Context, command []string, opts Options, stdout, stderr interface {
	Write([]byte) (int, error)
}) error {
	if len(command) == 0 {
		return xerrors.New("run: empty command")
	}
	argv := command
	if opts.Sudo {
		argv = append([]string{"sudo"}, command...)
	}
	if !opts.Quiet {
		logrus.WithField("argv", strings.Join(argv, " ")).Debug("running command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		if opts.AllowError {
			return nil
		}
		return xerrors.Errorf("%v: %w", argv, err)
	}
	return nil
}
