// Package env captures autopkg's environment: the state directory layout
// and the handful of environment variables that configure a run.
package env

import (
	"os"
	"path/filepath"
	"strconv"
)

// Home is the root of all autopkg state: workspaces, config, the
// published repository, the run lock and the log file.
var Home = findHome()

func findHome() string {
	if v := os.Getenv("AUTOPKG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/root"
	}
	return filepath.Join(home, ".autopkg")
}

// RepositoryName is the name of the published pacman repository (both
// the database file's base name and the [section] name pacman.conf
// entries reference it by).
var RepositoryName = repositoryNameOrDefault()

func repositoryNameOrDefault() string {
	if v := os.Getenv("AUTOPKG_REPO_NAME"); v != "" {
		return v
	}
	return "autopkg"
}

// SignKey is the GPG key id used to produce detached signatures for
// published artifacts. Empty means signing is disabled.
var SignKey = os.Getenv("AUTOPKG_KEY")

// Retry is the number of attempts makechrootpkg gets before a chroot
// build is considered failed.
var Retry = retryOrDefault()

func retryOrDefault() int {
	v := os.Getenv("AUTOPKG_RETRY")
	if v == "" {
		return 3
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 3
	}
	return n
}

// Workspaces is the directory under which ephemeral per-build and
// per-chroot workspaces are created.
func Workspaces() string { return filepath.Join(Home, "workspaces") }

// Config is the directory holding the JSON config documents
// (targets.json, git.json).
func Config() string { return filepath.Join(Home, "config") }

// Repository is the directory the published pacman repository lives in.
func Repository() string { return filepath.Join(Home, "repository") }

// RunLock is the path to the advisory lock file guaranteeing a single
// concurrent autopkg run.
func RunLock() string { return filepath.Join(Home, "run.lock") }

// LogFile is the path to the append-only log file.
func LogFile() string { return filepath.Join(Home, "log") }
