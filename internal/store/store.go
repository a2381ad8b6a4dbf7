// Package store provides the single-instance run lock and the
// scoped, JSON-backed configuration documents (targets.json,
// git.json) that persist user-facing state between invocations.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"golang.org/x/sys/unix"

	"github.com/go-autopkg/autopkg/internal/backend"
	"github.com/go-autopkg/autopkg/internal/env"
)

// RunLock is a held advisory exclusive lock over <home>/run.lock,
// guaranteeing that only one autopkg run is mutating state at a time.
type RunLock struct {
	f *os.File
}

// AcquireRunLock blocks until it holds the exclusive run lock.
func AcquireRunLock() (*RunLock, error) {
	if err := os.MkdirAll(env.Home, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(env.RunLock(), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return &RunLock{f: f}, nil
}

// Release drops the lock and closes the underlying file descriptor.
func (l *RunLock) Release() error {
	defer l.f.Close()
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}

// rmw opens name under env.Config() with an exclusive advisory lock
// held for the duration of the call, decodes it into doc (an empty
// document on a missing file or a parse error), invokes fn, and
// atomically rewrites the file via renameio iff fn actually changed
// the document. This is the Go rendering of "scoped read-modify-write
// that rewrites only when the body assigned a new value": there is no
// analogue of Python's None sentinel here, so a before/after encoding
// comparison stands in for "was the document reassigned".
func rmw[T any](name string, fn func(doc *T)) error {
	dir := env.Config()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return err
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	var doc T
	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		if jsonErr := json.Unmarshal(data, &doc); jsonErr != nil {
			var zero T
			doc = zero // parse error: present an empty document
		}
	}

	before, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	fn(&doc)
	after, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if string(before) == string(after) {
		return nil
	}
	return renameio.WriteFile(path, after, 0o644)
}

// Targets scopes a read-modify-write over config/targets.json, the
// user-maintained list of desired package names.
func Targets(fn func(targets *[]string)) error {
	return rmw("targets.json", fn)
}

// GitSources scopes a read-modify-write over config/git.json, the
// ordered list of ad-hoc Git recipe sources consumed by the Git
// backend.
func GitSources(fn func(sources *[]backend.GitConfig)) error {
	return rmw("git.json", fn)
}
