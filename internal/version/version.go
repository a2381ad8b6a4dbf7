// Package version wraps the opaque package-version strings autopkg
// compares, delegating all ordering to the external vercmp(1) utility.
// Callers must never attempt lexical comparison themselves.
package version

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-autopkg/autopkg/internal/run"
)

// Version is an opaque, vercmp-ordered package version.
type Version struct {
	s string
}

// New wraps a raw version string (e.g. "1.0-1" or "2:5.4-2").
func New(s string) Version { return Version{s: s} }

// FromComponents builds a Version as "<epoch>:<pkgver>-<pkgrel>", omitting
// the epoch prefix when epoch is zero or empty, matching the original
// Version.from_components behavior.
func FromComponents(pkgver, pkgrel, epoch string) Version {
	var b strings.Builder
	if n, err := strconv.Atoi(epoch); err == nil && n != 0 {
		b.WriteString(epoch)
		b.WriteByte(':')
	}
	b.WriteString(pkgver)
	b.WriteByte('-')
	b.WriteString(pkgrel)
	return Version{s: b.String()}
}

func (v Version) String() string { return v.s }

// IsZero reports whether v was never assigned a version string.
func (v Version) IsZero() bool { return v.s == "" }

// Cmp compares v against other using the external vercmp(1) utility.
// A negative, zero, or positive result mirrors vercmp's own contract.
func Cmp(ctx context.Context, v, other Version) (int, error) {
	out, err := run.Run(ctx, []string{"vercmp", v.s, other.s}, run.Options{Quiet: true})
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, err
	}
	return n, nil
}

// GreaterOrEqual reports whether a >= b according to vercmp.
func GreaterOrEqual(ctx context.Context, a, b Version) (bool, error) {
	n, err := Cmp(ctx, a, b)
	if err != nil {
		return false, err
	}
	return n >= 0, nil
}

// Equal reports whether a == b according to vercmp.
func Equal(ctx context.Context, a, b Version) (bool, error) {
	n, err := Cmp(ctx, a, b)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}
