// Package backend maps package names to Buildables: backend-produced
// descriptors capable of materializing a build recipe at a workspace
// path. Three backends are implemented (AUR, GNOME Shell extensions,
// ad-hoc Git trees); the dependency graph resolver queries them in a
// fixed priority order (Git, GShellExt, AUR) and stops at the first
// backend that answers a given name.
package backend

import (
	"context"
	"fmt"

	"github.com/go-autopkg/autopkg/internal/pkginfo"
)

// Kind identifies which of the three backends produced a Buildable.
type Kind int

const (
	KindAUR Kind = iota
	KindGShellExt
	KindGit
)

func (k Kind) String() string {
	switch k {
	case KindAUR:
		return "aur"
	case KindGShellExt:
		return "gshellext"
	case KindGit:
		return "git"
	default:
		return "unknown"
	}
}

// GitSource identifies a Git-backend recipe by repository, in-tree path
// and branch — the triple that, taken together, two Buildables must
// share to be considered the "same recipe" (and thus build together).
type GitSource struct {
	RepoURL string
	Path    string
	Branch  string
}

// SourceReference identifies a build recipe. All Buildables sharing a
// SourceReference build together in one recipe invocation (§ split
// packages). Source must be a comparable value: a plain string for AUR
// (pkgbase) and GShellExt (uuid), a GitSource for the Git backend.
type SourceReference struct {
	Backend Kind
	Source  any
}

func (r SourceReference) String() string {
	return fmt.Sprintf("%s/%v", r.Backend, r.Source)
}

// Buildable is a flat sum type over the three backend-produced
// descriptors. Exactly one Kind's fields are meaningful for any given
// value; this avoids a deep interface/inheritance hierarchy for what is,
// in practice, three shapes of "here's a PKGBUILD".
type Buildable struct {
	Kind Kind
	Info pkginfo.PackageInfo
	Ref  SourceReference

	// GShellExt-only fields.
	UUID           string
	ShellVersion   int
	VersionTag     int
	Description    string
	Link           string

	// Git-only fields.
	RepoURL string
	Path    string
	Branch  string
}

// ChrootRequired reports whether this Buildable's recipe is untrusted
// (AUR, Git) and must therefore be built inside a chroot, as opposed to
// a generated recipe (GShellExt) which is not.
func (b Buildable) ChrootRequired() bool {
	return b.Kind != KindGShellExt
}

func (b Buildable) String() string {
	return fmt.Sprintf("%s→%s", b.Ref, b.Info)
}

// WritePKGBUILDTo materializes this Buildable's build recipe under ws,
// returning the leaf directory containing PKGBUILD.
func (b Buildable) WritePKGBUILDTo(ctx context.Context, ws string) (string, error) {
	switch b.Kind {
	case KindAUR:
		return writeAURPKGBUILD(ctx, b, ws)
	case KindGShellExt:
		return writeGShellExtPKGBUILD(b, ws)
	case KindGit:
		return writeGitPKGBUILD(ctx, b, ws)
	default:
		return "", fmt.Errorf("backend: unknown Buildable kind %v", b.Kind)
	}
}

// Backend maps a set of package names to Buildables. Implementations
// memoize per natural key (pkgname, UUID, or config index) across
// calls, so later calls with overlapping names are cheap.
type Backend interface {
	Kind() Kind
	Resolve(ctx context.Context, names []string) ([]Buildable, error)
}

// Priority-ordered name resolution across backends, case-insensitive,
// lives in internal/depgraph.Build, which also has to fold each
// Buildable's dependency edges into the next BFS frontier; keeping a
// second copy here (as ResolveAll used to be) risked the two drifting
// apart on exactly the case-sensitivity rule spec.md requires.
