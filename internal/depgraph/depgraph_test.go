package depgraph

import (
	"context"
	"testing"

	"github.com/go-autopkg/autopkg/internal/backend"
	"github.com/go-autopkg/autopkg/internal/pkginfo"
	"github.com/go-autopkg/autopkg/internal/version"
)

// fakeBackend answers Resolve from a fixed table keyed by lowercased
// pkgname, recording every name it was asked about.
type fakeBackend struct {
	kind  backend.Kind
	table map[string]backend.Buildable
	asked []string
}

func (f *fakeBackend) Kind() backend.Kind { return f.kind }

func (f *fakeBackend) Resolve(ctx context.Context, names []string) ([]backend.Buildable, error) {
	f.asked = append(f.asked, names...)
	var out []backend.Buildable
	for _, n := range names {
		if b, ok := f.table[lower(n)]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func buildableFor(kind backend.Kind, name string, deps ...string) backend.Buildable {
	return backend.Buildable{
		Kind: kind,
		Info: pkginfo.New(name, version.New("1-1"), "", deps, nil, nil),
		Ref:  backend.SourceReference{Backend: kind, Source: name},
	}
}

// TestBackendPriorityOrder exercises testable property 1: when more
// than one backend can answer the same name, the first backend in
// priority order wins and later backends are never even asked.
func TestBackendPriorityOrder(t *testing.T) {
	git := &fakeBackend{kind: backend.KindGit, table: map[string]backend.Buildable{
		"foo": buildableFor(backend.KindGit, "foo"),
	}}
	gshell := &fakeBackend{kind: backend.KindGShellExt, table: map[string]backend.Buildable{
		"foo": buildableFor(backend.KindGShellExt, "foo"),
	}}
	aur := &fakeBackend{kind: backend.KindAUR, table: map[string]backend.Buildable{
		"foo": buildableFor(backend.KindAUR, "foo"),
	}}

	_, g, err := Build(context.Background(), []string{"foo"}, []backend.Backend{git, gshell, aur})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.Vertices) != 1 {
		t.Fatalf("len(Vertices) = %d, want 1", len(g.Vertices))
	}
	if got := g.Vertices[0].Buildable.Kind; got != backend.KindGit {
		t.Errorf("winning backend = %v, want git", got)
	}
	if len(gshell.asked) != 0 || len(aur.asked) != 0 {
		t.Errorf("lower-priority backends were asked: gshell=%v aur=%v", gshell.asked, aur.asked)
	}
}

// TestCaseInsensitiveResolution exercises testable property 2: root
// names and dependency names resolve against backend answers without
// regard to case.
func TestCaseInsensitiveResolution(t *testing.T) {
	aur := &fakeBackend{kind: backend.KindAUR, table: map[string]backend.Buildable{
		"foo-bar": buildableFor(backend.KindAUR, "foo-bar"),
	}}

	roots, g, err := Build(context.Background(), []string{"Foo-Bar"}, []backend.Backend{aur})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(roots) != 1 || !roots[0].Resolved {
		t.Fatalf("root edge not resolved: %+v", roots)
	}
	if !roots[0].HasVertex() {
		t.Fatalf("root edge has no vertex despite a matching backend entry")
	}
	if g.Vertices[roots[0].VertexIdx].Buildable.Info.Pkgname != "foo-bar" {
		t.Errorf("resolved vertex pkgname = %q, want foo-bar", g.Vertices[roots[0].VertexIdx].Buildable.Info.Pkgname)
	}
}

// TestDuplicateRootNamesAreDeduplicated checks that two root names
// differing only by case produce a single root edge.
func TestDuplicateRootNamesAreDeduplicated(t *testing.T) {
	aur := &fakeBackend{kind: backend.KindAUR, table: map[string]backend.Buildable{
		"foo": buildableFor(backend.KindAUR, "foo"),
	}}
	roots, _, err := Build(context.Background(), []string{"foo", "FOO", "Foo"}, []backend.Backend{aur})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(roots) != 1 {
		t.Fatalf("len(roots) = %d, want 1", len(roots))
	}
}

// TestUnresolvedDependencyAssumedExternal verifies that a dependency
// name no backend can resolve still produces a resolved edge, just
// with no vertex (assumed satisfied by the outer distribution).
func TestUnresolvedDependencyAssumedExternal(t *testing.T) {
	aur := &fakeBackend{kind: backend.KindAUR, table: map[string]backend.Buildable{
		"foo": buildableFor(backend.KindAUR, "foo", "glibc"),
	}}
	_, g, err := Build(context.Background(), []string{"foo"}, []backend.Backend{aur})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.Vertices) != 1 {
		t.Fatalf("len(Vertices) = %d, want 1 (glibc must not get a vertex)", len(g.Vertices))
	}
	edges := g.Vertices[0].Edges
	if len(edges) != 1 || !edges[0].Resolved {
		t.Fatalf("glibc edge not resolved: %+v", edges)
	}
	if edges[0].HasVertex() {
		t.Errorf("glibc edge has a vertex, want noVertex (externally satisfied)")
	}
}

// TestEdgePrecedenceMakeOverRun checks that a name present in both
// depends and makedepends is classified Make, per make > check > run.
func TestEdgePrecedenceMakeOverRun(t *testing.T) {
	b := backend.Buildable{
		Kind: backend.KindAUR,
		Info: pkginfo.New("foo", version.New("1-1"), "", []string{"bar"}, []string{"bar"}, nil),
	}
	edges := edgesFromBuildable(b)
	if len(edges) != 1 {
		t.Fatalf("len(edges) = %d, want 1", len(edges))
	}
	if edges[0].Type != Make {
		t.Errorf("edge type = %v, want Make", edges[0].Type)
	}
}
