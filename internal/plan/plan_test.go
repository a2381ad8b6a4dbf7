package plan

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/go-autopkg/autopkg/internal/backend"
	"github.com/go-autopkg/autopkg/internal/depgraph"
	"github.com/go-autopkg/autopkg/internal/pkginfo"
	"github.com/go-autopkg/autopkg/internal/version"
)

// fakeRepo reports every pkgname as absent, so Plan.Add always takes
// the build branch without shelling out to vercmp. The keep branch
// (testable property 4's other half) depends on an external vercmp
// binary being on PATH and is not exercised by these tests.
type fakeRepo struct{}

func (fakeRepo) Lookup(pkgname string) (version.Version, bool) { return version.Version{}, false }

func vertex(kind backend.Kind, ref backend.SourceReference, name string, edgeTargets ...int) *depgraph.DependencyVertex {
	v := &depgraph.DependencyVertex{
		Buildable: backend.Buildable{
			Kind: kind,
			Info: pkginfo.New(name, version.New("1-1"), "", nil, nil, nil),
			Ref:  ref,
		},
	}
	for _, idx := range edgeTargets {
		e := &depgraph.DependencyEdge{Pkgname: "placeholder", Type: depgraph.Make, Resolved: true, VertexIdx: idx}
		v.Edges = append(v.Edges, e)
	}
	return v
}

func rootEdge(idx int) *depgraph.DependencyEdge {
	return &depgraph.DependencyEdge{Pkgname: "root", Resolved: true, VertexIdx: idx}
}

func graphOf(vertices ...*depgraph.DependencyVertex) *depgraph.Graph {
	return &depgraph.Graph{Vertices: vertices}
}

// TestPlanMergingBySourceReference exercises testable property 3: two
// vertices sharing a SourceReference (a split-package recipe) collapse
// into one Plan whose Build list contains both package names.
func TestPlanMergingBySourceReference(t *testing.T) {
	ref := backend.SourceReference{Backend: backend.KindAUR, Source: "foobase"}
	v0 := vertex(backend.KindAUR, ref, "foo-bin")
	v1 := vertex(backend.KindAUR, ref, "foo-doc")
	g := graphOf(v0, v1)

	roots := []*depgraph.DependencyEdge{rootEdge(0), rootEdge(1)}
	plans, err := Build(context.Background(), roots, g, fakeRepo{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(plans) != 1 {
		t.Fatalf("len(plans) = %d, want 1", len(plans))
	}
	got := append([]string(nil), plans[0].Build...)
	want := []string{"foo-bin", "foo-doc"}
	sortStrings(got)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Build list mismatch (-want +got):\n%s", diff)
	}
}

// TestPlanAddBuildsWhenRepoEmpty exercises the build half of testable
// property 4: with no existing repository version, a package is
// always placed in Build.
func TestPlanAddBuildsWhenRepoEmpty(t *testing.T) {
	ref := backend.SourceReference{Backend: backend.KindAUR, Source: "foo"}
	p := &Plan{Ref: ref}
	if err := p.Add(context.Background(), "foo", version.New("1-1"), fakeRepo{}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(p.Build) != 1 || p.Build[0] != "foo" {
		t.Errorf("Build = %v, want [foo]", p.Build)
	}
	if len(p.Keep) != 0 {
		t.Errorf("Keep = %v, want empty", p.Keep)
	}
}

// TestCyclicDependencyDetection exercises testable property 9: a
// mutual build-time dependency between two vertices is reported as a
// CyclicDependencyError whose chain names both packages.
func TestCyclicDependencyDetection(t *testing.T) {
	refA := backend.SourceReference{Backend: backend.KindAUR, Source: "a"}
	refB := backend.SourceReference{Backend: backend.KindAUR, Source: "b"}
	v0 := vertex(backend.KindAUR, refA, "a", 1)
	v1 := vertex(backend.KindAUR, refB, "b", 0)
	g := graphOf(v0, v1)

	roots := []*depgraph.DependencyEdge{rootEdge(0)}
	_, err := Build(context.Background(), roots, g, fakeRepo{})
	if err == nil {
		t.Fatal("Build: expected a cyclic dependency error, got nil")
	}
	var cyc *CyclicDependencyError
	if !errors.As(err, &cyc) {
		t.Fatalf("Build error is not a *CyclicDependencyError: %v", err)
	}
	hasA, hasB := false, false
	for _, n := range cyc.Chain {
		if n == "a" {
			hasA = true
		}
		if n == "b" {
			hasB = true
		}
	}
	if !hasA || !hasB {
		t.Errorf("cycle chain %v does not mention both a and b", cyc.Chain)
	}
}

// TestPlanChrootRequiredByRequisites checks that a Plan with no
// untrusted recipe still requires a chroot once it has requisites to
// seed.
func TestPlanChrootRequiredByRequisites(t *testing.T) {
	p := &Plan{
		Representative: backend.Buildable{Kind: backend.KindGShellExt},
		Requisites:     []string{"foo"},
	}
	if !p.Chroot() {
		t.Error("Chroot() = false, want true when Requisites is non-empty")
	}

	p2 := &Plan{Representative: backend.Buildable{Kind: backend.KindGShellExt}}
	if p2.Chroot() {
		t.Error("Chroot() = true, want false for a trusted recipe with no requisites")
	}
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
