// Package plan lowers a depgraph.Graph into an ordered list of Plans:
// one per distinct backend.SourceReference, each carrying the subset
// of its packages to build versus keep and the requisite artifacts
// that must be pre-seeded into a chroot before building.
package plan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/go-autopkg/autopkg/internal/backend"
	"github.com/go-autopkg/autopkg/internal/depgraph"
	"github.com/go-autopkg/autopkg/internal/version"
)

// RepositoryVersions is the read side of a package repository the
// planner needs: given a pkgname, report the version currently held,
// if any. pkgrepo.Repository satisfies this.
type RepositoryVersions interface {
	Lookup(pkgname string) (version.Version, bool)
}

// Plan is one recipe invocation's worth of work: all package names
// sharing a SourceReference, partitioned into Build (must be built)
// and Keep (repository already holds an adequate version), plus the
// Requisites that must be pre-seeded into the chroot's inner
// repository before building.
type Plan struct {
	Ref            backend.SourceReference
	Representative backend.Buildable // any one Buildable sharing Ref; used to materialize the recipe
	Build          []string
	Keep           []string
	Requisites     []string
}

// Chroot reports whether this plan must run inside a chroot: either
// its recipe is untrusted, or it has requisites that must be seeded
// through the chroot's inner repository.
func (p *Plan) Chroot() bool {
	return p.Representative.ChrootRequired() || len(p.Requisites) > 0
}

// Add decides build-vs-keep for pkgname against repo and records it.
// pkgname is kept iff repo already holds it at a version >= v.
func (p *Plan) Add(ctx context.Context, pkgname string, v version.Version, repo RepositoryVersions) error {
	if repoVersion, ok := repo.Lookup(pkgname); ok {
		ge, err := version.GreaterOrEqual(ctx, repoVersion, v)
		if err != nil {
			return fmt.Errorf("plan: comparing versions for %s: %w", pkgname, err)
		}
		if ge {
			p.Keep = append(p.Keep, pkgname)
			return nil
		}
	}
	p.Build = append(p.Build, pkgname)
	return nil
}

// CyclicDependencyError is raised when the planner's visit revisits a
// vertex already in its own required-by ancestry. Chain accumulates
// from the detection point outward as the recursion unwinds, until
// the originating vertex is seen again, at which point it is sealed.
type CyclicDependencyError struct {
	Chain  []string
	origin string
	sealed bool
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("plan: cyclic dependency: %s", strings.Join(e.Chain, " -> "))
}

func newCycle(name string) *CyclicDependencyError {
	return &CyclicDependencyError{Chain: []string{name}, origin: name}
}

func (e *CyclicDependencyError) extend(name string) {
	if e.sealed {
		return
	}
	e.Chain = append([]string{name}, e.Chain...)
	if name == e.origin {
		e.sealed = true
	}
}

type planner struct {
	graph *depgraph.Graph
	repo  RepositoryVersions
	byRef map[string]*Plan
	order []*Plan
}

// Build runs the planner over roots (the DependencyEdges returned by
// depgraph.Build) against graph and repo, returning the deduplicated,
// first-occurrence-ordered Plan list.
func Build(ctx context.Context, roots []*depgraph.DependencyEdge, graph *depgraph.Graph, repo RepositoryVersions) ([]*Plan, error) {
	p := &planner{graph: graph, repo: repo, byRef: make(map[string]*Plan)}

	type rootEntry struct {
		vertex        *depgraph.DependencyVertex
		buildTimeDeps int
	}
	var entries []rootEntry
	for _, e := range roots {
		if !e.HasVertex() {
			continue
		}
		v := graph.Vertices[e.VertexIdx]
		entries = append(entries, rootEntry{vertex: v, buildTimeDeps: countBuildTime(v)})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].buildTimeDeps < entries[j].buildTimeDeps
	})

	for _, en := range entries {
		if err := p.visitOrMerge(ctx, en.vertex, nil); err != nil {
			return nil, err
		}
	}
	if err := verifyAcyclic(p.order); err != nil {
		return nil, err
	}
	return p.order, nil
}

// verifyAcyclic is a defense-in-depth check: the recursive visit
// above already rejects build-time cycles as it discovers them, but
// this re-derives the plan-level ordering constraints as an explicit
// graph and runs Tarjan's SCC algorithm over it, the same technique
// distri's batch builder uses to validate its own build-order graph
// before scheduling.
func verifyAcyclic(order []*Plan) error {
	g := simple.NewDirectedGraph()
	nodeByRef := make(map[string]int64, len(order))
	for i, pl := range order {
		id := int64(i)
		nodeByRef[pl.Ref.String()] = id
		g.AddNode(simple.Node(id))
	}
	ownerOfPkg := make(map[string]string, len(order)*2) // pkgname -> owning Ref
	for _, pl := range order {
		for _, n := range append(append([]string(nil), pl.Build...), pl.Keep...) {
			ownerOfPkg[n] = pl.Ref.String()
		}
	}
	for _, pl := range order {
		fromID := nodeByRef[pl.Ref.String()]
		for _, req := range pl.Requisites {
			ownerRef, ok := ownerOfPkg[req]
			if !ok || ownerRef == pl.Ref.String() {
				continue
			}
			toID := nodeByRef[ownerRef]
			g.SetEdge(simple.Edge{F: simple.Node(fromID), T: simple.Node(toID)})
		}
	}
	for _, scc := range topo.TarjanSCC(g) {
		if len(scc) > 1 {
			names := make([]string, 0, len(scc))
			for _, n := range scc {
				names = append(names, order[n.ID()].Ref.String())
			}
			return fmt.Errorf("plan: unexpected cycle among plans: %s", strings.Join(names, " -> "))
		}
	}
	return nil
}

func countBuildTime(v *depgraph.DependencyVertex) int {
	n := 0
	for _, e := range v.Edges {
		if e.Type.IsBuildTime() {
			n++
		}
	}
	return n
}

// visitOrMerge is the entry point used both at the roots and for each
// child edge: if a Plan already exists for v's SourceReference, v's
// own package name just joins it; otherwise v is visited in full.
func (p *planner) visitOrMerge(ctx context.Context, v *depgraph.DependencyVertex, requiredBy map[string]bool) error {
	refKey := v.Buildable.Ref.String()
	if existing, ok := p.byRef[refKey]; ok {
		return existing.Add(ctx, v.Buildable.Info.Pkgname, v.Buildable.Info.Version, p.repo)
	}
	return p.visit(ctx, v, requiredBy)
}

func (p *planner) visit(ctx context.Context, v *depgraph.DependencyVertex, requiredBy map[string]bool) error {
	key := strings.ToLower(v.Buildable.Info.Pkgname)
	if requiredBy[key] {
		return newCycle(key)
	}
	childRequiredBy := make(map[string]bool, len(requiredBy)+1)
	for k := range requiredBy {
		childRequiredBy[k] = true
	}
	childRequiredBy[key] = true

	for _, edge := range v.Edges {
		if !edge.HasVertex() {
			continue
		}
		child := p.graph.Vertices[edge.VertexIdx]
		if err := p.visitOrMerge(ctx, child, childRequiredBy); err != nil {
			var cyc *CyclicDependencyError
			if errors.As(err, &cyc) {
				cyc.extend(key)
			}
			return err
		}
	}

	refKey := v.Buildable.Ref.String()
	if _, exists := p.byRef[refKey]; !exists {
		pl := &Plan{Ref: v.Buildable.Ref, Representative: v.Buildable}
		pl.Requisites = p.computeRequisites(v)
		p.byRef[refKey] = pl
		p.order = append(p.order, pl)
	}
	return p.byRef[refKey].Add(ctx, v.Buildable.Info.Pkgname, v.Buildable.Info.Version, p.repo)
}

// computeRequisites unions, across v's direct dependency edges, the
// already-known Build/Keep/Requisites of each dependency's Plan. Since
// plans are created in post-order, each dependency's own Requisites
// already contains its transitive closure, so one level of union here
// suffices to produce the full transitive closure for v.
func (p *planner) computeRequisites(v *depgraph.DependencyVertex) []string {
	set := make(map[string]bool)
	for _, edge := range v.Edges {
		if !edge.HasVertex() {
			continue
		}
		child := p.graph.Vertices[edge.VertexIdx]
		childPlan, ok := p.byRef[child.Buildable.Ref.String()]
		if !ok {
			continue
		}
		for _, n := range childPlan.Build {
			set[n] = true
		}
		for _, n := range childPlan.Keep {
			set[n] = true
		}
		for _, n := range childPlan.Requisites {
			set[n] = true
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
