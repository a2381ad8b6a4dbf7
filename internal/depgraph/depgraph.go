// Package depgraph builds the typed dependency graph: a BFS resolver
// over backend.Backend that turns a set of root package names into an
// arena of DependencyVertex, reachable only through DependencyEdges
// that resolve exactly once.
package depgraph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-autopkg/autopkg/internal/backend"
)

// DependencyType classifies a DependencyEdge by which PKGBUILD array it
// came from (or "explicit" for a root target).
type DependencyType int

const (
	Explicit DependencyType = iota
	Run
	Make
	Check
)

func (t DependencyType) String() string {
	switch t {
	case Explicit:
		return "explicit"
	case Run:
		return "run"
	case Make:
		return "make"
	case Check:
		return "check"
	default:
		return "unknown"
	}
}

// IsBuildTime reports whether this edge's type participates in
// build-time cycle detection, i.e. every type except Run.
func (t DependencyType) IsBuildTime() bool { return t != Run }

// noVertex marks a DependencyEdge whose name resolved to no backend
// and is assumed satisfied externally (the distribution's own repos).
const noVertex = -1

// DependencyEdge is a named reference from a vertex (or a root) to the
// vertex that provides Pkgname, if any. Once Resolved is set, VertexIdx
// must never change again.
type DependencyEdge struct {
	Pkgname  string
	Type     DependencyType
	Resolved bool
	VertexIdx int // noVertex when resolved with no provider
}

// resolve assigns the edge's target exactly once. Resolving an
// already-resolved edge is a programmer error: the graph's resolution
// discipline guarantees each edge transitions unresolved -> resolved a
// single time.
func (e *DependencyEdge) resolve(idx int) {
	if e.Resolved {
		panic(fmt.Sprintf("depgraph: edge %s resolved twice", e.Pkgname))
	}
	e.VertexIdx = idx
	e.Resolved = true
}

// HasVertex reports true when the target exists and can be looked up in
// Graph.Vertices; when it resolved to noVertex the dependency is
// assumed to be satisfied externally.
func (e *DependencyEdge) HasVertex() bool { return e.Resolved && e.VertexIdx != noVertex }

// DependencyVertex is one resolved Buildable plus the edges derived
// from its three dependency lists (precedence make > check > run when
// a name appears in more than one list).
type DependencyVertex struct {
	Buildable backend.Buildable
	Edges     []*DependencyEdge
}

// Graph is the vertex arena, addressed by integer index to avoid
// shared-ownership reference cycles between vertices.
type Graph struct {
	Vertices []*DependencyVertex
	// table maps a lowercased pkgname to either a vertex index (>= 0)
	// or noVertex, once that name's resolution outcome is known.
	table map[string]int
}

func newGraph() *Graph {
	return &Graph{table: make(map[string]int)}
}

func lower(name string) string { return strings.ToLower(name) }

// Build runs the frontier BFS described by the dependency-graph
// resolution algorithm: root names seed the first frontier as
// Explicit edges; each round queries backends in priority order for
// the still-unresolved names, creates vertices for what comes back,
// marks the rest as externally satisfied, and folds each new vertex's
// edges into the next frontier.
func Build(ctx context.Context, rootNames []string, backends []backend.Backend) ([]*DependencyEdge, *Graph, error) {
	g := newGraph()

	seenRoot := make(map[string]bool)
	var roots []*DependencyEdge
	for _, name := range rootNames {
		key := lower(name)
		if seenRoot[key] {
			continue
		}
		seenRoot[key] = true
		roots = append(roots, &DependencyEdge{Pkgname: name, Type: Explicit})
	}

	frontier := roots
	for len(frontier) > 0 {
		// Deduplicate frontier names case-insensitively, skipping any
		// name already resolved in a previous round.
		unresolvedNames := make(map[string]string) // lower -> original casing
		var order []string
		for _, e := range frontier {
			key := lower(e.Pkgname)
			if _, known := g.table[key]; known {
				continue
			}
			if _, ok := unresolvedNames[key]; !ok {
				unresolvedNames[key] = e.Pkgname
				order = append(order, key)
			}
		}

		var created []int // vertices created this round
		if len(order) > 0 {
			names := make([]string, len(order))
			for i, key := range order {
				names[i] = unresolvedNames[key]
			}

			resolvedSet := make(map[string]bool)
			remaining := append([]string(nil), names...)
			for _, b := range backends {
				if len(remaining) == 0 {
					break
				}
				found, err := b.Resolve(ctx, remaining)
				if err != nil {
					return nil, nil, fmt.Errorf("depgraph: backend %s: %w", b.Kind(), err)
				}
				for _, buildable := range found {
					key := lower(buildable.Info.Pkgname)
					if resolvedSet[key] {
						continue // a higher-priority backend already claimed this name
					}
					if _, alreadyInTable := g.table[key]; alreadyInTable {
						continue
					}
					resolvedSet[key] = true

					idx := len(g.Vertices)
					v := &DependencyVertex{Buildable: buildable}
					v.Edges = edgesFromBuildable(buildable)
					g.Vertices = append(g.Vertices, v)
					g.table[key] = idx
					created = append(created, idx)
				}
				var filtered []string
				for _, n := range remaining {
					if !resolvedSet[lower(n)] {
						filtered = append(filtered, n)
					}
				}
				remaining = filtered
			}

			for _, n := range remaining {
				g.table[lower(n)] = noVertex
			}
		}

		// Resolve every frontier edge now that the table has an entry
		// for every name seen this round (or already known).
		for _, e := range frontier {
			key := lower(e.Pkgname)
			if !e.Resolved {
				idx, ok := g.table[key]
				if !ok {
					return nil, nil, fmt.Errorf("depgraph: name %q left unresolved after backend round", e.Pkgname)
				}
				e.resolve(idx)
			}
		}
		// Only vertices created this round contribute edges to the next
		// frontier; an older vertex's edges were queued when it was created.
		var next []*DependencyEdge
		for _, idx := range created {
			next = append(next, g.Vertices[idx].Edges...)
		}
		frontier = next
	}

	return roots, g, nil
}

// edgesFromBuildable derives this vertex's outgoing edges from the
// union of depends/makedepends/checkdepends, applying make > check >
// run precedence when a name is present in more than one list.
func edgesFromBuildable(b backend.Buildable) []*DependencyEdge {
	typeOf := make(map[string]DependencyType)
	order := make([]string, 0)
	record := func(names []string, t DependencyType) {
		for _, n := range names {
			key := lower(n)
			existing, known := typeOf[key]
			if !known {
				typeOf[key] = t
				order = append(order, n)
				continue
			}
			if precedence(t) > precedence(existing) {
				typeOf[key] = t
			}
		}
	}
	// Record run first so make/check can override it per precedence,
	// matching "make > check > run": whichever list a name is seen in
	// first, the strongest type among its lists is the one kept.
	record(b.Info.Depends, Run)
	record(b.Info.Checkdepends, Check)
	record(b.Info.Makedepends, Make)

	edges := make([]*DependencyEdge, 0, len(order))
	for _, n := range order {
		edges = append(edges, &DependencyEdge{Pkgname: n, Type: typeOf[lower(n)]})
	}
	return edges
}

func precedence(t DependencyType) int {
	switch t {
	case Make:
		return 3
	case Check:
		return 2
	case Run:
		return 1
	default:
		return 0
	}
}

// SortedVertexNames is a debugging/testing helper returning every
// resolved vertex's pkgname in a stable order.
func (g *Graph) SortedVertexNames() []string {
	names := make([]string, len(g.Vertices))
	for i, v := range g.Vertices {
		names[i] = v.Buildable.Info.Pkgname
	}
	sort.Strings(names)
	return names
}
