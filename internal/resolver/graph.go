package resolver

import (
	"github.com/bilusteknoloji/pipg/internal/marker"
	"github.com/bilusteknoloji/pipg/internal/pep440"
)

// Node is one resolved package version in the dependency graph.
type Node struct {
	Name    string
	Version pep440.Version
}

// Key returns a stable identifier for n, used wherever Node needs to be a
// map key — Version wraps a third-party type not guaranteed comparable, so
// graph bookkeeping goes through this string form rather than the struct
// itself.
func (n Node) Key() string { return n.Name + "@" + n.Version.String() }

// Edge is a dependency edge labeled with the marker under which it applies.
// Each edge's marker is the fork's marker conjoined with the dependency's
// own marker (for a Specific resolve, the Specific marker is the fork
// marker), so internal/lockfile can compute each node's reachability
// condition.
type Edge struct {
	From, To Node
	Marker   marker.Marker
}

// Graph is the Driver's output: every package version reachable from the
// roots under at least one fork, and the edges connecting them.
type Graph struct {
	Roots []Node
	Nodes []Node
	Edges []Edge

	// RootMarkers records, per root Node.Key(), the marker under which that
	// root requirement actually applies (e.g. a root requirement carrying
	// its own `; python_version < "3.8"` clause). A root absent from this
	// map, or mapped to marker.True(), is unconditional.
	RootMarkers map[string]marker.Marker

	// Forks records the marker of every fork the search actually explored,
	// seed material for a future re-resolve's Universal.InitialForks.
	Forks []marker.Marker
}

// Flatten projects g onto env: it starts from the roots whose RootMarkers
// entry is absent, True, or holds under env, and keeps exactly the nodes
// reachable from them through edges whose marker holds under env. It reuses ResolvedPackage, defined
// alongside the BFS Resolver in resolver.go, since both views describe
// what got installed and what it depends on; only how that set gets
// computed differs.
func (g *Graph) Flatten(env marker.Environment) []ResolvedPackage {
	reachable := make(map[string]bool, len(g.Nodes))
	for _, r := range g.Roots {
		if m, ok := g.RootMarkers[r.Key()]; ok && !m.IsTrue() && !m.Evaluate(env) {
			continue
		}

		reachable[r.Key()] = true
	}

	deps := make(map[string][]Node)

	// Fixed point: an edge only counts once its source is known reachable,
	// so iterate until nothing new is added.
	for changed := true; changed; {
		changed = false

		for _, e := range g.Edges {
			if !reachable[e.From.Key()] || !e.Marker.Evaluate(env) {
				continue
			}

			if !reachable[e.To.Key()] {
				reachable[e.To.Key()] = true
				changed = true
			}

			deps[e.From.Key()] = append(deps[e.From.Key()], e.To)
		}
	}

	out := make([]ResolvedPackage, 0, len(reachable))

	for _, n := range g.Nodes {
		if !reachable[n.Key()] {
			continue
		}

		depList := deps[n.Key()]
		depNames := make([]string, 0, len(depList))

		for _, d := range depList {
			depNames = append(depNames, d.Name)
		}

		out = append(out, ResolvedPackage{Name: n.Name, Version: n.Version.String(), Dependencies: depNames})
	}

	return out
}
