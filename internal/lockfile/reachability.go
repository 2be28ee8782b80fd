// Package lockfile serializes a resolved, forked dependency Graph to a
// TOML lockfile and reconstructs the fork partition a lockfile implies, so
// a later resolve can seed internal/resolver.Driver with
// Universal.InitialForks for stability.
package lockfile

import (
	"github.com/bilusteknoloji/pipg/internal/marker"
	"github.com/bilusteknoloji/pipg/internal/resolver"
)

// NodeID identifies a resolved package version the same way
// resolver.Node.Key does: "name@version".
type NodeID = string

// Reachability computes, for every node in g, the marker expression under
// which that node is part of the install set: forward propagation from
// the roots, each edge contributing its label conjoined with the source
// node's own reachability, alternative paths combined by disjunction.
// Converges because the marker lattice (and the fork set) is finite.
//
// Edge and root markers coming out of internal/resolver already have
// extra/group conflict-item leaves substituted away by
// forkProvider.Dependencies (see restrictExtra), so there's no separate
// substitution pass here; this purely implements the forward-propagation
// half of the algorithm.
func Reachability(g *resolver.Graph) map[NodeID]marker.Marker {
	reach := make(map[NodeID]marker.Marker, len(g.Nodes))

	forksUnion := marker.True()
	if len(g.Forks) > 0 {
		forksUnion = g.Forks[0]
		for _, f := range g.Forks[1:] {
			forksUnion = forksUnion.Or(f)
		}
	}

	for _, r := range g.Roots {
		rootMarker := marker.True()
		if m, ok := g.RootMarkers[r.Key()]; ok {
			rootMarker = m
		}

		cond := forksUnion.And(rootMarker)

		if existing, have := reach[r.Key()]; have {
			reach[r.Key()] = existing.Or(cond)
		} else {
			reach[r.Key()] = cond
		}
	}

	for changed := true; changed; {
		changed = false

		for _, e := range g.Edges {
			from, ok := reach[e.From.Key()]
			if !ok {
				continue
			}

			contrib := from.And(e.Marker)
			if contrib.IsFalse() {
				continue
			}

			existing, have := reach[e.To.Key()]
			if !have {
				reach[e.To.Key()] = contrib
				changed = true

				continue
			}

			merged := existing.Or(contrib)
			if !merged.Equals(existing) {
				reach[e.To.Key()] = merged
				changed = true
			}
		}
	}

	return reach
}
