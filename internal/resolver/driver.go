package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bilusteknoloji/pipg/internal/distdb"
	"github.com/bilusteknoloji/pipg/internal/marker"
	"github.com/bilusteknoloji/pipg/internal/pep440"
	"github.com/bilusteknoloji/pipg/internal/pubgrub"
)

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithDriverLogger sets the structured logger.
func WithDriverLogger(l *slog.Logger) DriverOption {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// Driver is the forking, marker-aware resolver entry point: it drives one
// internal/pubgrub.Solver per marker fork and stitches the results into a
// single Graph.
type Driver struct {
	db     distdb.Database
	logger *slog.Logger
}

// NewDriver creates a Driver backed by db. Named distinctly from Service's
// New (same package, different constructor) since they build unrelated
// resolver entry points from unrelated inputs.
func NewDriver(db distdb.Database, opts ...DriverOption) *Driver {
	d := &Driver{db: db, logger: slog.Default()}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Resolve solves roots under env, forking the search for a Universal
// environment whenever root-level requirements disagree under disjoint
// markers.
func (d *Driver) Resolve(ctx context.Context, roots []Requirement, env Environment) (*Graph, error) {
	switch e := env.(type) {
	case Specific:
		return d.resolveFork(ctx, roots, e.Marker)
	case Universal:
		forks := e.InitialForks
		if len(forks) == 0 {
			var err error

			forks, err = d.deriveForks(roots)
			if err != nil {
				return nil, err
			}
		}

		return d.resolveForks(ctx, roots, forks)
	default:
		return nil, fmt.Errorf("resolver: unknown environment type %T", env)
	}
}

// deriveForks partitions the universe of environments using every distinct
// non-trivial marker attached to a root requirement.
func (d *Driver) deriveForks(roots []Requirement) ([]marker.Marker, error) {
	seen := make(map[string]bool)

	var distinct []marker.Marker

	for _, r := range roots {
		m, err := r.ParsedMarker()
		if err != nil {
			return nil, err
		}

		if m.IsTrue() {
			continue
		}

		key := m.String()
		if seen[key] {
			continue
		}

		seen[key] = true

		distinct = append(distinct, m)
	}

	if len(distinct) == 0 {
		return []marker.Marker{marker.True()}, nil
	}

	return partitionForks(sortForkCandidates(distinct)), nil
}

// partitionForks refines {True()} into the coarsest set of mutually
// exclusive, collectively exhaustive markers that distinguish every marker
// in ms, dropping any partition cell that turns out unsatisfiable.
func partitionForks(ms []marker.Marker) []marker.Marker {
	forks := []marker.Marker{marker.True()}

	for _, m := range ms {
		var next []marker.Marker

		for _, f := range forks {
			if pos := f.And(m); !pos.IsFalse() {
				next = append(next, pos)
			}

			if neg := f.And(m.Negate()); !neg.IsFalse() {
				next = append(next, neg)
			}
		}

		if len(next) > 0 {
			forks = next
		}
	}

	return forks
}

func (d *Driver) resolveForks(ctx context.Context, roots []Requirement, forks []marker.Marker) (*Graph, error) {
	graph := &Graph{RootMarkers: make(map[string]marker.Marker)}

	rootSeen := make(map[string]bool)
	nodeSeen := make(map[string]bool)
	edgeSeen := make(map[string]bool)

	for _, f := range forks {
		g, err := d.resolveFork(ctx, roots, f)
		if err != nil {
			return nil, fmt.Errorf("resolving fork %q: %w", f.String(), err)
		}

		graph.Forks = append(graph.Forks, f)

		for _, n := range g.Roots {
			if m, have := graph.RootMarkers[n.Key()]; have {
				graph.RootMarkers[n.Key()] = m.Or(g.RootMarkers[n.Key()])
			} else {
				graph.RootMarkers[n.Key()] = g.RootMarkers[n.Key()]
			}

			if !rootSeen[n.Key()] {
				rootSeen[n.Key()] = true

				graph.Roots = append(graph.Roots, n)
			}
		}

		for _, n := range g.Nodes {
			if !nodeSeen[n.Key()] {
				nodeSeen[n.Key()] = true

				graph.Nodes = append(graph.Nodes, n)
			}
		}

		for _, e := range g.Edges {
			key := e.From.Key() + "->" + e.To.Key() + "|" + e.Marker.String()
			if !edgeSeen[key] {
				edgeSeen[key] = true

				graph.Edges = append(graph.Edges, e)
			}
		}
	}

	return graph, nil
}

// resolveFork runs one full pubgrub solve under forkMarker and turns the
// resulting version assignment into a marker-annotated subgraph.
func (d *Driver) resolveFork(ctx context.Context, roots []Requirement, forkMarker marker.Marker) (*Graph, error) {
	rootDeps := make(map[string]pep440.Range)
	rootReqMarkers := make(map[string]marker.Marker)
	preReleaseRoots := make(map[string]bool)

	var rootNames []string

	for _, r := range roots {
		reqMarker, err := r.ParsedMarker()
		if err != nil {
			return nil, err
		}

		if forkMarker.And(reqMarker).IsFalse() {
			continue // this root requirement doesn't apply under this fork
		}

		rng, err := r.ParsedRange()
		if err != nil {
			return nil, err
		}

		pre, err := r.HasPreReleaseClause()
		if err != nil {
			return nil, err
		}

		if pre {
			preReleaseRoots[r.Name] = true
		}

		if existing, have := rootDeps[r.Name]; have {
			rootDeps[r.Name] = existing.Intersection(rng)
			rootReqMarkers[r.Name] = rootReqMarkers[r.Name].Or(reqMarker)
		} else {
			rootDeps[r.Name] = rng
			rootReqMarkers[r.Name] = reqMarker
			rootNames = append(rootNames, r.Name)
		}

		for _, e := range r.Extras {
			vname := extraPackageName(r.Name, e)
			if _, have := rootDeps[vname]; !have {
				rootDeps[vname] = pep440.Full()
			}
		}
	}

	provider := newForkProvider(d.db, forkMarker)
	for name := range preReleaseRoots {
		provider.allowPreRelease(name)
	}

	solver := pubgrub.New(provider)

	versions, err := solver.Solve(ctx, rootDeps)
	if err != nil {
		return nil, err
	}

	graph := &Graph{RootMarkers: make(map[string]marker.Marker)}

	// nodeFor maps every solver package name (including virtual
	// "base[extra]" ones) to the Node actually installed: a virtual
	// package always maps to its base's Node, since it's the same install
	// unit with extra dependencies activated, not a separate artifact.
	nodeFor := make(map[string]Node, len(versions))

	for name, v := range versions {
		base, _, isExtra := splitExtraPackage(name)
		if isExtra {
			continue // filled in below once the base's own Node is known
		}

		nodeFor[name] = Node{Name: base, Version: v}
	}

	for name, v := range versions {
		base, _, isExtra := splitExtraPackage(name)
		if !isExtra {
			continue
		}

		if n, ok := nodeFor[base]; ok {
			nodeFor[name] = n
		} else {
			nodeFor[name] = Node{Name: base, Version: v}
		}
	}

	seenNode := make(map[string]bool)
	for _, n := range nodeFor {
		if !seenNode[n.Key()] {
			seenNode[n.Key()] = true

			graph.Nodes = append(graph.Nodes, n)
		}
	}

	sort.Slice(graph.Nodes, func(i, j int) bool { return graph.Nodes[i].Key() < graph.Nodes[j].Key() })

	for _, name := range rootNames {
		if n, ok := nodeFor[name]; ok {
			graph.Roots = append(graph.Roots, n)
			graph.RootMarkers[n.Key()] = rootReqMarkers[name]
		}
	}

	for name, v := range versions {
		from := nodeFor[name]

		for _, rec := range provider.rawDependencies(name, v) {
			to, ok := nodeFor[rec.Name]
			if !ok {
				continue // pruned by the solver (e.g. an inactive extra's own deps)
			}

			if to.Key() == from.Key() {
				continue // the virtual package's own pin-back edge to its base
			}

			graph.Edges = append(graph.Edges, Edge{
				From:   from,
				To:     to,
				Marker: forkMarker.And(rec.Marker),
			})
		}
	}

	sort.Slice(graph.Roots, func(i, j int) bool { return graph.Roots[i].Key() < graph.Roots[j].Key() })
	sort.Slice(graph.Edges, func(i, j int) bool {
		if graph.Edges[i].From.Key() != graph.Edges[j].From.Key() {
			return graph.Edges[i].From.Key() < graph.Edges[j].From.Key()
		}

		return graph.Edges[i].To.Key() < graph.Edges[j].To.Key()
	})

	return graph, nil
}
