package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bilusteknoloji/pipg/internal/distdb"
	"github.com/bilusteknoloji/pipg/internal/marker"
	"github.com/bilusteknoloji/pipg/internal/pep440"
	"github.com/bilusteknoloji/pipg/internal/pubgrub"
)

var _ pubgrub.Provider = (*forkProvider)(nil)

// depRecord is one Requires-Dist entry as seen while answering
// Dependencies, kept around so the Driver can rebuild marker-annotated
// graph edges after the solve completes without re-fetching metadata.
type depRecord struct {
	Name   string
	Marker marker.Marker
	Range  pep440.Range
}

// forkProvider answers pubgrub.Provider queries for one marker fork: a
// dependency whose own marker is disjoint from forkMarker is invisible in
// this fork (pruned before the solver ever sees it); everything else is
// offered, with its true marker recorded for later edge annotation. This
// is the scoped-down half of full per-dependency forking: rather than
// splitting the search itself the moment an inconclusive marker is found
// deep in the tree, the provider conservatively includes it and lets
// Graph.Flatten/Reachability apply the exact marker at consumption time.
// Root-level conflicting markers (the common case extras and
// platform-specific constraints produce) are still forked properly by
// Driver.Resolve before any solve starts.
type forkProvider struct {
	db         distdb.Database
	forkMarker marker.Marker

	mu         sync.Mutex
	candidates map[string][]distdb.Candidate
	recorded   map[string][]depRecord
	preRelease map[string]bool
}

func newForkProvider(db distdb.Database, forkMarker marker.Marker) *forkProvider {
	return &forkProvider{
		db:         db,
		forkMarker: forkMarker,
		candidates: make(map[string][]distdb.Candidate),
		recorded:   make(map[string][]depRecord),
		preRelease: make(map[string]bool),
	}
}

// allowPreRelease records that pkg's candidates may include pre-releases,
// because some requirement on it explicitly pins or bounds on one.
func (p *forkProvider) allowPreRelease(pkg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.preRelease[pkg] = true
}

func (p *forkProvider) allowsPreRelease(pkg string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.preRelease[pkg]
}

// Versions implements pubgrub.Provider. An extra's virtual package
// ("requests[socks]") always has exactly the same versions as its base
// package, since it can only ever resolve in lock-step with it.
func (p *forkProvider) Versions(ctx context.Context, pkg string) ([]pep440.Version, error) {
	base, _, isExtra := splitExtraPackage(pkg)
	if isExtra {
		pkg = base
	}

	cands, err := p.lookupCandidates(ctx, pkg)
	if err != nil {
		return nil, err
	}

	versions := make([]pep440.Version, len(cands))
	for i, c := range cands {
		versions[i] = c.Version
	}

	sort.Slice(versions, func(i, j int) bool { return versions[j].Less(versions[i]) })

	if !p.allowsPreRelease(pkg) {
		stable := versions[:0:0]

		for _, v := range versions {
			if !v.IsPreRelease() {
				stable = append(stable, v)
			}
		}

		// Only exclude pre-releases when a non-pre-release candidate
		// actually exists; otherwise every candidate would vanish.
		if len(stable) > 0 {
			versions = stable
		}
	}

	return versions, nil
}

// Dependencies implements pubgrub.Provider. Extras are modeled as virtual
// packages: "requests[socks]" depends on "requests" pinned to the exact
// same version, plus whatever requests' own Requires-Dist entries are
// gated on `extra == "socks"` being true. A plain base package's own
// extra-gated entries are always excluded, since nothing activated them.
func (p *forkProvider) Dependencies(ctx context.Context, pkg string, v pep440.Version) (map[string]pep440.Range, error) {
	base, extra, isExtra := splitExtraPackage(pkg)

	cand, ok := p.findCandidate(base, v)
	if !ok {
		return nil, fmt.Errorf("no known candidate for %s %s", base, v.String())
	}

	md, err := p.db.Metadata(ctx, base, cand)
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for %s %s: %w", base, v.String(), err)
	}

	out := make(map[string]pep440.Range)

	var recs []depRecord

	if isExtra {
		pin, err := exactVersionRange(v)
		if err != nil {
			return nil, fmt.Errorf("pinning %s to %s: %w", base, v.String(), err)
		}

		out[base] = pin
		recs = append(recs, depRecord{Name: base, Marker: marker.True(), Range: pin})
	}

	for _, raw := range md.RequiresDist {
		req := ParseRequirement(raw)

		reqMarker, err := req.ParsedMarker()
		if err != nil {
			return nil, fmt.Errorf("parsing dependency marker for %s: %w", raw, err)
		}

		activeExtra := ""
		if isExtra {
			activeExtra = extra
		}

		restricted := restrictExtra(reqMarker, activeExtra)
		if p.forkMarker.And(restricted).IsFalse() {
			continue // never applies under this fork/extra activation
		}

		r, err := req.ParsedRange()
		if err != nil {
			return nil, fmt.Errorf("parsing dependency specifier for %s: %w", raw, err)
		}

		pre, err := req.HasPreReleaseClause()
		if err != nil {
			return nil, fmt.Errorf("parsing dependency specifier for %s: %w", raw, err)
		}

		if pre {
			p.allowPreRelease(req.Name)
		}

		depName := req.Name
		if len(req.Extras) == 0 {
			recs = append(recs, depRecord{Name: depName, Marker: restricted, Range: r})
			mergeRange(out, depName, r)

			continue
		}

		// The dependency itself requests extras: depend on its virtual
		// packages too, each implicitly pinning the base via its own
		// Dependencies() call.
		for _, e := range req.Extras {
			vname := extraPackageName(depName, e)
			recs = append(recs, depRecord{Name: vname, Marker: restricted, Range: pep440.Full()})
			mergeRange(out, vname, pep440.Full())
		}

		recs = append(recs, depRecord{Name: depName, Marker: restricted, Range: r})
		mergeRange(out, depName, r)
	}

	p.mu.Lock()
	p.recorded[recordKey(pkg, v)] = recs
	p.mu.Unlock()

	return out, nil
}

func mergeRange(out map[string]pep440.Range, name string, r pep440.Range) {
	if existing, have := out[name]; have {
		out[name] = existing.Intersection(r)
	} else {
		out[name] = r
	}
}

// extraPackageName is the virtual solver-package name standing in for
// "base with extra activated".
func extraPackageName(base, extra string) string {
	return base + "[" + extra + "]"
}

// splitExtraPackage reverses extraPackageName, reporting ok=false for a
// plain base package name.
func splitExtraPackage(pkg string) (base, extra string, ok bool) {
	i := strings.IndexByte(pkg, '[')
	if i < 0 || !strings.HasSuffix(pkg, "]") {
		return pkg, "", false
	}

	return pkg[:i], pkg[i+1 : len(pkg)-1], true
}

// restrictExtra substitutes every `extra == X` / `extra != X` leaf in m:
// true/false according to whether X matches active (the extra currently
// being activated, or "" when no extra is active), then re-simplifies.
// Everything else in m is left untouched.
func restrictExtra(m marker.Marker, active string) marker.Marker {
	switch m.Kind() {
	case marker.KindComparison:
		key, op, value := m.Comparison()
		if key != marker.KeyExtra {
			return m
		}

		matches := value == active

		switch op {
		case marker.OpEqual:
			if matches {
				return marker.True()
			}

			return marker.False()
		case marker.OpNotEqual:
			if matches {
				return marker.False()
			}

			return marker.True()
		default:
			return m
		}
	case marker.KindNot:
		return restrictExtra(m.Children()[0], active).Negate()
	case marker.KindAnd:
		children := m.Children()
		parts := make([]marker.Marker, len(children))

		for i, c := range children {
			parts[i] = restrictExtra(c, active)
		}

		return parts[0].And(parts[1:]...)
	case marker.KindOr:
		children := m.Children()
		parts := make([]marker.Marker, len(children))

		for i, c := range children {
			parts[i] = restrictExtra(c, active)
		}

		return parts[0].Or(parts[1:]...)
	default:
		return m
	}
}

// exactVersionRange returns the single-version range {v}.
func exactVersionRange(v pep440.Version) (pep440.Range, error) {
	set, err := pep440.ParseSpecifierSet("==" + v.String())
	if err != nil {
		return pep440.Range{}, err
	}

	return pep440.FromSpecifierSet(set)
}

// rawDependencies returns the per-dependency markers recorded the last time
// Dependencies(pkg, v) ran, for building the final marker-annotated graph.
func (p *forkProvider) rawDependencies(pkg string, v pep440.Version) []depRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.recorded[recordKey(pkg, v)]
}

func (p *forkProvider) lookupCandidates(ctx context.Context, pkg string) ([]distdb.Candidate, error) {
	p.mu.Lock()
	if cands, ok := p.candidates[pkg]; ok {
		p.mu.Unlock()
		return cands, nil
	}
	p.mu.Unlock()

	cands, err := p.db.Versions(ctx, pkg)
	if err != nil {
		return nil, fmt.Errorf("listing versions of %s: %w", pkg, err)
	}

	p.mu.Lock()
	p.candidates[pkg] = cands
	p.mu.Unlock()

	return cands, nil
}

func (p *forkProvider) findCandidate(pkg string, v pep440.Version) (distdb.Candidate, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.candidates[pkg] {
		if c.Version.Equal(v) {
			return c, true
		}
	}

	return distdb.Candidate{}, false
}

func recordKey(pkg string, v pep440.Version) string {
	return pkg + "@" + v.String()
}
