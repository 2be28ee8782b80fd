package lockfile

import (
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"github.com/bilusteknoloji/pipg/internal/marker"
	"github.com/bilusteknoloji/pipg/internal/resolver"
)

// Dependency is one edge out of a locked package, with the marker under
// which it applies.
type Dependency struct {
	Name   string `toml:"name"`
	Marker string `toml:"marker,omitempty"`
}

// Package is one locked distribution. Source is always "registry" for now:
// the resolver's Graph carries no direct-URL/git/path identity yet (other
// source variants are tracked by internal/distribution.Identity but never
// attached to a resolver.Node), so a lockfile built from a Graph can only
// describe registry-resolved packages. Build leaves Hashes empty and no
// caller fills it in, so written lockfiles carry no hashes.
type Package struct {
	Name         string       `toml:"name"`
	Version      string       `toml:"version"`
	Source       string       `toml:"source"`
	Hashes       []string     `toml:"hashes,omitempty"`
	Dependencies []Dependency `toml:"dependencies,omitempty"`

	// Forks lists the fork markers (as PEP 508 strings) under which this
	// package is actually part of the install set. Absent/empty means the
	// package applies under every fork (or there's only one fork, the
	// trivial True() partition).
	Forks []string `toml:"forks,omitempty"`
}

// Lockfile is the TOML-shaped lock format: tool version, requires-python,
// the fork partition, the project's own root requirements, and the package
// list.
type Lockfile struct {
	ToolVersion    string       `toml:"tool-version"`
	RequiresPython string       `toml:"requires-python,omitempty"`
	Forks          []string     `toml:"forks,omitempty"`
	Roots          []Dependency `toml:"root,omitempty"`
	Packages       []Package    `toml:"package"`
}

// Build projects a resolved Graph into a Lockfile. toolVersion is pipg's
// own release version; requiresPython is the project's declared
// requires-python, not computed from the graph.
func Build(g *resolver.Graph, toolVersion, requiresPython string) *Lockfile {
	reach := Reachability(g)

	lf := &Lockfile{ToolVersion: toolVersion, RequiresPython: requiresPython}

	for _, r := range g.Roots {
		m := ""
		if rm, ok := g.RootMarkers[r.Key()]; ok && !rm.IsTrue() {
			m = rm.String()
		}

		lf.Roots = append(lf.Roots, Dependency{Name: r.Name, Marker: m})
	}

	sort.Slice(lf.Roots, func(i, j int) bool { return lf.Roots[i].Name < lf.Roots[j].Name })

	for _, f := range g.Forks {
		if f.IsTrue() {
			continue
		}

		lf.Forks = append(lf.Forks, f.String())
	}

	depsByNode := make(map[string][]Dependency, len(g.Nodes))

	for _, e := range g.Edges {
		m := ""
		if !e.Marker.IsTrue() {
			m = e.Marker.String()
		}

		depsByNode[e.From.Key()] = append(depsByNode[e.From.Key()], Dependency{Name: e.To.Name, Marker: m})
	}

	for _, n := range g.Nodes {
		deps := depsByNode[n.Key()]
		sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })

		pkg := Package{
			Name:         n.Name,
			Version:      n.Version.String(),
			Source:       "registry",
			Dependencies: deps,
		}

		if r, ok := reach[n.Key()]; ok {
			for _, f := range g.Forks {
				if f.IsTrue() {
					continue
				}

				if !r.And(f).IsFalse() {
					pkg.Forks = append(pkg.Forks, f.String())
				}
			}
		}

		lf.Packages = append(lf.Packages, pkg)
	}

	sort.Slice(lf.Packages, func(i, j int) bool {
		if lf.Packages[i].Name != lf.Packages[j].Name {
			return lf.Packages[i].Name < lf.Packages[j].Name
		}

		return lf.Packages[i].Version < lf.Packages[j].Version
	})

	return lf
}

// InitialForks reconstructs the fork partition lock declares, for seeding
// resolver.Universal.InitialForks on a subsequent resolve.
func InitialForks(lock *Lockfile) ([]marker.Marker, error) {
	if len(lock.Forks) == 0 {
		return []marker.Marker{marker.True()}, nil
	}

	out := make([]marker.Marker, 0, len(lock.Forks))

	for _, raw := range lock.Forks {
		m, err := marker.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing lockfile fork marker %q: %w", raw, err)
		}

		out = append(out, m)
	}

	return out, nil
}

// Flatten projects lock onto env the same way resolver.Graph.Flatten
// projects a live graph: starting from lock.Roots (whose markers, if any,
// must hold under env), it walks Dependencies edges to a fixed point,
// keeping only those whose own marker holds under env too. This is what
// lets sync turn a lockfile back into an install set without re-resolving.
func (lock *Lockfile) Flatten(env marker.Environment) ([]resolver.ResolvedPackage, error) {
	type edge struct {
		to string
		m  marker.Marker
	}

	edges := make(map[string][]edge, len(lock.Packages))

	for _, pkg := range lock.Packages {
		for _, d := range pkg.Dependencies {
			m, err := parseOptionalMarker(d.Marker)
			if err != nil {
				return nil, fmt.Errorf("parsing dependency marker %q for %s: %w", d.Marker, pkg.Name, err)
			}

			edges[pkg.Name] = append(edges[pkg.Name], edge{to: d.Name, m: m})
		}
	}

	reachable := make(map[string]bool, len(lock.Packages))

	for _, r := range lock.Roots {
		m, err := parseOptionalMarker(r.Marker)
		if err != nil {
			return nil, fmt.Errorf("parsing root marker %q for %s: %w", r.Marker, r.Name, err)
		}

		if m.Evaluate(env) {
			reachable[r.Name] = true
		}
	}

	for changed := true; changed; {
		changed = false

		for from, outs := range edges {
			if !reachable[from] {
				continue
			}

			for _, e := range outs {
				if reachable[e.to] || !e.m.Evaluate(env) {
					continue
				}

				reachable[e.to] = true
				changed = true
			}
		}
	}

	out := make([]resolver.ResolvedPackage, 0, len(reachable))

	for _, pkg := range lock.Packages {
		if !reachable[pkg.Name] {
			continue
		}

		var depNames []string

		for _, e := range edges[pkg.Name] {
			depNames = append(depNames, e.to)
		}

		out = append(out, resolver.ResolvedPackage{Name: pkg.Name, Version: pkg.Version, Dependencies: depNames})
	}

	return out, nil
}

func parseOptionalMarker(raw string) (marker.Marker, error) {
	if raw == "" {
		return marker.True(), nil
	}

	return marker.Parse(raw)
}

// Encode renders lock as TOML.
func (lock *Lockfile) Encode() ([]byte, error) {
	data, err := toml.Marshal(lock)
	if err != nil {
		return nil, fmt.Errorf("encoding lockfile: %w", err)
	}

	return data, nil
}

// Write encodes lock and writes it to path.
func (lock *Lockfile) Write(path string) error {
	data, err := lock.Encode()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing lockfile %s: %w", path, err)
	}

	return nil
}

// Load reads and decodes a lockfile from path.
func Load(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lockfile %s: %w", path, err)
	}

	var lock Lockfile
	if err := toml.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("parsing lockfile %s: %w", path, err)
	}

	return &lock, nil
}
