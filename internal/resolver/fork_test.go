package resolver

import (
	"context"
	"testing"

	"github.com/bilusteknoloji/pipg/internal/distdb"
	"github.com/bilusteknoloji/pipg/internal/marker"
	"github.com/bilusteknoloji/pipg/internal/pep440"
)

// fakeDB is a minimal in-memory distdb.Database for driver tests: every
// package is a fixed, fully-known set of versions and Requires-Dist
// entries, no network or cache involved.
type fakeDB struct {
	versions map[string][]string
	requires map[string][]string // key "name@version" -> Requires-Dist lines
}

var _ distdb.Database = (*fakeDB)(nil)

func (f *fakeDB) Versions(ctx context.Context, name string) ([]distdb.Candidate, error) {
	var out []distdb.Candidate

	for _, v := range f.versions[name] {
		pv, err := pep440.Parse(v)
		if err != nil {
			return nil, err
		}

		out = append(out, distdb.Candidate{Version: pv})
	}

	return out, nil
}

func (f *fakeDB) Metadata(ctx context.Context, name string, c distdb.Candidate) (distdb.Metadata, error) {
	return distdb.Metadata{
		Name:         name,
		Version:      c.Version.String(),
		RequiresDist: f.requires[name+"@"+c.Version.String()],
	}, nil
}

func (f *fakeDB) Wheel(ctx context.Context, name string, c distdb.Candidate) (string, error) {
	return "", nil
}

// TestDriverForksOnDisjointRootMarkers exercises the canonical fork
// trigger: the root requires "backport" under one Python version and
// nothing under another, so the resolve splits into two forks and
// backport is installed only in the older-Python one.
func TestDriverForksOnDisjointRootMarkers(t *testing.T) {
	db := &fakeDB{
		versions: map[string][]string{
			"app":      {"1.0"},
			"backport": {"1.0"},
		},
		requires: map[string][]string{
			"app@1.0": {`backport>=1.0; python_version < "3.8"`},
		},
	}

	roots := []Requirement{
		ParseRequirement(`app`),
		ParseRequirement(`backport>=1.0; python_version < "3.8"`),
	}

	d := NewDriver(db)

	graph, err := d.Resolve(context.Background(), roots, Universal{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(graph.Forks) != 2 {
		t.Fatalf("expected 2 forks (before/after the python_version split), got %d: %v", len(graph.Forks), graph.Forks)
	}

	old38 := marker.Environment{PythonVersion: "3.7"}
	new38 := marker.Environment{PythonVersion: "3.9"}

	withBackport := graph.Flatten(old38)
	withoutBackport := graph.Flatten(new38)

	if !containsPackage(withBackport, "backport") {
		t.Errorf("expected backport to be installed under python 3.7, got %+v", withBackport)
	}

	if containsPackage(withoutBackport, "backport") {
		t.Errorf("expected backport to be absent under python 3.9, got %+v", withoutBackport)
	}
}

func containsPackage(pkgs []ResolvedPackage, name string) bool {
	for _, p := range pkgs {
		if p.Name == name {
			return true
		}
	}

	return false
}

// TestDriverIsDeterministicAcrossRuns resolves the same input twice and
// checks the fork set and node set come back identical, since fork
// ordering depends only on sortForkCandidates, not map iteration order.
func TestDriverIsDeterministicAcrossRuns(t *testing.T) {
	db := &fakeDB{
		versions: map[string][]string{
			"app": {"1.0"},
			"a":   {"1.0"},
			"b":   {"1.0"},
		},
		requires: map[string][]string{
			"app@1.0": {
				`a>=1.0; sys_platform == "win32"`,
				`b>=1.0; sys_platform == "linux"`,
			},
		},
	}

	roots := []Requirement{
		ParseRequirement("app"),
		ParseRequirement(`a>=1.0; sys_platform == "win32"`),
		ParseRequirement(`b>=1.0; sys_platform == "linux"`),
	}

	d := NewDriver(db)

	g1, err := d.Resolve(context.Background(), roots, Universal{})
	if err != nil {
		t.Fatalf("Resolve (1): %v", err)
	}

	g2, err := d.Resolve(context.Background(), roots, Universal{})
	if err != nil {
		t.Fatalf("Resolve (2): %v", err)
	}

	if len(g1.Forks) != len(g2.Forks) {
		t.Fatalf("fork count differs across runs: %d vs %d", len(g1.Forks), len(g2.Forks))
	}

	for i := range g1.Forks {
		if !g1.Forks[i].Equals(g2.Forks[i]) {
			t.Errorf("fork %d differs across runs: %q vs %q", i, g1.Forks[i].String(), g2.Forks[i].String())
		}
	}
}

// TestDriverExtraActivatesConditionalDependency exercises the
// extras-as-virtual-packages modeling: "requests[socks]" must pull in
// pysocks, which requests only declares under `extra == "socks"`, while a
// plain "requests" root must not.
func TestDriverExtraActivatesConditionalDependency(t *testing.T) {
	db := &fakeDB{
		versions: map[string][]string{
			"requests": {"1.0"},
			"pysocks":  {"1.0"},
		},
		requires: map[string][]string{
			"requests@1.0": {`pysocks>=1.0; extra == "socks"`},
		},
	}

	withExtra := NewDriver(db)

	graph, err := withExtra.Resolve(context.Background(), []Requirement{ParseRequirement("requests[socks]")}, Universal{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	flat := graph.Flatten(marker.Environment{})

	if !containsPackage(flat, "requests") {
		t.Errorf("expected requests in resolved set, got %+v", flat)
	}

	if !containsPackage(flat, "pysocks") {
		t.Errorf("expected pysocks pulled in by requests[socks], got %+v", flat)
	}

	withoutExtra := NewDriver(db)

	graph2, err := withoutExtra.Resolve(context.Background(), []Requirement{ParseRequirement("requests")}, Universal{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	flat2 := graph2.Flatten(marker.Environment{})

	if containsPackage(flat2, "pysocks") {
		t.Errorf("expected pysocks absent without the socks extra, got %+v", flat2)
	}
}

func TestDriverSpecificEnvironmentNeverForks(t *testing.T) {
	db := &fakeDB{
		versions: map[string][]string{"app": {"1.0"}},
	}

	roots := []Requirement{ParseRequirement("app")}

	d := NewDriver(db)

	env := Specific{Marker: marker.Comparison(marker.KeyPythonVersion, marker.OpEqual, "3.11")}

	graph, err := d.Resolve(context.Background(), roots, env)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(graph.Roots) != 1 || graph.Roots[0].Name != "app" {
		t.Fatalf("expected a single resolved root 'app', got %+v", graph.Roots)
	}
}
