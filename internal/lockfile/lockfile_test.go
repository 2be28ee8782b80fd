package lockfile_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bilusteknoloji/pipg/internal/distdb"
	"github.com/bilusteknoloji/pipg/internal/lockfile"
	"github.com/bilusteknoloji/pipg/internal/marker"
	"github.com/bilusteknoloji/pipg/internal/pep440"
	"github.com/bilusteknoloji/pipg/internal/resolver"
)

// fakeDB is a minimal in-memory distdb.Database, mirroring
// internal/resolver's own test helper (unexported there, so re-declared
// here rather than exported just for tests to share).
type fakeDB struct {
	versions map[string][]string
	requires map[string][]string
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

// TestLockfileRoundTrip resolves, locks, reads the lockfile back as
// InitialForks, re-resolves, and checks the two serialized lockfiles are
// byte-for-byte identical.
func TestLockfileRoundTrip(t *testing.T) {
	db := &fakeDB{
		versions: map[string][]string{
			"app":      {"1.0"},
			"backport": {"1.0"},
		},
		requires: map[string][]string{
			"app@1.0": {`backport>=1.0; python_version < "3.8"`},
		},
	}

	roots := []resolver.Requirement{
		resolver.ParseRequirement("app"),
		resolver.ParseRequirement(`backport>=1.0; python_version < "3.8"`),
	}

	d := resolver.NewDriver(db)

	g1, err := d.Resolve(context.Background(), roots, resolver.Universal{})
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	lock1 := lockfile.Build(g1, "0.1.0", ">=3.8")

	path := filepath.Join(t.TempDir(), "pipg.lock")
	if err := lock1.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}

	encoded1, err := lock1.Encode()
	if err != nil {
		t.Fatalf("Encode (1): %v", err)
	}

	loaded, err := lockfile.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	forks, err := lockfile.InitialForks(loaded)
	if err != nil {
		t.Fatalf("InitialForks: %v", err)
	}

	g2, err := d.Resolve(context.Background(), roots, resolver.Universal{InitialForks: forks})
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}

	lock2 := lockfile.Build(g2, "0.1.0", ">=3.8")

	encoded2, err := lock2.Encode()
	if err != nil {
		t.Fatalf("Encode (2): %v", err)
	}

	if string(encoded1) != string(encoded2) {
		t.Errorf("lockfile not stable across round-trip:\n--- first ---\n%s\n--- second ---\n%s", encoded1, encoded2)
	}
}

func TestInitialForksNoForksMeansTrivialPartition(t *testing.T) {
	lock := &lockfile.Lockfile{}

	forks, err := lockfile.InitialForks(lock)
	if err != nil {
		t.Fatalf("InitialForks: %v", err)
	}

	if len(forks) != 1 || !forks[0].IsTrue() {
		t.Errorf("forks = %v, want a single True() fork", forks)
	}
}

func TestInitialForksRejectsMalformedMarker(t *testing.T) {
	lock := &lockfile.Lockfile{Forks: []string{"python_version <<< 3.8"}}

	if _, err := lockfile.InitialForks(lock); err == nil {
		t.Error("InitialForks() with malformed marker = nil error, want error")
	}
}

func TestBuildAssignsForkListsOnlyToConditionalPackages(t *testing.T) {
	db := &fakeDB{
		versions: map[string][]string{"app": {"1.0"}, "only-win": {"1.0"}},
		requires: map[string][]string{
			"app@1.0": {`only-win>=1.0; sys_platform == "win32"`},
		},
	}

	roots := []resolver.Requirement{
		resolver.ParseRequirement("app"),
		resolver.ParseRequirement(`only-win>=1.0; sys_platform == "win32"`),
	}

	d := resolver.NewDriver(db)

	g, err := d.Resolve(context.Background(), roots, resolver.Universal{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	lock := lockfile.Build(g, "0.1.0", "")

	var app, onlyWin *lockfile.Package

	for i := range lock.Packages {
		switch lock.Packages[i].Name {
		case "app":
			app = &lock.Packages[i]
		case "only-win":
			onlyWin = &lock.Packages[i]
		}
	}

	if app == nil || onlyWin == nil {
		t.Fatalf("missing packages in lock: %+v", lock.Packages)
	}

	if len(app.Forks) != 0 {
		t.Errorf("app.Forks = %v, want empty (present under every fork)", app.Forks)
	}

	if len(onlyWin.Forks) != 1 {
		t.Errorf("only-win.Forks = %v, want exactly one fork marker", onlyWin.Forks)
	}
}

// TestLockfileFlattenHonorsEnvironmentMarkers checks that Flatten
// reconstructs the same environment-specific install set a live
// resolver.Graph.Flatten would, without re-resolving.
func TestLockfileFlattenHonorsEnvironmentMarkers(t *testing.T) {
	db := &fakeDB{
		versions: map[string][]string{
			"app":      {"1.0"},
			"backport": {"1.0"},
		},
		requires: map[string][]string{
			"app@1.0": {`backport>=1.0; python_version < "3.8"`},
		},
	}

	roots := []resolver.Requirement{
		resolver.ParseRequirement("app"),
		resolver.ParseRequirement(`backport>=1.0; python_version < "3.8"`),
	}

	d := resolver.NewDriver(db)

	g, err := d.Resolve(context.Background(), roots, resolver.Universal{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	lock := lockfile.Build(g, "0.1.0", "")

	old := marker.Environment{PythonVersion: "3.7"}
	recent := marker.Environment{PythonVersion: "3.9"}

	withBackport, err := lock.Flatten(old)
	if err != nil {
		t.Fatalf("Flatten (3.7): %v", err)
	}

	withoutBackport, err := lock.Flatten(recent)
	if err != nil {
		t.Fatalf("Flatten (3.9): %v", err)
	}

	if !containsResolved(withBackport, "backport") {
		t.Errorf("expected backport under python 3.7, got %+v", withBackport)
	}

	if containsResolved(withoutBackport, "backport") {
		t.Errorf("expected backport absent under python 3.9, got %+v", withoutBackport)
	}

	if !containsResolved(withBackport, "app") || !containsResolved(withoutBackport, "app") {
		t.Errorf("expected app under every environment")
	}
}

func containsResolved(pkgs []resolver.ResolvedPackage, name string) bool {
	for _, p := range pkgs {
		if p.Name == name {
			return true
		}
	}

	return false
}
