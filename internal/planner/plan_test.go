package planner_test

import (
	"testing"

	"github.com/bilusteknoloji/pipg/internal/installer"
	"github.com/bilusteknoloji/pipg/internal/planner"
	"github.com/bilusteknoloji/pipg/internal/resolver"
)

type fakeLocalIndex map[string]string // "name@version" -> path

func (f fakeLocalIndex) Lookup(name, version string) (string, bool) {
	path, ok := f[name+"@"+version]
	return path, ok
}

func TestPlanClassifiesRemoteLocalNoOpReinstallExtraneous(t *testing.T) {
	resolved := []resolver.ResolvedPackage{
		{Name: "already-satisfied", Version: "1.0.0"},
		{Name: "superseded", Version: "2.0.0"},
		{Name: "cached", Version: "3.0.0"},
		{Name: "uncached", Version: "4.0.0"},
	}

	installed := installer.InstalledSet{
		"already-satisfied": {Name: "already-satisfied", Version: "1.0.0"},
		"superseded":        {Name: "superseded", Version: "1.0.0"},
		"orphaned":          {Name: "orphaned", Version: "0.1.0"},
	}

	local := fakeLocalIndex{"cached@3.0.0": "/cache/wheels/cached-3.0.0-py3-none-any.whl"}

	p := planner.New(planner.WithLocalIndex(local))

	plan, err := p.Plan(resolved, installed, planner.Policy{})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}

	if len(plan.NoOp) != 1 || plan.NoOp[0].Name != "already-satisfied" {
		t.Errorf("NoOp = %+v, want [already-satisfied]", plan.NoOp)
	}

	if len(plan.Reinstall) != 1 || plan.Reinstall[0].Name != "superseded" {
		t.Errorf("Reinstall = %+v, want [superseded]", plan.Reinstall)
	}

	if len(plan.Local) != 1 || plan.Local[0].Package.Name != "cached" {
		t.Errorf("Local = %+v, want [cached]", plan.Local)
	}

	if len(plan.Remote) != 1 || plan.Remote[0].Name != "uncached" {
		t.Errorf("Remote = %+v, want [uncached]", plan.Remote)
	}

	if len(plan.Extraneous) != 1 || plan.Extraneous[0].Name != "orphaned" {
		t.Errorf("Extraneous = %+v, want [orphaned]", plan.Extraneous)
	}
}

func TestPlanReinstallAllIgnoresNoOp(t *testing.T) {
	resolved := []resolver.ResolvedPackage{{Name: "pkg", Version: "1.0.0"}}
	installed := installer.InstalledSet{"pkg": {Name: "pkg", Version: "1.0.0"}}

	p := planner.New()

	plan, err := p.Plan(resolved, installed, planner.Policy{Reinstall: planner.ReinstallAll})
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}

	if len(plan.Reinstall) != 1 {
		t.Errorf("expected forced reinstall, got Reinstall=%+v NoOp=%+v", plan.Reinstall, plan.NoOp)
	}

	if len(plan.NoOp) != 0 {
		t.Errorf("expected no NoOp entries under ReinstallAll, got %+v", plan.NoOp)
	}
}

func TestPlanNoBinarySkipsLocalCache(t *testing.T) {
	resolved := []resolver.ResolvedPackage{{Name: "pkg", Version: "1.0.0"}}
	local := fakeLocalIndex{"pkg@1.0.0": "/cache/wheels/pkg-1.0.0-py3-none-any.whl"}

	p := planner.New(planner.WithLocalIndex(local))

	policy := planner.Policy{NoBinary: planner.NoBinaryAll}

	plan, err := p.Plan(resolved, installer.InstalledSet{}, policy)
	if err != nil {
		t.Fatalf("Plan() error: %v", err)
	}

	if len(plan.Local) != 0 {
		t.Errorf("expected no Local entries under NoBinaryAll, got %+v", plan.Local)
	}

	if len(plan.Remote) != 1 {
		t.Errorf("expected pkg to fall through to Remote, got %+v", plan.Remote)
	}
}

func TestPlanDuplicatePackageErrors(t *testing.T) {
	resolved := []resolver.ResolvedPackage{
		{Name: "pkg", Version: "1.0.0"},
		{Name: "pkg", Version: "2.0.0"},
	}

	p := planner.New()

	_, err := p.Plan(resolved, installer.InstalledSet{}, planner.Policy{})
	if err == nil {
		t.Fatal("expected an error for duplicate resolved package")
	}

	var planErr *planner.PlanError
	if pe, ok := err.(*planner.PlanError); ok {
		planErr = pe
	} else {
		t.Fatalf("expected *planner.PlanError, got %T", err)
	}

	if planErr.Kind != planner.ErrDuplicatePackage {
		t.Errorf("error kind = %v, want ErrDuplicatePackage", planErr.Kind)
	}
}
