package marker_test

import (
	"testing"

	"github.com/bilusteknoloji/pipg/internal/marker"
)

func env(pyVer, platform string) marker.Environment {
	return marker.Environment{PythonVersion: pyVer, SysPlatform: platform, OSName: "posix"}
}

func TestParseAndEvaluate(t *testing.T) {
	cases := []struct {
		expr string
		env  marker.Environment
		want bool
	}{
		{`python_version < "3.10"`, env("3.9", "linux"), true},
		{`python_version < "3.10"`, env("3.12", "linux"), false},
		{`sys_platform == "darwin"`, env("3.12", "darwin"), true},
		{`sys_platform == "darwin" and python_version >= "3.8"`, env("3.12", "darwin"), true},
		{`sys_platform == "win32" or sys_platform == "darwin"`, env("3.12", "darwin"), true},
		{`sys_platform == "win32" or sys_platform == "linux"`, env("3.12", "darwin"), false},
	}

	for _, c := range cases {
		m, err := marker.Parse(c.expr)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.expr, err)
		}

		got := m.Evaluate(c.env)
		if got != c.want {
			t.Errorf("Parse(%q).Evaluate(%+v) = %v, want %v", c.expr, c.env, got, c.want)
		}
	}
}

func TestNegateIsInvolution(t *testing.T) {
	exprs := []string{
		`python_version < "3.10"`,
		`sys_platform == "darwin" and python_version >= "3.8"`,
		`sys_platform == "win32" or sys_platform == "darwin"`,
	}

	environments := []marker.Environment{env("3.9", "linux"), env("3.12", "darwin"), env("3.12", "win32")}

	for _, expr := range exprs {
		m, err := marker.Parse(expr)
		if err != nil {
			t.Fatalf("Parse(%q): %v", expr, err)
		}

		for _, e := range environments {
			want := m.Evaluate(e)
			got := m.Negate().Negate().Evaluate(e)

			if got != want {
				t.Errorf("%q: double negation mismatch at %+v: got %v want %v", expr, e, got, want)
			}
		}
	}
}

func TestAndMatchesConjunctionOfEvaluates(t *testing.T) {
	a, _ := marker.Parse(`sys_platform == "darwin"`)
	b, _ := marker.Parse(`python_version >= "3.8"`)

	conj := a.And(b)

	for _, e := range []marker.Environment{env("3.12", "darwin"), env("3.6", "darwin"), env("3.12", "linux")} {
		want := a.Evaluate(e) && b.Evaluate(e)
		if conj.Evaluate(e) != want {
			t.Errorf("And mismatch at %+v", e)
		}
	}
}

func TestIsDisjoint(t *testing.T) {
	a, _ := marker.Parse(`sys_platform == "darwin"`)
	b, _ := marker.Parse(`sys_platform == "linux"`)
	c, _ := marker.Parse(`python_version >= "3.8"`)

	if !a.IsDisjoint(b) {
		t.Error("darwin and linux should be disjoint")
	}

	if a.IsDisjoint(c) {
		t.Error("darwin and python>=3.8 should not be disjoint")
	}
}

func TestTrueFalseIdentities(t *testing.T) {
	a, _ := marker.Parse(`sys_platform == "darwin"`)

	if !a.And(marker.True()).Equals(a) {
		t.Error("And with True should be identity")
	}

	if !a.Or(marker.True()).Equals(marker.True()) {
		t.Error("Or with True should annihilate to True")
	}

	if !a.And(marker.False()).Equals(marker.False()) {
		t.Error("And with False should annihilate to False")
	}

	if !a.Or(marker.False()).Equals(a) {
		t.Error("Or with False should be identity")
	}
}

func TestHashConsingCanonicalizesEqualMarkers(t *testing.T) {
	m1, _ := marker.Parse(`sys_platform == "darwin" and python_version >= "3.8"`)
	m2, _ := marker.Parse(`python_version >= "3.8" and sys_platform == "darwin"`)

	if !m1.Equals(m2) {
		t.Error("reordered conjunctions should canonicalize to the same marker")
	}
}
