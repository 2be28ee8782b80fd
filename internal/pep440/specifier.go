package pep440

import (
	"fmt"
	"strings"
)

// Operator is one of PEP 440's eight comparison operators.
type Operator string

const (
	OpEqual            Operator = "=="
	OpNotEqual         Operator = "!="
	OpLess             Operator = "<"
	OpLessEqual        Operator = "<="
	OpGreater          Operator = ">"
	OpGreaterEqual     Operator = ">="
	OpCompatible       Operator = "~="
	OpArbitraryEqual   Operator = "==="
)

// Specifier is a single operator/version-pattern pair, e.g. ">=3.0" or
// "==3.0.*".
type Specifier struct {
	Operator Operator
	Pattern  string // raw version text, possibly with a trailing ".*"
}

// SpecifierSet is a conjunction ("and") of Specifiers, the way a
// requirements-file constraint like ">=3.0,<4.0" is interpreted.
type SpecifierSet []Specifier

// ParseSpecifierSet parses a comma-separated list of specifiers.
func ParseSpecifierSet(s string) (SpecifierSet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var set SpecifierSet

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		spec, err := ParseSpecifier(part)
		if err != nil {
			return nil, err
		}

		set = append(set, spec)
	}

	return set, nil
}

var operatorsByLength = []Operator{OpArbitraryEqual, OpCompatible, OpGreaterEqual, OpLessEqual, OpNotEqual, OpEqual, OpGreater, OpLess}

// ParseSpecifier parses a single specifier like ">=3.0" or "==3.0.*".
func ParseSpecifier(s string) (Specifier, error) {
	s = strings.TrimSpace(s)

	for _, op := range operatorsByLength {
		if strings.HasPrefix(s, string(op)) {
			pattern := strings.TrimSpace(strings.TrimPrefix(s, string(op)))
			if pattern == "" {
				return Specifier{}, fmt.Errorf("parsing specifier %q: missing version", s)
			}

			return Specifier{Operator: op, Pattern: pattern}, nil
		}
	}

	return Specifier{}, fmt.Errorf("parsing specifier %q: unknown operator", s)
}

// String renders the specifier back to its canonical textual form.
func (s Specifier) String() string {
	return string(s.Operator) + s.Pattern
}

// Evaluate reports whether v satisfies this specifier.
func (s Specifier) Evaluate(v Version) (bool, error) {
	if s.Operator == OpArbitraryEqual {
		return v.String() == s.Pattern, nil
	}

	wildcard := strings.HasSuffix(s.Pattern, ".*")
	base := strings.TrimSuffix(s.Pattern, ".*")

	pv, err := Parse(base)
	if err != nil {
		return false, err
	}

	switch s.Operator {
	case OpEqual:
		if wildcard {
			return versionMatchesWildcardPrefix(v, base), nil
		}

		return v.Equal(pv), nil
	case OpNotEqual:
		if wildcard {
			return !versionMatchesWildcardPrefix(v, base), nil
		}

		return !v.Equal(pv), nil
	case OpLess:
		return v.Compare(pv) < 0, nil
	case OpLessEqual:
		return v.Compare(pv) <= 0, nil
	case OpGreater:
		return v.Compare(pv) > 0, nil
	case OpGreaterEqual:
		return v.Compare(pv) >= 0, nil
	case OpCompatible:
		upper, err := compatibleUpperBound(base)
		if err != nil {
			return false, err
		}

		return v.Compare(pv) >= 0 && v.Compare(upper) < 0, nil
	default:
		return false, fmt.Errorf("unsupported operator %q", s.Operator)
	}
}

// Evaluate reports whether v satisfies every specifier in the set.
func (set SpecifierSet) Evaluate(v Version) (bool, error) {
	for _, s := range set {
		ok, err := s.Evaluate(v)
		if err != nil {
			return false, err
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

// HasPreReleaseClause reports whether any specifier in the set explicitly
// pins a pre-release version, which per PEP 440 opts the whole set into
// including pre-releases.
func (set SpecifierSet) HasPreReleaseClause() bool {
	for _, s := range set {
		base := strings.TrimSuffix(s.Pattern, ".*")

		v, err := Parse(base)
		if err == nil && v.IsPreRelease() {
			return true
		}
	}

	return false
}

// String renders the set back to its canonical comma-joined form.
func (set SpecifierSet) String() string {
	parts := make([]string, len(set))
	for i, s := range set {
		parts[i] = s.String()
	}

	return strings.Join(parts, ",")
}

// versionMatchesWildcardPrefix implements "==X.Y.*" semantics: v matches if
// its release segments share the prefix of base's release segments.
func versionMatchesWildcardPrefix(v Version, base string) bool {
	bv, err := Parse(base)
	if err != nil {
		return false
	}

	upper, err := nextRelease(bv)
	if err != nil {
		return false
	}

	return v.Compare(bv) >= 0 && v.Compare(upper) < 0
}

// compatibleUpperBound computes the exclusive upper bound for "~=X.Y.Z":
// the next release after truncating the last release segment, i.e.
// "~=2.2.1" behaves like ">=2.2.1,==2.2.*".
func compatibleUpperBound(base string) (Version, error) {
	segs := releaseSegments(base)
	if len(segs) < 2 {
		return Version{}, fmt.Errorf("~= requires at least two release segments, got %q", base)
	}

	truncated := strings.Join(segs[:len(segs)-1], ".")

	bv, err := Parse(truncated)
	if err != nil {
		return Version{}, err
	}

	return nextRelease(bv)
}

func releaseSegments(base string) []string {
	// Drop any pre/post/dev/local/epoch suffix; we only need the release
	// segments for wildcard/compatible-release math.
	core := base

	for _, cut := range []string{"+", "-", "a", "b", "c", "rc", "post", "dev"} {
		if idx := strings.Index(strings.ToLower(core), cut); idx > 0 {
			core = core[:idx]
		}
	}

	core = strings.TrimSuffix(core, ".")

	return strings.Split(core, ".")
}

// nextRelease returns the smallest version strictly greater than every
// version sharing v's release-segment prefix, i.e. bumping the last
// release segment by one and dropping pre/post/dev/local qualifiers.
func nextRelease(v Version) (Version, error) {
	raw := strings.TrimPrefix(v.String(), "")

	segs := releaseSegments(raw)
	if len(segs) == 0 {
		return Version{}, fmt.Errorf("cannot compute next release for %q", raw)
	}

	last := segs[len(segs)-1]

	n := 0
	for _, c := range last {
		if c < '0' || c > '9' {
			return Version{}, fmt.Errorf("cannot bump non-numeric release segment %q", last)
		}

		n = n*10 + int(c-'0')
	}

	segs[len(segs)-1] = fmt.Sprintf("%d", n+1)

	return Parse(strings.Join(segs, "."))
}
