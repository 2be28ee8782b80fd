package pubgrub

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bilusteknoloji/pipg/internal/pep440"
)

// Cause records why an incompatibility exists, for the no-solution
// derivation narration.
type Cause struct {
	// Kind is "root", "dependency", "no-versions", or "conflict".
	Kind string
	// Package/Dependency are set for dependency/no-versions causes.
	Package    string
	Dependency string
	// Left/Right are set for causes derived by resolving two prior
	// incompatibilities during conflict resolution.
	Left, Right IncompatID
}

// IncompatID is an Arena[Incompatibility] handle.
type IncompatID = ID

// Incompatibility is a set of terms that can never all hold at once: a
// reason two or more (package, term) assignments can never coexist in a
// solution.
type Incompatibility struct {
	// Terms maps package name to the term this incompatibility asserts
	// about it. An incompatibility with a single positive term for the
	// root package represents "must select some version of root"; one
	// relating a package to its dependency represents "if package is in
	// range R1, dependency must be in range R2".
	Terms map[string]Term
	Cause Cause
}

// NewIncompatibility builds an incompatibility from explicit terms.
func NewIncompatibility(terms map[string]Term, cause Cause) Incompatibility {
	return Incompatibility{Terms: terms, Cause: cause}
}

// NotRoot builds the incompatibility "root is not exactly version v",
// the seed incompatibility asserting any solution must select root.
func NotRoot(root string, notV Term) Incompatibility {
	return Incompatibility{
		Terms: map[string]Term{root: notV},
		Cause: Cause{Kind: "root", Package: root},
	}
}

// FromDependency builds the incompatibility "if package is in depender
// range, dependency must be in dependencyRange": {package: Positive(dependerRange), dependency: Negative(dependencyRange)}.
func FromDependency(pkg string, dependerRange, dependencyRange pep440.Range, dependency string) Incompatibility {
	return Incompatibility{
		Terms: map[string]Term{
			pkg:        Positive(dependerRange),
			dependency: Negative(dependencyRange),
		},
		Cause: Cause{Kind: "dependency", Package: pkg, Dependency: dependency},
	}
}

// NoVersions builds the incompatibility "package cannot be in range" when
// the provider reports no versions exist in that range at all.
func NoVersions(pkg string, r pep440.Range) Incompatibility {
	return Incompatibility{
		Terms: map[string]Term{pkg: Positive(r)},
		Cause: Cause{Kind: "no-versions", Package: pkg},
	}
}

// IncompatRelation classifies an incompatibility against the current partial
// solution: Satisfied if every term is satisfied (meaning the
// incompatibility has been violated and must be resolved), Contradicted if
// any term is contradicted (the incompatibility can never apply),
// AlmostSatisfied with the one unsatisfied package name if exactly one term
// remains undecided (a candidate for unit propagation), or Inconclusive if
// two or more terms remain undecided.
type IncompatRelation int

const (
	IncompatContradicted IncompatRelation = iota
	IncompatAlmostSatisfied
	IncompatSatisfied
	IncompatInconclusive
)

func (i Incompatibility) Packages() []string {
	names := make([]string, 0, len(i.Terms))
	for name := range i.Terms {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// priorCause combines incomp and satisfierCause by resolution on pkg,
// producing a new, more general incompatibility: the two terms for pkg are
// unioned (dropped entirely if the union covers every version, since "pkg
// in anything" contributes nothing); every other package's term is
// intersected across the two sources.
func priorCause(incomp, satisfierCause Incompatibility, pkg string, causeA, causeB IncompatID) Incompatibility {
	terms := make(map[string]Term, len(incomp.Terms)+len(satisfierCause.Terms))

	for name, t := range incomp.Terms {
		if name == pkg {
			continue
		}

		terms[name] = t
	}

	for name, t := range satisfierCause.Terms {
		if name == pkg {
			continue
		}

		if existing, ok := terms[name]; ok {
			terms[name] = existing.Intersect(t)
		} else {
			terms[name] = t
		}
	}

	pkgTerm := incomp.Terms[pkg].Union(satisfierCause.Terms[pkg])
	if !pkgTerm.AsRange().Equals(pep440.Full()) {
		terms[pkg] = pkgTerm
	}

	return Incompatibility{
		Terms: terms,
		Cause: Cause{Kind: "conflict", Left: causeA, Right: causeB},
	}
}

func (i Incompatibility) String() string {
	parts := make([]string, 0, len(i.Terms))
	for _, name := range i.Packages() {
		t := i.Terms[name]

		sign := "in"
		if !t.Positive {
			sign = "not in"
		}

		parts = append(parts, fmt.Sprintf("%s %s %s", name, sign, t.Set.String()))
	}

	return strings.Join(parts, " AND ")
}
