package pep440

import (
	"sort"
	"strings"
)

// Bound is one endpoint of an Interval. A nil *Bound means unbounded in
// that direction (-inf for a lower bound, +inf for an upper bound).
type Bound struct {
	Value     Version
	Inclusive bool
}

// Interval is a half-open (or fully open/closed at infinity) span of
// versions: (Lower, Upper) with inclusivity tracked per endpoint.
type Interval struct {
	Lower *Bound
	Upper *Bound
}

// Range is a canonical union of disjoint Intervals, sorted by lower bound,
// the representation every specifier set converts to.
type Range struct {
	intervals []Interval
}

// Empty returns the range containing no versions.
func Empty() Range { return Range{} }

// Full returns the range containing every version.
func Full() Range { return Range{intervals: []Interval{{}}} }

// IsEmpty reports whether the range contains no versions.
func (r Range) IsEmpty() bool { return len(r.intervals) == 0 }

// Intervals returns the underlying sorted, disjoint interval list.
func (r Range) Intervals() []Interval { return r.intervals }

// String renders the range as a human-readable union of intervals, for
// diagnostics and no-solution error narration.
func (r Range) String() string {
	if r.IsEmpty() {
		return "∅"
	}

	parts := make([]string, len(r.intervals))

	for i, iv := range r.intervals {
		parts[i] = intervalString(iv)
	}

	return strings.Join(parts, " || ")
}

func intervalString(iv Interval) string {
	lower := "-inf"
	lowerParen := "("

	if iv.Lower != nil {
		lower = iv.Lower.Value.String()

		if iv.Lower.Inclusive {
			lowerParen = "["
		}
	}

	upper := "+inf"
	upperParen := ")"

	if iv.Upper != nil {
		upper = iv.Upper.Value.String()

		if iv.Upper.Inclusive {
			upperParen = "]"
		}
	}

	return lowerParen + lower + ", " + upper + upperParen
}

// Contains reports whether v falls within any interval of the range.
func (r Range) Contains(v Version) bool {
	for _, iv := range r.intervals {
		if intervalContains(iv, v) {
			return true
		}
	}

	return false
}

func intervalContains(iv Interval, v Version) bool {
	if iv.Lower != nil {
		cmp := v.Compare(iv.Lower.Value)
		if cmp < 0 || (cmp == 0 && !iv.Lower.Inclusive) {
			return false
		}
	}

	if iv.Upper != nil {
		cmp := v.Compare(iv.Upper.Value)
		if cmp > 0 || (cmp == 0 && !iv.Upper.Inclusive) {
			return false
		}
	}

	return true
}

// Equals reports whether r and other describe the same set of versions.
func (r Range) Equals(other Range) bool {
	if len(r.intervals) != len(other.intervals) {
		return false
	}

	for i := range r.intervals {
		a, b := r.intervals[i], other.intervals[i]
		if !boundsEqual(a.Lower, b.Lower) || !boundsEqual(a.Upper, b.Upper) {
			return false
		}
	}

	return true
}

func boundsEqual(a, b *Bound) bool {
	if a == nil || b == nil {
		return a == b
	}

	return a.Inclusive == b.Inclusive && a.Value.Equal(b.Value)
}

// singleInterval builds a one-interval Range, normalizing empty spans away.
func singleInterval(iv Interval) Range {
	if iv.Lower != nil && iv.Upper != nil {
		cmp := iv.Lower.Value.Compare(iv.Upper.Value)
		if cmp > 0 || (cmp == 0 && !(iv.Lower.Inclusive && iv.Upper.Inclusive)) {
			return Empty()
		}
	}

	return Range{intervals: []Interval{iv}}
}

// FromSpecifierSet converts a specifier set into the canonical Range it
// describes. A "!=" specifier (wildcard or not) is rendered as a
// two-interval range carved out of the unbounded domain; a wildcard "=="
// is a single half-open interval.
func FromSpecifierSet(set SpecifierSet) (Range, error) {
	result := Full()

	for _, s := range set {
		r, err := fromSpecifier(s)
		if err != nil {
			return Range{}, err
		}

		result = result.Intersection(r)
	}

	return result, nil
}

func fromSpecifier(s Specifier) (Range, error) {
	if s.Operator == OpArbitraryEqual {
		// "===" is raw string equality; we cannot express that as an
		// interval in general, so approximate with the exact parsed point
		// when the pattern itself parses as a version.
		v, err := Parse(s.Pattern)
		if err != nil {
			return Full(), nil // unparseable arbitrary-equal: treat as unconstrained
		}

		return singleInterval(Interval{Lower: &Bound{v, true}, Upper: &Bound{v, true}}), nil
	}

	switch s.Operator {
	case OpEqual:
		return equalRange(s.Pattern)
	case OpNotEqual:
		eq, err := equalRange(s.Pattern)
		if err != nil {
			return Range{}, err
		}

		return eq.Complement(), nil
	case OpLess:
		v, err := Parse(s.Pattern)
		if err != nil {
			return Range{}, err
		}

		return singleInterval(Interval{Upper: &Bound{v, false}}), nil
	case OpLessEqual:
		v, err := Parse(s.Pattern)
		if err != nil {
			return Range{}, err
		}

		return singleInterval(Interval{Upper: &Bound{v, true}}), nil
	case OpGreater:
		v, err := Parse(s.Pattern)
		if err != nil {
			return Range{}, err
		}

		return singleInterval(Interval{Lower: &Bound{v, false}}), nil
	case OpGreaterEqual:
		v, err := Parse(s.Pattern)
		if err != nil {
			return Range{}, err
		}

		return singleInterval(Interval{Lower: &Bound{v, true}}), nil
	case OpCompatible:
		lower, err := Parse(s.Pattern)
		if err != nil {
			return Range{}, err
		}

		upper, err := compatibleUpperBound(s.Pattern)
		if err != nil {
			return Range{}, err
		}

		return singleInterval(Interval{Lower: &Bound{lower, true}, Upper: &Bound{upper, false}}), nil
	default:
		return Full(), nil
	}
}

func equalRange(pattern string) (Range, error) {
	wildcard := hasWildcard(pattern)
	base := trimWildcard(pattern)

	bv, err := Parse(base)
	if err != nil {
		return Range{}, err
	}

	if !wildcard {
		return singleInterval(Interval{Lower: &Bound{bv, true}, Upper: &Bound{bv, true}}), nil
	}

	upper, err := nextRelease(bv)
	if err != nil {
		return Range{}, err
	}

	return singleInterval(Interval{Lower: &Bound{bv, true}, Upper: &Bound{upper, false}}), nil
}

func hasWildcard(pattern string) bool {
	return len(pattern) >= 2 && pattern[len(pattern)-2:] == ".*"
}

func trimWildcard(pattern string) string {
	if hasWildcard(pattern) {
		return pattern[:len(pattern)-2]
	}

	return pattern
}

// WildcardOnPatch returns the range matching "==X.Y.*" for the release
// prefix of v (patch-level wildcard).
func WildcardOnPatch(v Version) (Range, error) {
	upper, err := nextRelease(v)
	if err != nil {
		return Range{}, err
	}

	return singleInterval(Interval{Lower: &Bound{v, true}, Upper: &Bound{upper, false}}), nil
}

// Intersection returns the set of versions satisfying both r and other.
func (r Range) Intersection(other Range) Range {
	var out []Interval

	for _, a := range r.intervals {
		for _, b := range other.intervals {
			if iv, ok := intersectInterval(a, b); ok {
				out = append(out, iv)
			}
		}
	}

	return normalize(out)
}

func intersectInterval(a, b Interval) (Interval, bool) {
	lower := maxLower(a.Lower, b.Lower)
	upper := minUpper(a.Upper, b.Upper)

	iv := Interval{Lower: lower, Upper: upper}
	if lower != nil && upper != nil {
		cmp := lower.Value.Compare(upper.Value)
		if cmp > 0 || (cmp == 0 && !(lower.Inclusive && upper.Inclusive)) {
			return Interval{}, false
		}
	}

	return iv, true
}

func maxLower(a, b *Bound) *Bound {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}

	cmp := a.Value.Compare(b.Value)
	switch {
	case cmp > 0:
		return a
	case cmp < 0:
		return b
	default:
		return &Bound{a.Value, a.Inclusive && b.Inclusive}
	}
}

func minUpper(a, b *Bound) *Bound {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}

	cmp := a.Value.Compare(b.Value)
	switch {
	case cmp < 0:
		return a
	case cmp > 0:
		return b
	default:
		return &Bound{a.Value, a.Inclusive && b.Inclusive}
	}
}

// Union returns the set of versions satisfying r or other.
func (r Range) Union(other Range) Range {
	all := append(append([]Interval{}, r.intervals...), other.intervals...)

	return normalize(all)
}

// Complement returns the set of versions not in r.
func (r Range) Complement() Range {
	if r.IsEmpty() {
		return Full()
	}

	var out []Interval

	// Leading gap, before the first interval's lower bound.
	first := r.intervals[0]
	if first.Lower != nil {
		out = append(out, Interval{Upper: &Bound{first.Lower.Value, !first.Lower.Inclusive}})
	}

	for i := 0; i < len(r.intervals)-1; i++ {
		upper := r.intervals[i].Upper
		lower := r.intervals[i+1].Lower

		if upper == nil || lower == nil {
			continue
		}

		out = append(out, Interval{
			Lower: &Bound{upper.Value, !upper.Inclusive},
			Upper: &Bound{lower.Value, !lower.Inclusive},
		})
	}

	last := r.intervals[len(r.intervals)-1]
	if last.Upper != nil {
		out = append(out, Interval{Lower: &Bound{last.Upper.Value, !last.Upper.Inclusive}})
	}

	return normalize(out)
}

// normalize sorts intervals by lower bound and merges any that touch or
// overlap, producing the canonical disjoint-union form.
func normalize(intervals []Interval) Range {
	var cleaned []Interval

	for _, iv := range intervals {
		if iv.Lower != nil && iv.Upper != nil {
			cmp := iv.Lower.Value.Compare(iv.Upper.Value)
			if cmp > 0 || (cmp == 0 && !(iv.Lower.Inclusive && iv.Upper.Inclusive)) {
				continue
			}
		}

		cleaned = append(cleaned, iv)
	}

	sort.Slice(cleaned, func(i, j int) bool {
		return lowerLess(cleaned[i].Lower, cleaned[j].Lower)
	})

	var merged []Interval

	for _, iv := range cleaned {
		if len(merged) == 0 {
			merged = append(merged, iv)

			continue
		}

		last := &merged[len(merged)-1]
		if overlapsOrTouches(*last, iv) {
			last.Upper = minUpperForMerge(last.Upper, iv.Upper)

			continue
		}

		merged = append(merged, iv)
	}

	return Range{intervals: merged}
}

func lowerLess(a, b *Bound) bool {
	if a == nil {
		return b != nil
	}

	if b == nil {
		return false
	}

	cmp := a.Value.Compare(b.Value)
	if cmp != 0 {
		return cmp < 0
	}

	return a.Inclusive && !b.Inclusive
}

func overlapsOrTouches(a, b Interval) bool {
	if a.Upper == nil {
		return true
	}

	if b.Lower == nil {
		return true
	}

	cmp := a.Upper.Value.Compare(b.Lower.Value)
	if cmp > 0 {
		return true
	}

	if cmp == 0 && (a.Upper.Inclusive || b.Lower.Inclusive) {
		return true
	}

	return false
}

func minUpperForMerge(a, b *Bound) *Bound {
	if a == nil || b == nil {
		return nil
	}

	cmp := a.Value.Compare(b.Value)
	switch {
	case cmp > 0:
		return a
	case cmp < 0:
		return b
	default:
		return &Bound{a.Value, a.Inclusive || b.Inclusive}
	}
}
