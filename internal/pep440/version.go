// Package pep440 implements the PEP 440 version and specifier algebra:
// parsing, comparison, and the range operations (intersection, union,
// complement) that the resolver needs to reason about version constraints.
package pep440

import (
	"fmt"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

// Version wraps the upstream PEP 440 version type so range algebra and
// specifier sets have a single stable type to build on.
type Version struct {
	raw string
	v   pep440.Version
}

// Parse parses a PEP 440 version string.
func Parse(s string) (Version, error) {
	v, err := pep440.Parse(s)
	if err != nil {
		return Version{}, fmt.Errorf("parsing version %q: %w", s, err)
	}

	return Version{raw: s, v: v}, nil
}

// String returns the original textual form the version was parsed from.
func (v Version) String() string { return v.raw }

// IsPreRelease reports whether v has a pre-release or dev segment.
func (v Version) IsPreRelease() bool { return v.v.IsPreRelease() }

// Compare returns -1, 0, or 1 per PEP 440 total order.
func (v Version) Compare(other Version) int { return v.v.Compare(other.v) }

// Less reports whether v sorts strictly before other.
func (v Version) Less(other Version) bool { return v.Compare(other) < 0 }

// Equal reports whether v and other compare equal under PEP 440 ordering.
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

// SortDesc sorts version strings in descending order, dropping any that
// fail to parse, and returns parsed Versions so callers don't re-parse.
func SortDesc(raw []string) []Version {
	out := make([]Version, 0, len(raw))

	for _, s := range raw {
		v, err := Parse(s)
		if err != nil {
			continue
		}

		out = append(out, v)
	}

	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Compare(out[j-1]) > 0; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}

	return out
}
