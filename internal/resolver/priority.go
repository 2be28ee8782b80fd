package resolver

import (
	"sort"

	"github.com/bilusteknoloji/pipg/internal/marker"
)

// forkPriority answers Open Question 1 (DESIGN.md): when several root-level
// markers could each trigger a fork split, which one splits first? A
// python_version/python_full_version comparison directly restricts the set
// of candidate versions pep440 will ever offer, so it reduces the search
// space the most and is ranked first; everything else is ordered by its
// canonical string for determinism.
func forkPriority(m marker.Marker) int {
	if mentionsPythonVersion(m) {
		return 0
	}

	return 1
}

func mentionsPythonVersion(m marker.Marker) bool {
	switch m.Kind() {
	case marker.KindComparison:
		key, _, _ := m.Comparison()

		return key == marker.KeyPythonVersion || key == marker.KeyPythonFullVersion
	case marker.KindAnd, marker.KindOr:
		for _, c := range m.Children() {
			if mentionsPythonVersion(c) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

// sortForkCandidates orders a set of distinct root-level markers by
// forkPriority, breaking ties by their canonical rendering so fork
// discovery is fully deterministic across runs.
func sortForkCandidates(markers []marker.Marker) []marker.Marker {
	sorted := make([]marker.Marker, len(markers))
	copy(sorted, markers)

	sort.Slice(sorted, func(i, j int) bool {
		pi, pj := forkPriority(sorted[i]), forkPriority(sorted[j])
		if pi != pj {
			return pi < pj
		}

		return sorted[i].String() < sorted[j].String()
	})

	return sorted
}
