package marker

import "github.com/bilusteknoloji/pipg/internal/pep440"

// Restrict simplifies m given a known lower bound on the Python version
// every environment in scope satisfies (e.g. the project's requires-python
// floor). Any python_version/python_full_version comparison leaf that is
// implied or contradicted by pyRange is collapsed to True/False; everything
// else is left untouched.
func (m Marker) Restrict(pyRange pep440.Range) Marker {
	switch m.n.kind {
	case kindComparison:
		leaf, ok := comparisonRange(m.n)
		if !ok {
			return m
		}

		if pyRange.Intersection(leaf).Equals(pyRange) {
			return True() // every python version in scope already satisfies this
		}

		if pyRange.Intersection(leaf).IsEmpty() {
			return False() // no python version in scope can satisfy this
		}

		return m
	case kindNot:
		return Marker{m.n.children[0]}.Restrict(pyRange).Negate()
	case kindAnd:
		parts := make([]Marker, len(m.n.children))
		for i, c := range m.n.children {
			parts[i] = Marker{c}.Restrict(pyRange)
		}

		return parts[0].And(parts[1:]...)
	case kindOr:
		parts := make([]Marker, len(m.n.children))
		for i, c := range m.n.children {
			parts[i] = Marker{c}.Restrict(pyRange)
		}

		return parts[0].Or(parts[1:]...)
	default:
		return m
	}
}

// comparisonRange converts a version-keyed Comparison leaf into the
// pep440.Range it constrains. ok is false for non-version keys or a value
// that fails to parse as a version.
func comparisonRange(n *node) (r pep440.Range, ok bool) {
	if !versionKeys[n.key] {
		return pep440.Range{}, false
	}

	v, err := pep440.Parse(n.value)
	if err != nil {
		return pep440.Range{}, false
	}

	r, err = pep440.FromSpecifierSet(pep440.SpecifierSet{{Operator: toSpecOp(n.op), Pattern: v.String()}})
	if err != nil {
		return pep440.Range{}, false
	}

	return r, true
}

func toSpecOp(op Operator) pep440.Operator {
	switch op {
	case OpGreaterEq:
		return pep440.OpGreaterEqual
	case OpLessEq:
		return pep440.OpLessEqual
	case OpGreater:
		return pep440.OpGreater
	case OpLess:
		return pep440.OpLess
	case OpNotEqual:
		return pep440.OpNotEqual
	default:
		return pep440.OpEqual
	}
}
