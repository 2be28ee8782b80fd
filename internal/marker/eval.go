package marker

import (
	"strings"

	"github.com/bilusteknoloji/pipg/internal/pep440"
)

// Environment is a concrete mapping of PEP 508 keys to values, covering the
// full vocabulary plus the currently-activated extra (if any).
type Environment struct {
	PythonVersion     string
	PythonFullVersion string
	OSName            string
	SysPlatform       string
	PlatformMachine   string
	PlatformSystem    string
	ImplementationName string
	Extra             string // the extra under evaluation, if any
}

func (e Environment) lookup(key Key) string {
	switch key {
	case KeyPythonVersion:
		return e.PythonVersion
	case KeyPythonFullVersion:
		if e.PythonFullVersion != "" {
			return e.PythonFullVersion
		}

		return e.PythonVersion
	case KeyOSName:
		return e.OSName
	case KeySysPlatform:
		return e.SysPlatform
	case KeyPlatformMachine:
		return e.PlatformMachine
	case KeyPlatformSystem:
		return e.PlatformSystem
	case KeyImplementationName:
		return e.ImplementationName
	case KeyExtra:
		return e.Extra
	default:
		return ""
	}
}

// Evaluate reports whether m holds under env. Conflict-item leaves
// (ExtraActivation/GroupActivation) evaluate to false outside of the
// resolver's internal forking pass, which substitutes them away before a
// final environment-level evaluation is ever meaningful; treating them as
// false here is a safe fallback for ad-hoc evaluation.
func (m Marker) Evaluate(env Environment) bool {
	switch m.n.kind {
	case kindTrue:
		return true
	case kindFalse:
		return false
	case kindComparison:
		return evalComparison(m.n.key, m.n.op, m.n.value, env)
	case kindExtraActivation:
		return false
	case kindGroupActivation:
		return false
	case kindNot:
		return !(Marker{m.n.children[0]}).Evaluate(env)
	case kindAnd:
		for _, c := range m.n.children {
			if !(Marker{c}).Evaluate(env) {
				return false
			}
		}

		return true
	case kindOr:
		for _, c := range m.n.children {
			if (Marker{c}).Evaluate(env) {
				return true
			}
		}

		return false
	default:
		return false
	}
}

func evalComparison(key Key, op Operator, value string, env Environment) bool {
	left := env.lookup(key)

	if versionKeys[key] {
		return compareVersions(left, op, value)
	}

	return compareStrings(left, op, value)
}

func compareVersions(left string, op Operator, right string) bool {
	lv, errL := pep440.Parse(left)
	rv, errR := pep440.Parse(right)

	if errL != nil || errR != nil {
		return compareStrings(left, op, right)
	}

	cmp := lv.Compare(rv)

	switch op {
	case OpGreaterEq:
		return cmp >= 0
	case OpLessEq:
		return cmp <= 0
	case OpGreater:
		return cmp > 0
	case OpLess:
		return cmp < 0
	case OpEqual:
		return cmp == 0
	case OpNotEqual:
		return cmp != 0
	default:
		return false
	}
}

func compareStrings(left string, op Operator, right string) bool {
	switch op {
	case OpEqual:
		return left == right
	case OpNotEqual:
		return left != right
	case OpIn:
		return strings.Contains(right, left)
	case OpNotIn:
		return !strings.Contains(right, left)
	case OpGreaterEq:
		return left >= right
	case OpLessEq:
		return left <= right
	case OpGreater:
		return left > right
	case OpLess:
		return left < right
	default:
		return left == right
	}
}
