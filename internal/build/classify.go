package build

import "strings"

// FailureKind categorizes why a build hook failed, so the resolver and the
// CLI's error output can give the user an actionable next step instead of a
// raw subprocess traceback.
type FailureKind string

const (
	FailureUnknown          FailureKind = "unknown"
	FailureMissingBackend   FailureKind = "missing-backend"
	FailureMissingSystemLib FailureKind = "missing-system-library"
	FailureCompilerError    FailureKind = "compiler-error"
	FailureNetworkError     FailureKind = "network-error"
	FailurePermission       FailureKind = "permission-denied"
)

// classifiers is ordered; the first matching pattern wins. Patterns are
// substrings observed in common backend failure output (setuptools, meson,
// maturin, scikit-build) rather than an exhaustive grammar.
var classifiers = []struct {
	kind     FailureKind
	patterns []string
}{
	{FailureMissingBackend, []string{"No module named", "ModuleNotFoundError"}},
	{FailureMissingSystemLib, []string{"fatal error:", "No such file or directory", "library not found", "Could NOT find"}},
	{FailureCompilerError, []string{"error: command", "gcc:", "clang:", "cc1:", "error: ", "Compiler error"}},
	{FailureNetworkError, []string{"Connection refused", "Temporary failure in name resolution", "Network is unreachable"}},
	{FailurePermission, []string{"Permission denied", "Operation not permitted"}},
}

// classifyTailLines is how many trailing stderr lines Classify inspects.
const classifyTailLines = 10

// Classify inspects the last classifyTailLines lines of captured stderr and
// returns the first matching failure kind, or FailureUnknown if nothing
// matches.
func Classify(stderr []byte) FailureKind {
	lines := strings.Split(strings.TrimRight(string(stderr), "\n"), "\n")
	if len(lines) > classifyTailLines {
		lines = lines[len(lines)-classifyTailLines:]
	}

	s := strings.Join(lines, "\n")

	for _, c := range classifiers {
		for _, p := range c.patterns {
			if strings.Contains(s, p) {
				return c.kind
			}
		}
	}

	return FailureUnknown
}
