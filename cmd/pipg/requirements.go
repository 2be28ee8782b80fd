package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bilusteknoloji/pipg/internal/resolver"
)

// requirementsFile is everything a pip-style requirements file can declare,
// not just the package lines: -r/-c includes, index selection, and the
// binary/source policy flags. collectRequirements records each recognized
// option line instead of dropping it; onlyBinary is recorded but nothing
// reads it, and unrecognized options are skipped.
type requirementsFile struct {
	requirements   []string
	constraints    []string
	indexURL       string
	extraIndexURLs []string
	findLinks      []string
	noBinary       []string // normalized names, or ":all:"/":none:"
	onlyBinary     []string
	editable       []string
}

func (f *requirementsFile) merge(other requirementsFile) {
	f.requirements = append(f.requirements, other.requirements...)
	f.constraints = append(f.constraints, other.constraints...)
	f.extraIndexURLs = append(f.extraIndexURLs, other.extraIndexURLs...)
	f.findLinks = append(f.findLinks, other.findLinks...)
	f.noBinary = append(f.noBinary, other.noBinary...)
	f.onlyBinary = append(f.onlyBinary, other.onlyBinary...)
	f.editable = append(f.editable, other.editable...)

	if other.indexURL != "" {
		f.indexURL = other.indexURL
	}
}

// collectRequirements merges CLI args and a requirements file (recursively,
// following -r/-c includes) into one requirementsFile.
func collectRequirements(args []string, reqFile string) (requirementsFile, error) {
	out := requirementsFile{requirements: append([]string{}, args...)}

	if reqFile == "" {
		return out, nil
	}

	parsed, err := parseRequirementsFile(reqFile, map[string]bool{})
	if err != nil {
		return requirementsFile{}, err
	}

	out.merge(parsed)

	return out, nil
}

// parseRequirementsFile reads a pip-compatible requirements file, following
// -r/-c includes relative to the including file's directory. seen guards
// against include cycles by absolute path.
func parseRequirementsFile(path string, seen map[string]bool) (requirementsFile, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return requirementsFile{}, fmt.Errorf("resolving requirements file path %s: %w", path, err)
	}

	if seen[absPath] {
		return requirementsFile{}, fmt.Errorf("requirements file cycle detected at %s", path)
	}

	seen[absPath] = true

	f, err := os.Open(path)
	if err != nil {
		return requirementsFile{}, fmt.Errorf("opening requirements file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	dir := filepath.Dir(path)

	var out requirementsFile

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}

		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "-") {
			out.requirements = append(out.requirements, line)
			continue
		}

		flag, value := splitOption(line)

		switch flag {
		case "-r", "--requirement":
			included, err := parseRequirementsFile(resolveRelative(dir, value), seen)
			if err != nil {
				return requirementsFile{}, err
			}

			out.merge(included)
		case "-c", "--constraint":
			included, err := parseRequirementsFile(resolveRelative(dir, value), seen)
			if err != nil {
				return requirementsFile{}, err
			}

			// A constraints file's own requirement lines are constraints,
			// not direct installs; its nested -r/-c/etc. still merge normally.
			out.constraints = append(out.constraints, included.requirements...)
			included.requirements = nil
			out.merge(included)
		case "-i", "--index-url":
			out.indexURL = value
		case "--extra-index-url":
			out.extraIndexURLs = append(out.extraIndexURLs, value)
		case "-f", "--find-links":
			out.findLinks = append(out.findLinks, value)
		case "--no-binary":
			out.noBinary = append(out.noBinary, splitNameList(value)...)
		case "--only-binary":
			out.onlyBinary = append(out.onlyBinary, splitNameList(value)...)
		case "-e", "--editable":
			out.editable = append(out.editable, value)
		default:
			// Unrecognized pip option (e.g. --pre, --no-deps): no effect here.
		}
	}

	if err := scanner.Err(); err != nil {
		return requirementsFile{}, fmt.Errorf("reading requirements file %s: %w", path, err)
	}

	return out, nil
}

// splitOption splits a requirements-file option line into its flag and
// value, accepting "--flag value", "--flag=value", and "-xvalue" forms.
func splitOption(line string) (flag, value string) {
	if idx := strings.Index(line, "="); idx >= 0 && strings.HasPrefix(line, "--") {
		return line[:idx], strings.TrimSpace(line[idx+1:])
	}

	if idx := strings.IndexAny(line, " \t"); idx >= 0 {
		return line[:idx], strings.TrimSpace(line[idx+1:])
	}

	if strings.HasPrefix(line, "--") {
		return line, ""
	}

	// Short form with no separator, e.g. "-e./pkg".
	if len(line) > 2 {
		return line[:2], line[2:]
	}

	return line, ""
}

func splitNameList(value string) []string {
	var names []string

	for _, n := range strings.Split(value, ",") {
		if n = strings.TrimSpace(n); n != "" {
			if n != ":all:" && n != ":none:" {
				n = resolver.NormalizeName(n)
			}

			names = append(names, n)
		}
	}

	return names
}

func resolveRelative(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(dir, path)
}

// applyConstraints narrows each requirement whose name matches a constraint
// by intersecting specifiers, the way pip's -c only bounds a package that's
// already being installed rather than pulling it in on its own.
func applyConstraints(requirements, constraints []string) []string {
	if len(constraints) == 0 {
		return requirements
	}

	byName := make(map[string]resolver.Requirement, len(constraints))

	for _, c := range constraints {
		parsed := resolver.ParseRequirement(c)
		byName[parsed.Name] = parsed
	}

	out := make([]string, len(requirements))

	for i, r := range requirements {
		parsed := resolver.ParseRequirement(r)

		constraint, ok := byName[parsed.Name]
		if !ok || constraint.Specifier == "" {
			out[i] = r
			continue
		}

		specifier := constraint.Specifier
		if parsed.Specifier != "" {
			specifier = parsed.Specifier + "," + constraint.Specifier
		}

		rebuilt := parsed.Name + specifier
		if len(parsed.Extras) > 0 {
			rebuilt = parsed.Name + "[" + strings.Join(parsed.Extras, ",") + "]" + specifier
		}

		if parsed.Marker != "" {
			rebuilt += "; " + parsed.Marker
		}

		out[i] = rebuilt
	}

	return out
}

// noBinaryBlocked reports the first requested package name that --no-binary
// demands be built from source: pipg install only ever fetches prebuilt
// wheels, so this can never be honored and should fail loudly rather than
// silently installing a wheel anyway.
func noBinaryBlocked(resolved []resolver.ResolvedPackage, noBinary []string) string {
	if len(noBinary) == 0 {
		return ""
	}

	blocked := make(map[string]bool, len(noBinary))
	all := false

	for _, n := range noBinary {
		if n == ":all:" {
			all = true
		} else if n != ":none:" {
			blocked[n] = true
		}
	}

	if !all && len(blocked) == 0 {
		return ""
	}

	for _, pkg := range resolved {
		name := resolver.NormalizeName(pkg.Name)
		if all || blocked[name] {
			return name
		}
	}

	return ""
}
