// Package config reads a project's pyproject.toml: the PEP 621 [project]
// table (name, version, dependencies, optional-dependencies,
// requires-python) plus pipg's own [tool.pipg.sources] extension for
// alternate/extra package indexes, decoded via toml-tagged structs.
package config

import (
	"fmt"
	"os"
	"strings"

	goversion "github.com/aquasecurity/go-version/pkg/version"
	"github.com/pelletier/go-toml/v2"
)

// Project is the [project] table (PEP 621).
type Project struct {
	Name                 string              `toml:"name"`
	Version              string              `toml:"version"`
	RequiresPython       string              `toml:"requires-python"`
	Dependencies         []string            `toml:"dependencies"`
	OptionalDependencies map[string][]string `toml:"optional-dependencies"`
}

// Source is one entry of [[tool.pipg.sources]]: an alternate or
// supplementary package index, mirroring pip's --index-url/--extra-index-url.
type Source struct {
	Name     string `toml:"name"`
	URL      string `toml:"url"`
	Default  bool   `toml:"default"`
	Explicit bool   `toml:"explicit"` // packages must name this source to use it
}

// pipgTool is the [tool.pipg] sub-table.
type pipgTool struct {
	Sources []Source `toml:"sources"`

	// RequiresPipgVersion constrains which pipg releases may operate on
	// this project, e.g. ">=0.3,<1.0". Empty means unconstrained.
	RequiresPipgVersion string `toml:"requires-pipg-version"`
}

type tool struct {
	Pipg pipgTool `toml:"pipg"`
}

// File is a fully decoded pyproject.toml.
type File struct {
	Project Project `toml:"project"`
	Tool    tool    `toml:"tool"`
}

// Sources returns the configured [[tool.pipg.sources]] entries, nil if
// none are declared.
func (f *File) Sources() []Source {
	return f.Tool.Pipg.Sources
}

// Load reads and decodes the pyproject.toml at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return &f, nil
}

// Requirements flattens [project] dependencies and optional-dependencies
// into PEP 508 requirement strings, annotating each extra's entries with
// `; extra == "<name>"` the way a built wheel's METADATA would, so
// downstream requirement parsing (resolver.ParseRequirement) sees the same
// shape regardless of whether it came from a pyproject.toml or a wheel.
func (p *Project) Requirements() []string {
	reqs := make([]string, 0, len(p.Dependencies))
	reqs = append(reqs, p.Dependencies...)

	for extra, deps := range p.OptionalDependencies {
		for _, d := range deps {
			reqs = append(reqs, extraQualify(d, extra))
		}
	}

	return reqs
}

// CheckCompatible reports whether runningVersion (pipg's own semantic
// version, e.g. "0.4.1") satisfies the project's requires-pipg-version
// constraint. A file with no constraint declared is always compatible.
//
// Unlike package version ranges, which are PEP 440 and go through
// internal/pep440, pipg's own release versions are plain semver, so this
// uses aquasecurity/go-version's generic constraint parser instead.
func (f *File) CheckCompatible(runningVersion string) error {
	raw := f.Tool.Pipg.RequiresPipgVersion
	if raw == "" {
		return nil
	}

	constraint, err := goversion.NewConstraints(raw)
	if err != nil {
		return fmt.Errorf("parsing requires-pipg-version %q: %w", raw, err)
	}

	running, err := goversion.Parse(runningVersion)
	if err != nil {
		return fmt.Errorf("parsing pipg version %q: %w", runningVersion, err)
	}

	if !constraint.Check(running) {
		return fmt.Errorf("pipg %s does not satisfy requires-pipg-version %q", runningVersion, raw)
	}

	return nil
}

func extraQualify(requirement, extra string) string {
	marker := fmt.Sprintf(`extra == "%s"`, extra)

	for i := range requirement {
		if requirement[i] == ';' {
			return strings.TrimSpace(requirement[:i]) + "; " + marker + " and (" + strings.TrimSpace(requirement[i+1:]) + ")"
		}
	}

	return requirement + "; " + marker
}
