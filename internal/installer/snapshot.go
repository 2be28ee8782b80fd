package installer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bilusteknoloji/pipg/internal/resolver"
)

// InstalledPackage is one package already present in a site-packages
// directory, as read back from its .dist-info directory name.
type InstalledPackage struct {
	Name        string
	Version     string
	DistInfoDir string // absolute path to the <name>-<version>.dist-info directory
}

// InstalledSet indexes InstalledPackage by normalized name for the
// planner's reinstall/no-op/extraneous classification.
type InstalledSet map[string]InstalledPackage

// Snapshot reads every *.dist-info directory directly under sitePackages
// and returns the packages they name. It does not parse METADATA or
// RECORD: the directory name alone ("name-version.dist-info", the layout
// every wheel installer including this one's own Install writes) is
// sufficient to answer "what's installed at what version".
func Snapshot(sitePackages string) (InstalledSet, error) {
	entries, err := os.ReadDir(sitePackages)
	if err != nil {
		if os.IsNotExist(err) {
			return InstalledSet{}, nil
		}

		return nil, fmt.Errorf("reading site-packages %s: %w", sitePackages, err)
	}

	set := make(InstalledSet, len(entries))

	for _, e := range entries {
		if !e.IsDir() || !strings.HasSuffix(e.Name(), ".dist-info") {
			continue
		}

		name, version, ok := parseDistInfoDirName(e.Name())
		if !ok {
			continue
		}

		set[name] = InstalledPackage{
			Name:        name,
			Version:     version,
			DistInfoDir: filepath.Join(sitePackages, e.Name()),
		}
	}

	return set, nil
}

// parseDistInfoDirName splits "requests-2.31.0.dist-info" into
// ("requests", "2.31.0"). The package name is itself allowed to contain
// hyphens, so the version is taken as the last hyphen-delimited segment
// (PEP 427 dist-info directory names always encode the version this way).
func parseDistInfoDirName(dirName string) (name, version string, ok bool) {
	base := strings.TrimSuffix(dirName, ".dist-info")

	idx := strings.LastIndex(base, "-")
	if idx <= 0 || idx == len(base)-1 {
		return "", "", false
	}

	return resolver.NormalizeName(base[:idx]), base[idx+1:], true
}
