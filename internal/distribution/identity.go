// Package distribution defines the distribution identity and metadata
// types: the discriminated union of places a Python distribution can live
// (registry, direct URL, git, local path; wheel vs. source), plus
// content-addressed identifiers for an artifact and its upstream resource.
// The cache does not key its paths by these identifiers; it keys by filename.
package distribution

import (
	"crypto/sha256"
	"encoding/hex"
)

// DistributionID uniquely identifies a specific artifact: a hash of file
// contents where available, or of a canonicalized URL that includes
// version/ref information.
type DistributionID [32]byte

func (id DistributionID) String() string { return hex.EncodeToString(id[:]) }

// ResourceID identifies a reusable upstream resource independent of any one
// version/ref: e.g. a git repository, or a URL without its version-bearing
// path segment.
type ResourceID [32]byte

func (id ResourceID) String() string { return hex.EncodeToString(id[:]) }

func hashStrings(parts ...string) [32]byte {
	h := sha256.New()

	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}

	var out [32]byte

	copy(out[:], h.Sum(nil))

	return out
}

// Identity is the discriminated union of every place a distribution can
// live. Implemented as an interface with an unexported marker method so
// dispatch is a type switch.
type Identity interface {
	// Name returns the normalized package name.
	Name() string
	// VersionOrURL returns a human-readable description of the version or
	// URL this identity pins to.
	VersionOrURL() string
	// DistributionID returns this identity's content-addressed artifact ID.
	DistributionID() DistributionID
	// ResourceID returns the reusable-resource ID behind this identity.
	ResourceID() ResourceID
	// IsSource reports whether this identity names a source distribution
	// (requiring a build step) as opposed to an already-built wheel.
	IsSource() bool

	isIdentity()
}

// BuiltRegistry is a wheel hosted in a package index.
type BuiltRegistry struct {
	PkgName string
	Version string
	File    string // wheel filename
	Index   string // index base URL
}

func (d BuiltRegistry) Name() string         { return d.PkgName }
func (d BuiltRegistry) VersionOrURL() string { return d.Version }
func (d BuiltRegistry) IsSource() bool       { return false }
func (d BuiltRegistry) isIdentity()          {}
func (d BuiltRegistry) DistributionID() DistributionID {
	return DistributionID(hashStrings("built-registry", d.Index, d.PkgName, d.Version, d.File))
}
func (d BuiltRegistry) ResourceID() ResourceID {
	return ResourceID(hashStrings("registry", d.Index, d.PkgName))
}

// BuiltDirectUrl is a wheel at an arbitrary URL; the filename must encode
// the wheel name per PEP 427.
type BuiltDirectUrl struct {
	Filename string
	URL      string
}

func (d BuiltDirectUrl) Name() string         { name, _, _, _ := parseWheelName(d.Filename); return name }
func (d BuiltDirectUrl) VersionOrURL() string { return d.URL }
func (d BuiltDirectUrl) IsSource() bool       { return false }
func (d BuiltDirectUrl) isIdentity()          {}
func (d BuiltDirectUrl) DistributionID() DistributionID {
	return DistributionID(hashStrings("built-url", d.URL))
}
func (d BuiltDirectUrl) ResourceID() ResourceID {
	return ResourceID(hashStrings("url", stripVersionedPath(d.URL)))
}

// BuiltPath is a wheel already present on local disk.
type BuiltPath struct {
	Filename string
	URL      string // file:// URL, for display/cache scoping
	Path     string
}

func (d BuiltPath) Name() string         { name, _, _, _ := parseWheelName(d.Filename); return name }
func (d BuiltPath) VersionOrURL() string { return d.Path }
func (d BuiltPath) IsSource() bool       { return false }
func (d BuiltPath) isIdentity()          {}
func (d BuiltPath) DistributionID() DistributionID {
	return DistributionID(hashStrings("built-path", d.Path))
}
func (d BuiltPath) ResourceID() ResourceID {
	return ResourceID(hashStrings("path", d.Path))
}

// SourceRegistry is an sdist hosted in a package index.
type SourceRegistry struct {
	PkgName string
	Version string
	File    string
	Index   string
}

func (d SourceRegistry) Name() string         { return d.PkgName }
func (d SourceRegistry) VersionOrURL() string { return d.Version }
func (d SourceRegistry) IsSource() bool       { return true }
func (d SourceRegistry) isIdentity()          {}
func (d SourceRegistry) DistributionID() DistributionID {
	return DistributionID(hashStrings("source-registry", d.Index, d.PkgName, d.Version, d.File))
}
func (d SourceRegistry) ResourceID() ResourceID {
	return ResourceID(hashStrings("registry", d.Index, d.PkgName))
}

// SourceDirectUrl is a source archive at an arbitrary URL. Its version is
// unknown until metadata is read.
type SourceDirectUrl struct {
	PkgName string
	URL     string
}

func (d SourceDirectUrl) Name() string         { return d.PkgName }
func (d SourceDirectUrl) VersionOrURL() string { return d.URL }
func (d SourceDirectUrl) IsSource() bool       { return true }
func (d SourceDirectUrl) isIdentity()          {}
func (d SourceDirectUrl) DistributionID() DistributionID {
	return DistributionID(hashStrings("source-url", d.URL))
}
func (d SourceDirectUrl) ResourceID() ResourceID {
	return ResourceID(hashStrings("url", stripVersionedPath(d.URL)))
}

// SourceGit is a source tree in a git repository at a specific ref.
type SourceGit struct {
	PkgName    string
	URLWithRef string // e.g. "https://github.com/x/y.git@abcdef"
}

func (d SourceGit) Name() string         { return d.PkgName }
func (d SourceGit) VersionOrURL() string { return d.URLWithRef }
func (d SourceGit) IsSource() bool       { return true }
func (d SourceGit) isIdentity()          {}
func (d SourceGit) DistributionID() DistributionID {
	return DistributionID(hashStrings("source-git", d.URLWithRef))
}
func (d SourceGit) ResourceID() ResourceID {
	repo, _, _ := splitGitRef(d.URLWithRef)

	return ResourceID(hashStrings("git", repo))
}

// SourcePath is a source tree on local disk, possibly installed editable.
type SourcePath struct {
	PkgName  string
	URL      string
	Path     string
	Editable bool
}

func (d SourcePath) Name() string         { return d.PkgName }
func (d SourcePath) VersionOrURL() string { return d.Path }
func (d SourcePath) IsSource() bool       { return true }
func (d SourcePath) isIdentity()          {}
func (d SourcePath) DistributionID() DistributionID {
	editTag := "0"
	if d.Editable {
		editTag = "1"
	}

	return DistributionID(hashStrings("source-path", d.Path, editTag))
}
func (d SourcePath) ResourceID() ResourceID {
	return ResourceID(hashStrings("path", d.Path))
}

func splitGitRef(urlWithRef string) (repo, ref string, hasRef bool) {
	for i := len(urlWithRef) - 1; i >= 0; i-- {
		if urlWithRef[i] == '@' {
			return urlWithRef[:i], urlWithRef[i+1:], true
		}
	}

	return urlWithRef, "", false
}

// stripVersionedPath is a best-effort normalization of a URL so that two
// URLs differing only in a trailing version-bearing filename still hash to
// the same resource ID.
func stripVersionedPath(url string) string {
	slash := -1

	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '/' {
			slash = i

			break
		}
	}

	if slash == -1 {
		return url
	}

	return url[:slash]
}

// parseWheelName extracts the name, version, ABI tag and platform tag from a
// wheel filename of the form {name}-{version}[-{build}]-{python}-{abi}-{platform}.whl.
func parseWheelName(filename string) (name, version, abi, platform string) {
	trimmed := filename

	if len(trimmed) > 4 && trimmed[len(trimmed)-4:] == ".whl" {
		trimmed = trimmed[:len(trimmed)-4]
	}

	parts := splitHyphen(trimmed)
	if len(parts) < 5 {
		return "", "", "", ""
	}

	return parts[0], parts[1], parts[len(parts)-2], parts[len(parts)-1]
}

// ParseWheelFilename is the public entry point used by the wheeltag.go tag
// matcher and by the database layer to recover identity from a bare
// filename.
func ParseWheelFilename(filename string) (name, version, abi, platform string, err error) {
	name, version, abi, platform = parseWheelName(filename)
	if name == "" {
		return "", "", "", "", errInvalidWheelFilename(filename)
	}

	return name, version, abi, platform, nil
}

type errInvalidWheelFilename string

func (e errInvalidWheelFilename) Error() string {
	return "invalid wheel filename: " + string(e)
}

func splitHyphen(s string) []string {
	var parts []string

	start := 0

	for i := 0; i < len(s); i++ {
		if s[i] == '-' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}

	parts = append(parts, s[start:])

	return parts
}
