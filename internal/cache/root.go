package cache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Bucket names the cache sub-directories, one per kind of artifact the
// distribution database writes. Mirrors the on-disk layout described in
// the distdb section: every resource kind gets its own bucket so a wheel
// and a git checkout for packages sharing a name never collide.
type Bucket string

const (
	BucketWheels        Bucket = "wheels"
	BucketBuiltWheels   Bucket = "built-wheels"
	BucketArchives      Bucket = "archives"
	BucketGit           Bucket = "git"
	BucketSimpleAPI     Bucket = "simple-api"
	BucketWheelMetadata Bucket = "wheel-metadata"
)

// layoutVersion is bumped whenever the on-disk bucket layout changes
// incompatibly; Root refuses to reuse a cache directory stamped with a
// different version, the same "blow it away and start over" policy the
// teacher's flat cache implicitly relied on by keying file names off
// content hashes.
const layoutVersion = "1"

// Root owns a top-level cache directory containing one Manager per Bucket,
// the multi-bucket layout the distribution database needs on top of a
// single flat cache directory.
type Root struct {
	dir      string
	logger   *slog.Logger
	managers map[Bucket]*Manager
}

// RootOption configures a Root.
type RootOption func(*rootConfig)

type rootConfig struct {
	dir    string
	logger *slog.Logger
}

// WithRootDir sets the top-level cache directory. Overrides platform default.
func WithRootDir(dir string) RootOption {
	return func(c *rootConfig) {
		if dir != "" {
			c.dir = dir
		}
	}
}

// WithRootLogger sets the structured logger shared by every bucket.
func WithRootLogger(l *slog.Logger) RootOption {
	return func(c *rootConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewRoot creates (or opens) the top-level cache directory, stamps it with
// CACHEDIR.TAG and a layout-version marker, and pre-creates a Manager for
// every known bucket.
func NewRoot(opts ...RootOption) (*Root, error) {
	cfg := &rootConfig{logger: slog.Default()}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.dir == "" {
		cfg.dir = filepath.Dir(defaultCacheDir())
	}

	if err := os.MkdirAll(cfg.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache root %s: %w", cfg.dir, err)
	}

	if err := stampCacheDir(cfg.dir); err != nil {
		return nil, err
	}

	r := &Root{
		dir:      cfg.dir,
		logger:   cfg.logger,
		managers: make(map[Bucket]*Manager),
	}

	for _, b := range []Bucket{BucketWheels, BucketBuiltWheels, BucketArchives, BucketGit, BucketSimpleAPI, BucketWheelMetadata} {
		m, err := New(WithDir(filepath.Join(cfg.dir, string(b))), WithLogger(cfg.logger))
		if err != nil {
			return nil, fmt.Errorf("opening bucket %s: %w", b, err)
		}

		r.managers[b] = m
	}

	return r, nil
}

// Bucket returns the Manager for the given bucket.
func (r *Root) Bucket(b Bucket) *Manager {
	return r.managers[b]
}

// Dir returns the top-level cache directory.
func (r *Root) Dir() string {
	return r.dir
}

const cachedirTagContent = "Signature: 8a477f597d28d172789f06886806bc55\n" +
	"# This file is a cache directory tag created by pipg.\n" +
	"# For information about cache directory tags see https://bford.info/cachedir/\n"

// stampCacheDir writes CACHEDIR.TAG (so backup tools skip this directory,
// per the widely adopted convention) and a layout-version file, refusing to
// reuse a directory stamped with an incompatible version.
func stampCacheDir(dir string) error {
	versionPath := filepath.Join(dir, ".layout-version")

	existing, err := os.ReadFile(versionPath)
	if err == nil {
		if string(existing) != layoutVersion {
			return fmt.Errorf("cache directory %s has incompatible layout version %q, want %q", dir, existing, layoutVersion)
		}

		return nil
	}

	if !os.IsNotExist(err) {
		return fmt.Errorf("reading cache layout version in %s: %w", dir, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "CACHEDIR.TAG"), []byte(cachedirTagContent), 0o644); err != nil {
		return fmt.Errorf("writing CACHEDIR.TAG in %s: %w", dir, err)
	}

	if err := os.WriteFile(versionPath, []byte(layoutVersion), 0o644); err != nil {
		return fmt.Errorf("writing layout version in %s: %w", dir, err)
	}

	return nil
}
