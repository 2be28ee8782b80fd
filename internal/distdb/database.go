// Package distdb is the distribution database: the resolver and installer's
// single point of contact with actual package files, fronting the Simple
// API index and wheel downloads with a content-addressed, single-flighted
// cache.
package distdb

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/bilusteknoloji/pipg/internal/build"
	"github.com/bilusteknoloji/pipg/internal/cache"
	"github.com/bilusteknoloji/pipg/internal/distribution"
	"github.com/bilusteknoloji/pipg/internal/downloader"
	"github.com/bilusteknoloji/pipg/internal/pep440"
	"github.com/bilusteknoloji/pipg/internal/pypi"
)

// Candidate is one version of a package as advertised by the index, paired
// with the file that would provide it.
type Candidate struct {
	Version  pep440.Version
	File     pypi.SimpleFile
	IsSource bool
}

// Database is the resolver/installer-facing view of the package universe:
// list versions, fetch a version's dependency metadata without downloading
// the whole artifact when possible, and materialize a wheel on disk.
type Database interface {
	Versions(ctx context.Context, name string) ([]Candidate, error)
	Metadata(ctx context.Context, name string, c Candidate) (Metadata, error)
	Wheel(ctx context.Context, name string, c Candidate) (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBuilder overrides the PEP 517 builder used for source distributions
// that don't expose a streamable METADATA file. Defaults to build.New().
func WithBuilder(b *build.Builder) Option {
	return func(s *Service) {
		if b != nil {
			s.builder = b
		}
	}
}

// Service is the default Database, backed by a Simple API index, streamed
// or downloaded wheel metadata, and a multi-bucket on-disk cache.
type Service struct {
	simple    pypi.SimpleAPI
	wheelMeta pypi.WheelMetadataFetcher
	cacheRoot *cache.Root
	builder   *build.Builder
	logger    *slog.Logger

	sf singleflight.Group
}

// compile-time proof that Service implements Database.
var _ Database = (*Service)(nil)

// New creates a Service fronting simple/wheelMeta with cacheRoot as backing
// storage for downloaded wheels, Simple API responses, and streamed
// metadata.
func New(simple pypi.SimpleAPI, wheelMeta pypi.WheelMetadataFetcher, cacheRoot *cache.Root, opts ...Option) *Service {
	s := &Service{
		simple:    simple,
		wheelMeta: wheelMeta,
		cacheRoot: cacheRoot,
		builder:   build.New(),
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Versions lists every version of name the index advertises, deduplicating
// multiple files (e.g. wheel + sdist) that provide the same version and
// preferring the wheel when both exist.
func (s *Service) Versions(ctx context.Context, name string) ([]Candidate, error) {
	files, err := s.simple.Project(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("listing %s from index: %w", name, err)
	}

	byVersion := make(map[string]Candidate)

	for _, f := range files {
		if f.Yanked {
			continue
		}

		v, isSource, ok := fileVersion(name, f.Filename)
		if !ok {
			continue
		}

		key := v.String()

		if existing, have := byVersion[key]; have {
			// A wheel always supersedes an sdist for the same version; once
			// either kind is recorded, a second file of the same kind (or a
			// weaker sdist-over-wheel) changes nothing.
			if !existing.IsSource || isSource {
				continue
			}
		}

		byVersion[key] = Candidate{Version: v, File: f, IsSource: isSource}
	}

	out := make([]Candidate, 0, len(byVersion))
	for _, c := range byVersion {
		out = append(out, c)
	}

	return out, nil
}

func fileVersion(name, filename string) (pep440.Version, bool, bool) {
	if strings.HasSuffix(filename, ".whl") {
		_, version, _, _, err := distribution.ParseWheelFilename(filename)
		if err != nil {
			return pep440.Version{}, false, false
		}

		v, err := pep440.Parse(version)
		if err != nil {
			return pep440.Version{}, false, false
		}

		return v, false, true
	}

	version, ok := sdistVersion(name, filename)
	if !ok {
		return pep440.Version{}, false, false
	}

	v, err := pep440.Parse(version)
	if err != nil {
		return pep440.Version{}, false, false
	}

	return v, true, true
}

var sdistExtensions = []string{".tar.gz", ".tar.bz2", ".tar.xz", ".zip", ".tgz"}

// sdistVersion strips a known archive extension and the package name prefix
// from an sdist filename, e.g. "requests-2.31.0.tar.gz" -> "2.31.0".
func sdistVersion(name, filename string) (string, bool) {
	base := filename

	matched := false

	for _, ext := range sdistExtensions {
		if strings.HasSuffix(base, ext) {
			base = strings.TrimSuffix(base, ext)
			matched = true

			break
		}
	}

	if !matched {
		return "", false
	}

	prefix := normalizeName(name)
	if !strings.HasPrefix(normalizeName(base), prefix+"-") {
		// index filenames aren't always normalized the same way the
		// requested name is; fall back to splitting on the last hyphen.
		idx := strings.LastIndex(base, "-")
		if idx < 0 {
			return "", false
		}

		return base[idx+1:], true
	}

	return base[len(prefix)+1:], true
}

// normalizeName applies the PEP 503 name-normalization rule: lowercase with
// runs of [-_.] collapsed to a single hyphen.
func normalizeName(name string) string {
	name = strings.ToLower(name)

	var b strings.Builder

	prevHyphen := false

	for i := range len(name) {
		switch name[i] {
		case '-', '_', '.':
			if !prevHyphen {
				b.WriteByte('-')
				prevHyphen = true
			}
		default:
			b.WriteByte(name[i])
			prevHyphen = false
		}
	}

	return b.String()
}

// Metadata returns name@c's parsed core metadata. For a wheel, it streams
// just the METADATA entry via an HTTP range read when the server supports
// it, falling back to a full download; for an sdist, it runs the build
// backend's prepare_metadata_for_build_wheel hook.
func (s *Service) Metadata(ctx context.Context, name string, c Candidate) (Metadata, error) {
	key := "metadata:" + name + "@" + c.Version.String()

	v, err, _ := s.sf.Do(key, func() (any, error) {
		if c.IsSource {
			return s.sourceMetadata(ctx, name, c)
		}

		return s.wheelMetadata(ctx, name, c)
	})
	if err != nil {
		return Metadata{}, err
	}

	return v.(Metadata), nil
}

func (s *Service) wheelMetadata(ctx context.Context, name string, c Candidate) (Metadata, error) {
	cacheKey := c.File.Filename + ".metadata"

	bucket := s.cacheRoot.Bucket(cache.BucketWheelMetadata)
	if path, ok := bucket.Get(cacheKey, ""); ok {
		return readMetadataFile(path)
	}

	raw, err := s.wheelMeta.FetchWheelMetadata(ctx, c.File.URL)
	if err != nil {
		s.logger.Debug("streaming metadata unavailable, downloading wheel",
			slog.String("package", name), slog.String("error", err.Error()))

		path, derr := s.Wheel(ctx, name, c)
		if derr != nil {
			return Metadata{}, fmt.Errorf("downloading %s to read metadata: %w", name, derr)
		}

		raw, err = extractMetadataFromZip(path)
		if err != nil {
			return Metadata{}, fmt.Errorf("extracting metadata from %s: %w", path, err)
		}
	}

	md, err := parseMetadata(raw)
	if err != nil {
		return Metadata{}, fmt.Errorf("parsing metadata for %s: %w", name, err)
	}

	if err := cacheMetadataFile(bucket, cacheKey, raw); err != nil {
		s.logger.Debug("caching metadata failed", slog.String("package", name), slog.String("error", err.Error()))
	}

	return md, nil
}

func (s *Service) sourceMetadata(ctx context.Context, name string, c Candidate) (Metadata, error) {
	srcDir, err := s.Wheel(ctx, name, c)
	if err != nil {
		return Metadata{}, fmt.Errorf("fetching sdist for %s: %w", name, err)
	}

	backend := build.Backend{BuildBackend: "setuptools.build_meta:__legacy__"}

	outDir := filepath.Join(s.cacheRoot.Bucket(cache.BucketBuiltWheels).Dir(), build.BuildID(srcDir, backend)+"-metadata")

	result, err := s.builder.PrepareMetadata(ctx, srcDir, outDir, backend)
	if err != nil {
		return Metadata{}, fmt.Errorf("preparing metadata for %s: %w", name, err)
	}

	raw, err := readDistInfoMetadata(filepath.Join(result.OutputDir, result.Filename, "METADATA"))
	if err != nil {
		return Metadata{}, fmt.Errorf("reading prepared metadata for %s: %w", name, err)
	}

	return parseMetadata(raw)
}

// Wheel downloads (or returns the cached copy of) the file backing c,
// returning its on-disk path.
func (s *Service) Wheel(ctx context.Context, name string, c Candidate) (string, error) {
	bucket := cache.BucketWheels
	if c.IsSource {
		bucket = cache.BucketArchives
	}

	key := "file:" + c.File.Filename

	v, err, _ := s.sf.Do(key, func() (any, error) {
		mgr := s.cacheRoot.Bucket(bucket)

		expected := c.File.Hashes["sha256"]
		if path, ok := mgr.Get(c.File.Filename, expected); ok {
			return path, nil
		}

		dl := downloader.New(mgr.Dir(), downloader.WithLogger(s.logger))

		results, err := dl.Download(ctx, []downloader.Request{{
			Name:     name,
			Version:  c.Version.String(),
			URL:      c.File.URL,
			SHA256:   expected,
			Filename: c.File.Filename,
		}})
		if err != nil {
			return "", fmt.Errorf("downloading %s: %w", c.File.Filename, err)
		}

		return results[0].FilePath, nil
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

func extractMetadataFromZip(wheelPath string) ([]byte, error) {
	r, err := zip.OpenReader(wheelPath)
	if err != nil {
		return nil, fmt.Errorf("opening wheel %s: %w", wheelPath, err)
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		if !strings.HasSuffix(f.Name, ".dist-info/METADATA") {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		defer func() { _ = rc.Close() }()

		return io.ReadAll(rc)
	}

	return nil, fmt.Errorf("no METADATA entry in %s", wheelPath)
}

func readMetadataFile(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("reading cached metadata %s: %w", path, err)
	}

	return parseMetadata(raw)
}

func readDistInfoMetadata(metadataFile string) ([]byte, error) {
	raw, err := os.ReadFile(metadataFile)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", metadataFile, err)
	}

	return raw, nil
}

// cacheMetadataFile persists raw under key in mgr's bucket via a temp file +
// atomic Put, the same publish pattern cache.Manager.Put already uses for
// wheels.
func cacheMetadataFile(mgr *cache.Manager, key string, raw []byte) error {
	tmp := filepath.Join(mgr.Dir(), key+".tmp-write")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("writing temp metadata file: %w", err)
	}
	defer func() { _ = os.Remove(tmp) }()

	return mgr.Put(tmp, key)
}
