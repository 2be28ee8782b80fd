package distdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bilusteknoloji/pipg/internal/build"
	"github.com/bilusteknoloji/pipg/internal/cache"
)

// EditableSource is a local source tree installed with `-e`: every build and
// metadata read runs the backend in srcDir directly rather than against a
// cached archive, since the whole point of an editable install is that
// srcDir keeps changing underneath it.
type EditableSource struct {
	Name    string
	SrcDir  string
	Backend build.Backend
}

// rebuildBoundary is the newest modification time among a source tree's
// build-relevant files the last time it was built; a rebuild is skipped
// when nothing under it has changed since.
type rebuildBoundary struct {
	builtAt time.Time
	result  build.Result
}

// EditableBuilder builds and rebuilds PEP 660 editable wheels on top of the
// build package's hook-invocation pipeline, skipping the backend invocation
// when the source tree hasn't changed since the last build.
type EditableBuilder struct {
	builder   *build.Builder
	cacheRoot *cache.Root

	boundaries map[string]rebuildBoundary
}

// NewEditableBuilder creates an EditableBuilder using b to invoke backend
// hooks and cacheRoot's built-wheels bucket as scratch space.
func NewEditableBuilder(b *build.Builder, cacheRoot *cache.Root) *EditableBuilder {
	return &EditableBuilder{
		builder:    b,
		cacheRoot:  cacheRoot,
		boundaries: make(map[string]rebuildBoundary),
	}
}

// Build returns src's built editable wheel, reusing the previous build if
// the source tree's newest file mtime hasn't advanced since then.
func (e *EditableBuilder) Build(ctx context.Context, src EditableSource) (build.Result, error) {
	latest, err := newestMTime(src.SrcDir)
	if err != nil {
		return build.Result{}, fmt.Errorf("scanning %s for changes: %w", src.SrcDir, err)
	}

	if prev, ok := e.boundaries[src.SrcDir]; ok && !latest.After(prev.builtAt) {
		return prev.result, nil
	}

	outDir := filepath.Join(e.cacheRoot.Bucket(cache.BucketBuiltWheels).Dir(), build.BuildID(src.SrcDir, src.Backend)+"-editable")

	result, err := e.builder.BuildEditable(ctx, src.SrcDir, outDir, src.Backend)
	if err != nil {
		return build.Result{}, fmt.Errorf("building editable wheel for %s: %w", src.Name, err)
	}

	e.boundaries[src.SrcDir] = rebuildBoundary{builtAt: latest, result: result}

	return result, nil
}

// newestMTime walks srcDir and returns the most recent modification time
// among its regular files, skipping the usual noise directories that never
// affect a build's inputs.
func newestMTime(srcDir string) (time.Time, error) {
	var latest time.Time

	err := filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			switch d.Name() {
			case ".git", "__pycache__", ".venv", "venv", "build", "dist", ".tox", ".mypy_cache", ".pytest_cache":
				return filepath.SkipDir
			}

			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}

		return nil
	})
	if err != nil {
		return time.Time{}, err
	}

	return latest, nil
}
