// Package build drives the PEP 517 source-build pipeline: given an sdist or
// source tree plus its build backend, it invokes the backend's
// build_wheel/prepare_metadata_for_build_wheel hooks in a subprocess and
// classifies failures.
package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// CommandRunner executes a command in a working directory and returns its
// stdout, stderr, and any execution error, split so hook output can be
// parsed separately from build log noise.
type CommandRunner func(ctx context.Context, dir, name string, args ...string) (stdout, stderr []byte, err error)

// Backend describes the PEP 517 build backend a source tree declares in its
// pyproject.toml [build-system] table.
type Backend struct {
	BuildBackend string   // e.g. "setuptools.build_meta"
	Requires     []string // build-time requirements
	BackendPath  []string // PEP 517 backend-path, if any
}

// Option configures a Builder.
type Option func(*Builder)

// WithCommandRunner overrides the subprocess runner. Defaults to
// exec.CommandContext.
func WithCommandRunner(fn CommandRunner) Option {
	return func(b *Builder) {
		if fn != nil {
			b.runCmd = fn
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithPythonBin sets the interpreter used to run the backend hooks.
func WithPythonBin(bin string) Option {
	return func(b *Builder) {
		if bin != "" {
			b.pythonBin = bin
		}
	}
}

// Builder invokes PEP 517 build-backend hooks.
type Builder struct {
	pythonBin string
	runCmd    CommandRunner
	logger    *slog.Logger
}

// New creates a Builder.
func New(opts ...Option) *Builder {
	b := &Builder{
		pythonBin: "python3",
		runCmd:    defaultRunCmd,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Result is the outcome of a successful hook invocation.
type Result struct {
	// OutputDir is the directory the requested artifact (wheel or metadata
	// directory) was written into.
	OutputDir string
	// Filename is the artifact's basename, as reported by the backend hook
	// on the last line of stdout (the PEP 517 hook-invocation convention).
	Filename string
}

// hookDriver is the PEP 517 in-process hook-caller script: it imports the
// backend, invokes the named hook with the output directory as its only
// argument (no config settings are passed), and prints the resulting basename as the last line of stdout so the parent
// process doesn't have to reparse backend-specific output.
const hookDriver = `
import sys, json
backend_name, hook_name, outdir = sys.argv[1], sys.argv[2], sys.argv[3]
import importlib
mod_name, _, obj_name = backend_name.partition(":")
backend = importlib.import_module(mod_name)
if obj_name:
    for part in obj_name.split("."):
        backend = getattr(backend, part)
hook = getattr(backend, hook_name)
result = hook(outdir)
print(result)
`

// BuildWheel invokes the backend's build_wheel hook against srcDir, writing
// the wheel into outDir.
func (b *Builder) BuildWheel(ctx context.Context, srcDir, outDir string, backend Backend) (Result, error) {
	return b.invokeHook(ctx, srcDir, outDir, backend, "build_wheel")
}

// PrepareMetadata invokes the backend's prepare_metadata_for_build_wheel
// hook, used to read a source distribution's dependencies without running a
// full build.
func (b *Builder) PrepareMetadata(ctx context.Context, srcDir, outDir string, backend Backend) (Result, error) {
	return b.invokeHook(ctx, srcDir, outDir, backend, "prepare_metadata_for_build_wheel")
}

// BuildEditable invokes the backend's build_editable hook (PEP 660), writing
// a wheel that installs as a pointer back to srcDir rather than a copy.
func (b *Builder) BuildEditable(ctx context.Context, srcDir, outDir string, backend Backend) (Result, error) {
	return b.invokeHook(ctx, srcDir, outDir, backend, "build_editable")
}

// PrepareMetadataEditable invokes prepare_metadata_for_build_editable, the
// PEP 660 counterpart to PrepareMetadata.
func (b *Builder) PrepareMetadataEditable(ctx context.Context, srcDir, outDir string, backend Backend) (Result, error) {
	return b.invokeHook(ctx, srcDir, outDir, backend, "prepare_metadata_for_build_editable")
}

func (b *Builder) invokeHook(ctx context.Context, srcDir, outDir string, backend Backend, hook string) (Result, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating build output directory %s: %w", outDir, err)
	}

	args := []string{"-c", hookDriver, backend.BuildBackend, hook, outDir}

	b.logger.Debug("invoking build hook",
		slog.String("backend", backend.BuildBackend),
		slog.String("hook", hook),
		slog.String("src", srcDir),
	)

	stdout, stderr, err := b.runCmd(ctx, srcDir, b.pythonBin, args...)
	if err != nil {
		kind := Classify(stderr)

		return Result{}, &BuildError{
			Backend: backend.BuildBackend,
			Hook:    hook,
			Kind:    kind,
			Stderr:  string(stderr),
			cause:   err,
		}
	}

	filename := lastNonEmptyLine(string(stdout))
	if filename == "" {
		return Result{}, &BuildError{
			Backend: backend.BuildBackend,
			Hook:    hook,
			Kind:    FailureUnknown,
			Stderr:  string(stderr),
			cause:   fmt.Errorf("hook %s produced no output filename", hook),
		}
	}

	return Result{OutputDir: outDir, Filename: filename}, nil
}

// BuildError wraps a failed hook invocation with its classified failure
// kind so callers (the resolver's backtracking loop, or a human operator)
// can decide whether retrying or reporting a missing system dependency is
// appropriate.
type BuildError struct {
	Backend string
	Hook    string
	Kind    FailureKind
	Stderr  string
	cause   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build hook %s (%s) failed [%s]: %v", e.Hook, e.Backend, e.Kind, e.cause)
}

func (e *BuildError) Unwrap() error { return e.cause }

func lastNonEmptyLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")

	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return strings.TrimSpace(lines[i])
		}
	}

	return ""
}

func defaultRunCmd(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr strings.Builder

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return []byte(stdout.String()), []byte(stderr.String()), err
}

// BuildID computes an identifier for a build invocation, used to name the
// build's cache entry: the source directory's base name joined to the
// backend name. It is not a content hash; the source contents, the build
// requirements and the target interpreter do not enter into it.
func BuildID(srcDir string, backend Backend) string {
	return filepath.Base(srcDir) + "-" + backend.BuildBackend
}
