package build_test

import (
	"context"
	"testing"

	"github.com/bilusteknoloji/pipg/internal/build"
)

func TestBuildWheelReturnsFilenameFromLastLine(t *testing.T) {
	runner := func(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
		return []byte("some backend chatter\ndemo-1.0-py3-none-any.whl\n"), nil, nil
	}

	b := build.New(build.WithCommandRunner(runner))

	outDir := t.TempDir()

	result, err := b.BuildWheel(context.Background(), t.TempDir(), outDir, build.Backend{BuildBackend: "setuptools.build_meta"})
	if err != nil {
		t.Fatalf("BuildWheel: %v", err)
	}

	if result.Filename != "demo-1.0-py3-none-any.whl" {
		t.Errorf("Filename = %q, want demo-1.0-py3-none-any.whl", result.Filename)
	}

	if result.OutputDir != outDir {
		t.Errorf("OutputDir = %q, want %q", result.OutputDir, outDir)
	}
}

func TestBuildWheelClassifiesFailure(t *testing.T) {
	runner := func(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
		return nil, []byte("ModuleNotFoundError: No module named 'setuptools'"), errExec
	}

	b := build.New(build.WithCommandRunner(runner))

	_, err := b.BuildWheel(context.Background(), t.TempDir(), t.TempDir(), build.Backend{BuildBackend: "setuptools.build_meta"})
	if err == nil {
		t.Fatal("expected error")
	}

	var buildErr *build.BuildError
	if !asBuildError(err, &buildErr) {
		t.Fatalf("expected *build.BuildError, got %T", err)
	}

	if buildErr.Kind != build.FailureMissingBackend {
		t.Errorf("Kind = %s, want %s", buildErr.Kind, build.FailureMissingBackend)
	}
}

var errExec = errExecType{}

type errExecType struct{}

func (errExecType) Error() string { return "exit status 1" }

func asBuildError(err error, target **build.BuildError) bool {
	be, ok := err.(*build.BuildError)
	if !ok {
		return false
	}

	*target = be

	return true
}
