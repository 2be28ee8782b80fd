package distdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bilusteknoloji/pipg/internal/build"
)

func TestEditableBuilderSkipsRebuildWhenUnchanged(t *testing.T) {
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "pyproject.toml"), []byte("[project]\nname = \"demo\"\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	calls := 0

	builder := build.New(build.WithCommandRunner(func(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
		calls++

		return []byte("demo-1.0-0.editable-py3-none-any.whl\n"), nil, nil
	}))

	eb := NewEditableBuilder(builder, newTestRoot(t))

	src := EditableSource{Name: "demo", SrcDir: srcDir, Backend: build.Backend{BuildBackend: "setuptools.build_meta"}}

	first, err := eb.Build(context.Background(), src)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	second, err := eb.Build(context.Background(), src)
	if err != nil {
		t.Fatalf("Build (second): %v", err)
	}

	if calls != 1 {
		t.Errorf("expected 1 hook invocation across two unchanged builds, got %d", calls)
	}

	if first.Filename != second.Filename {
		t.Errorf("expected cached result to be returned unchanged")
	}
}

func TestEditableBuilderRebuildsAfterChange(t *testing.T) {
	srcDir := t.TempDir()
	srcFile := filepath.Join(srcDir, "pyproject.toml")

	if err := os.WriteFile(srcFile, []byte("[project]\nname = \"demo\"\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	calls := 0

	builder := build.New(build.WithCommandRunner(func(ctx context.Context, dir, name string, args ...string) ([]byte, []byte, error) {
		calls++

		return []byte("demo-1.0-0.editable-py3-none-any.whl\n"), nil, nil
	}))

	eb := NewEditableBuilder(builder, newTestRoot(t))

	src := EditableSource{Name: "demo", SrcDir: srcDir, Backend: build.Backend{BuildBackend: "setuptools.build_meta"}}

	if _, err := eb.Build(context.Background(), src); err != nil {
		t.Fatalf("Build: %v", err)
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(srcFile, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if _, err := eb.Build(context.Background(), src); err != nil {
		t.Fatalf("Build (after change): %v", err)
	}

	if calls != 2 {
		t.Errorf("expected a rebuild after the source file changed, got %d calls", calls)
	}
}
