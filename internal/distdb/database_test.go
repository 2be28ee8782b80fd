package distdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/bilusteknoloji/pipg/internal/cache"
	"github.com/bilusteknoloji/pipg/internal/pep440"
	"github.com/bilusteknoloji/pipg/internal/pypi"
)

func mustParseVersion(t *testing.T, s string) pep440.Version {
	t.Helper()

	v, err := pep440.Parse(s)
	if err != nil {
		t.Fatalf("pep440.Parse(%q): %v", s, err)
	}

	return v
}

type fakeSimple struct {
	files map[string][]pypi.SimpleFile
}

func (f *fakeSimple) Project(ctx context.Context, name string) ([]pypi.SimpleFile, error) {
	return f.files[name], nil
}

type fakeWheelMeta struct {
	metadata map[string][]byte
	err      error
}

func (f *fakeWheelMeta) FetchWheelMetadata(ctx context.Context, wheelURL string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.metadata[wheelURL], nil
}

func newTestRoot(t *testing.T) *cache.Root {
	t.Helper()

	root, err := cache.NewRoot(cache.WithRootDir(t.TempDir()))
	if err != nil {
		t.Fatalf("cache.NewRoot: %v", err)
	}

	return root
}

func TestVersionsPrefersWheelOverSdistForSameVersion(t *testing.T) {
	simple := &fakeSimple{files: map[string][]pypi.SimpleFile{
		"demo": {
			{Filename: "demo-1.0.tar.gz", URL: "https://example.test/demo-1.0.tar.gz"},
			{Filename: "demo-1.0-py3-none-any.whl", URL: "https://example.test/demo-1.0-py3-none-any.whl"},
			{Filename: "demo-0.9-py3-none-any.whl", URL: "https://example.test/demo-0.9-py3-none-any.whl", Yanked: true},
		},
	}}

	svc := New(simple, &fakeWheelMeta{}, newTestRoot(t))

	candidates, err := svc.Versions(context.Background(), "demo")
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}

	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate (yanked filtered out), got %d: %+v", len(candidates), candidates)
	}

	if candidates[0].IsSource {
		t.Error("expected the wheel to win over the sdist for version 1.0")
	}

	if candidates[0].Version.String() != "1.0" {
		t.Errorf("version = %s, want 1.0", candidates[0].Version.String())
	}
}

func TestWheelMetadataStreamsWhenSupported(t *testing.T) {
	simple := &fakeSimple{}
	wheelMeta := &fakeWheelMeta{metadata: map[string][]byte{
		"https://example.test/demo-1.0-py3-none-any.whl": []byte("Name: demo\nVersion: 1.0\n\n"),
	}}

	svc := New(simple, wheelMeta, newTestRoot(t))

	c := Candidate{
		File: pypi.SimpleFile{Filename: "demo-1.0-py3-none-any.whl", URL: "https://example.test/demo-1.0-py3-none-any.whl"},
	}

	md, err := svc.Metadata(context.Background(), "demo", c)
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}

	if md.Name != "demo" || md.Version != "1.0" {
		t.Errorf("metadata = %+v, want demo 1.0", md)
	}
}

func TestWheelDownloadsAndCaches(t *testing.T) {
	const payload = "fake wheel contents"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(payload))
	}))
	defer server.Close()

	svc := New(&fakeSimple{}, &fakeWheelMeta{}, newTestRoot(t))

	c := Candidate{
		Version: mustParseVersion(t, "1.0"),
		File:    pypi.SimpleFile{Filename: "demo-1.0-py3-none-any.whl", URL: server.URL},
	}

	path, err := svc.Wheel(context.Background(), "demo", c)
	if err != nil {
		t.Fatalf("Wheel: %v", err)
	}

	if path == "" {
		t.Fatal("expected a non-empty cached path")
	}

	// A second call should hit the cache rather than re-downloading.
	path2, err := svc.Wheel(context.Background(), "demo", c)
	if err != nil {
		t.Fatalf("Wheel (cached): %v", err)
	}

	if path != path2 {
		t.Errorf("path = %s, cached path = %s, want same file", path, path2)
	}
}

func TestWheelConcurrentRequestsSingleFlightToOneDownload(t *testing.T) {
	const payload = "fake wheel contents"

	var hits int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		_, _ = w.Write([]byte(payload))
	}))
	defer server.Close()

	svc := New(&fakeSimple{}, &fakeWheelMeta{}, newTestRoot(t))

	c := Candidate{
		Version: mustParseVersion(t, "1.0"),
		File:    pypi.SimpleFile{Filename: "demo-1.0-py3-none-any.whl", URL: server.URL},
	}

	var wg sync.WaitGroup

	paths := make([]string, 10)
	errs := make([]error, 10)

	for i := range 10 {
		wg.Add(1)

		go func(n int) {
			defer wg.Done()

			paths[n], errs[n] = svc.Wheel(context.Background(), "demo", c)
		}(i)
	}

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("Wheel()[%d] error: %v", i, err)
		}

		if paths[i] != paths[0] {
			t.Errorf("path[%d] = %s, want %s", i, paths[i], paths[0])
		}
	}

	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Errorf("server received %d requests, want exactly 1 (single-flight dedup)", got)
	}
}
