package pypi

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// ErrStreamingUnsupported is returned when the remote server does not
// support byte-range requests, signaling the caller (distdb) to fall back
// to a full download.
var ErrStreamingUnsupported = errors.New("server does not support range requests")

// WheelMetadataFetcher fetches just the METADATA file out of a remote
// wheel's .dist-info directory, without downloading the whole archive.
type WheelMetadataFetcher interface {
	FetchWheelMetadata(ctx context.Context, wheelURL string) ([]byte, error)
}

// FetchWheelMetadata reads the remote wheel's zip central directory via
// range requests, locates the METADATA file, and fetches only its bytes,
// composing net/http Range headers with archive/zip.NewReader's
// io.ReaderAt-based random access.
func (s *Service) FetchWheelMetadata(ctx context.Context, wheelURL string) ([]byte, error) {
	size, err := s.contentLength(ctx, wheelURL)
	if err != nil {
		return nil, err
	}

	ra := &httpRangeReaderAt{ctx: ctx, client: s.httpClient, url: wheelURL, size: size}

	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("reading zip central directory for %s: %w", wheelURL, err)
	}

	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, ".dist-info/METADATA") {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening METADATA entry in %s: %w", wheelURL, err)
		}
		defer func() { _ = rc.Close() }()

		return io.ReadAll(rc)
	}

	return nil, fmt.Errorf("no .dist-info/METADATA entry found in %s", wheelURL)
}

// contentLength issues a HEAD request and confirms the server advertises
// Accept-Ranges: bytes, returning ErrStreamingUnsupported otherwise.
func (s *Service) contentLength(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("creating HEAD request for %s: %w", url, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HEAD %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d from HEAD %s", resp.StatusCode, url)
	}

	if resp.Header.Get("Accept-Ranges") != "bytes" {
		return 0, ErrStreamingUnsupported
	}

	size, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing Content-Length from HEAD %s: %w", url, err)
	}

	return size, nil
}

// httpRangeReaderAt adapts HTTP Range requests to io.ReaderAt, the shape
// archive/zip.NewReader requires for seeking into the central directory
// without downloading the whole file.
type httpRangeReaderAt struct {
	ctx    context.Context
	client *http.Client
	url    string
	size   int64
}

func (r *httpRangeReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= r.size {
		return 0, io.EOF
	}

	end := off + int64(len(p)) - 1
	if end >= r.size {
		end = r.size - 1
	}

	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return 0, err
	}

	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, end))

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("range request to %s returned status %d", r.url, resp.StatusCode)
	}

	n, err := io.ReadFull(resp.Body, p[:end-off+1])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return n, err
	}

	return n, nil
}
