package pypi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// SimpleFile is one file entry from a PEP 503/691 Simple Repository API
// project page: either a wheel or an sdist, plus enough metadata to decide
// compatibility and build an identity without downloading it.
type SimpleFile struct {
	Filename       string
	URL            string
	Hashes         map[string]string
	RequiresPython string
	Yanked         bool
	// DistInfoMetadata reports whether the index serves this file's
	// METADATA directly under PEP 658/691's `data-dist-info-metadata`.
	DistInfoMetadata bool
}

// SimpleAPI is the Simple Repository API surface (PEP 503 HTML, PEP 691
// JSON), the index-discovery counterpart to the JSON API's per-release
// Client above.
type SimpleAPI interface {
	Project(ctx context.Context, name string) ([]SimpleFile, error)
}

// simpleMediaType is the PEP 691 JSON content type index servers negotiate
// on when sent this Accept header.
const simpleMediaType = "application/vnd.pypi.simple.v1+json"

// Project fetches the Simple Repository index page for name, preferring the
// PEP 691 JSON representation and falling back to parsing the PEP 503 HTML
// page when the index does not speak JSON.
func (s *Service) Project(ctx context.Context, name string) ([]SimpleFile, error) {
	url := fmt.Sprintf("%s/simple/%s/", strings.TrimSuffix(s.baseURL, "/pypi"), name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating simple-index request for %s: %w", name, err)
	}

	req.Header.Set("Accept", simpleMediaType+", text/html;q=0.9")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching simple index for %s: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("project %s not found on index", name)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from simple index for %s", resp.StatusCode, name)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading simple index for %s: %w", name, err)
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		return parseSimpleJSON(body)
	}

	return parseSimpleHTML(body)
}

type simpleJSONResponse struct {
	Files []simpleJSONFile `json:"files"`
}

type simpleJSONFile struct {
	Filename         string            `json:"filename"`
	URL              string            `json:"url"`
	Hashes           map[string]string `json:"hashes"`
	RequiresPython   string            `json:"requires-python"`
	Yanked           json.RawMessage   `json:"yanked"`
	DistInfoMetadata json.RawMessage   `json:"dist-info-metadata"`
}

func parseSimpleJSON(body []byte) ([]SimpleFile, error) {
	var resp simpleJSONResponse

	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding simple-index JSON: %w", err)
	}

	files := make([]SimpleFile, 0, len(resp.Files))

	for _, f := range resp.Files {
		files = append(files, SimpleFile{
			Filename:         f.Filename,
			URL:              f.URL,
			Hashes:           f.Hashes,
			RequiresPython:   f.RequiresPython,
			Yanked:           rawTruthy(f.Yanked),
			DistInfoMetadata: rawTruthy(f.DistInfoMetadata),
		})
	}

	return files, nil
}

// rawTruthy interprets a PEP 691 field that is either a bool or a non-empty
// string (the yanked reason) as present/true.
func rawTruthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s != ""
	}

	return false
}

// parseSimpleHTML parses a PEP 503 index page: an <a> tag per file, with
// data-requires-python/data-yanked/data-dist-info-metadata attributes and
// an optional #sha256=... URL fragment carrying the hash.
func parseSimpleHTML(body []byte) ([]SimpleFile, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parsing simple-index HTML: %w", err)
	}

	var files []SimpleFile

	var walk func(*html.Node)

	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if f, ok := simpleFileFromAnchor(n); ok {
				files = append(files, f)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)

	return files, nil
}

func simpleFileFromAnchor(n *html.Node) (SimpleFile, bool) {
	var href, requiresPython string

	var yanked, distInfoMetadata bool

	for _, attr := range n.Attr {
		switch attr.Key {
		case "href":
			href = attr.Val
		case "data-requires-python":
			requiresPython = html.UnescapeString(attr.Val)
		case "data-yanked":
			yanked = true
		case "data-dist-info-metadata", "data-core-metadata":
			distInfoMetadata = attr.Val != "false"
		}
	}

	if href == "" {
		return SimpleFile{}, false
	}

	url, fragment, _ := strings.Cut(href, "#")

	hashes := map[string]string{}

	if alg, value, ok := strings.Cut(fragment, "="); ok && value != "" {
		hashes[alg] = value
	}

	filename := url

	if idx := strings.LastIndex(filename, "/"); idx != -1 {
		filename = filename[idx+1:]
	}

	text := textContent(n)
	if text != "" {
		filename = text
	}

	return SimpleFile{
		Filename:         filename,
		URL:              url,
		Hashes:           hashes,
		RequiresPython:   requiresPython,
		Yanked:           yanked,
		DistInfoMetadata: distInfoMetadata,
	}, true
}

func textContent(n *html.Node) string {
	var sb strings.Builder

	var walk func(*html.Node)

	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)

	return strings.TrimSpace(sb.String())
}
