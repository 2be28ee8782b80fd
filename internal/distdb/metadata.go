package distdb

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// Metadata is the subset of a wheel/sdist's core metadata (PEP 566) the
// resolver and planner need: enough to drive dependency resolution without
// parsing the whole METADATA file into a generic key/value bag.
type Metadata struct {
	Name            string
	Version         string
	RequiresDist    []string
	RequiresPython  string
	Provides        map[string]bool // extras this distribution declares
}

// parseMetadata reads a METADATA/PKG-INFO file's RFC 822-style headers.
// Unlike net/textproto's MIME header reader, repeated fields (Requires-Dist
// appears once per dependency) must stay distinct rather than being folded
// together, so headers are walked by hand instead. No example repo in the
// corpus parses PEP 566 core metadata; this is a deliberately small,
// purpose-built reader rather than a general RFC 822 parser.
func parseMetadata(raw []byte) (Metadata, error) {
	md := Metadata{Provides: make(map[string]bool)}

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		key    string
		value  strings.Builder
		inBody bool
	)

	flush := func() {
		if key == "" {
			return
		}

		applyHeader(&md, key, value.String())
		key = ""
		value.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()

		if inBody {
			continue
		}

		if line == "" {
			flush()
			inBody = true

			continue
		}

		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && key != "" {
			value.WriteByte('\n')
			value.WriteString(strings.TrimSpace(line))

			continue
		}

		flush()

		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}

		key = strings.TrimSpace(line[:idx])
		value.WriteString(strings.TrimSpace(line[idx+1:]))
	}

	flush()

	if err := scanner.Err(); err != nil {
		return Metadata{}, fmt.Errorf("scanning metadata: %w", err)
	}

	if md.Name == "" {
		return Metadata{}, fmt.Errorf("metadata missing Name header")
	}

	return md, nil
}

func applyHeader(md *Metadata, key, value string) {
	switch strings.ToLower(key) {
	case "name":
		md.Name = value
	case "version":
		md.Version = value
	case "requires-dist":
		md.RequiresDist = append(md.RequiresDist, value)
	case "requires-python":
		md.RequiresPython = value
	case "provides-extra":
		md.Provides[value] = true
	}
}
