package distribution

import "strings"

// WheelTag is the parsed (python, abi, platform) compatibility tag of a
// wheel filename, shared so both the downloader and the distribution
// database can classify wheels without depending on each other.
type WheelTag struct {
	Python   string
	ABI      string
	Platform string
}

// ParseWheelTags returns every compressed tag combination encoded in a
// wheel filename (PEP 425 allows dot-separated alternatives in each of the
// three segments, e.g. "cp39.cp310-abi3-manylinux_2_17_x86_64").
func ParseWheelTags(filename string) ([]WheelTag, error) {
	_, _, abi, platform, err := ParseWheelFilename(filename)
	if err != nil {
		return nil, err
	}

	trimmed := filename
	if strings.HasSuffix(trimmed, ".whl") {
		trimmed = trimmed[:len(trimmed)-4]
	}

	parts := splitHyphen(trimmed)
	if len(parts) < 5 {
		return nil, errInvalidWheelFilename(filename)
	}

	pyField := parts[len(parts)-3]

	var tags []WheelTag

	for _, py := range strings.Split(pyField, ".") {
		for _, a := range strings.Split(abi, ".") {
			for _, p := range strings.Split(platform, ".") {
				tags = append(tags, WheelTag{Python: py, ABI: a, Platform: p})
			}
		}
	}

	return tags, nil
}

// Matches reports whether t is compatible with one of the interpreter's
// supported tags, applying field-wildcard comparison per field.
func (t WheelTag) Matches(supported WheelTag) bool {
	return fieldMatches(t.Python, supported.Python) &&
		fieldMatches(t.ABI, supported.ABI) &&
		fieldMatches(t.Platform, supported.Platform)
}

// fieldMatches treats "any" on either side, and "none" on the wheel's side,
// as a wildcard; any other value must match exactly.
func fieldMatches(tag, supported string) bool {
	if tag == "any" || tag == "none" || supported == "any" {
		return true
	}

	return tag == supported
}

// BestTagRank returns the index of the first supported tag (in preference
// order, most-specific first) that t matches, or -1 if none match. Lower is
// better.
func BestTagRank(t WheelTag, supported []WheelTag) int {
	for i, s := range supported {
		if t.Matches(s) {
			return i
		}
	}

	return -1
}
