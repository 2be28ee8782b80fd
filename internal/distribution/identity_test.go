package distribution_test

import (
	"testing"

	"github.com/bilusteknoloji/pipg/internal/distribution"
)

func TestResourceIDStableAcrossVersions(t *testing.T) {
	a := distribution.BuiltRegistry{PkgName: "requests", Version: "2.31.0", File: "requests-2.31.0-py3-none-any.whl", Index: "https://pypi.org/simple"}
	b := distribution.BuiltRegistry{PkgName: "requests", Version: "2.32.0", File: "requests-2.32.0-py3-none-any.whl", Index: "https://pypi.org/simple"}

	if a.ResourceID() != b.ResourceID() {
		t.Error("same package/index at different versions should share a resource ID")
	}

	if a.DistributionID() == b.DistributionID() {
		t.Error("different versions should have distinct distribution IDs")
	}
}

func TestResourceIDDistinguishesIndexes(t *testing.T) {
	a := distribution.BuiltRegistry{PkgName: "requests", Version: "2.31.0", Index: "https://pypi.org/simple"}
	b := distribution.BuiltRegistry{PkgName: "requests", Version: "2.31.0", Index: "https://example.com/simple"}

	if a.ResourceID() == b.ResourceID() {
		t.Error("different indexes should not share a resource ID")
	}
}

func TestDirectURLResourceIDStripsVersionedPath(t *testing.T) {
	a := distribution.SourceDirectUrl{PkgName: "foo", URL: "https://example.com/dist/foo-1.0.tar.gz"}
	b := distribution.SourceDirectUrl{PkgName: "foo", URL: "https://example.com/dist/foo-2.0.tar.gz"}

	if a.ResourceID() != b.ResourceID() {
		t.Error("same directory, different filename should share a resource ID")
	}
}

func TestGitResourceIDIgnoresRef(t *testing.T) {
	a := distribution.SourceGit{PkgName: "foo", URLWithRef: "https://github.com/x/y.git@abc123"}
	b := distribution.SourceGit{PkgName: "foo", URLWithRef: "https://github.com/x/y.git@def456"}

	if a.ResourceID() != b.ResourceID() {
		t.Error("same repo at different refs should share a resource ID")
	}

	if a.DistributionID() == b.DistributionID() {
		t.Error("different refs should have distinct distribution IDs")
	}
}

func TestParseWheelFilename(t *testing.T) {
	name, version, abi, platform, err := distribution.ParseWheelFilename("requests-2.31.0-py3-none-any.whl")
	if err != nil {
		t.Fatalf("ParseWheelFilename: %v", err)
	}

	if name != "requests" || version != "2.31.0" || abi != "none" || platform != "any" {
		t.Errorf("got (%q, %q, %q, %q)", name, version, abi, platform)
	}
}

func TestParseWheelFilenameInvalid(t *testing.T) {
	if _, _, _, _, err := distribution.ParseWheelFilename("not-a-wheel"); err == nil {
		t.Error("expected error for malformed filename")
	}
}

func TestParseWheelTagsExpandsCompressedTags(t *testing.T) {
	tags, err := distribution.ParseWheelTags("foo-1.0-cp39.cp310-abi3-manylinux_2_17_x86_64.whl")
	if err != nil {
		t.Fatalf("ParseWheelTags: %v", err)
	}

	if len(tags) != 2 {
		t.Fatalf("expected 2 expanded tags, got %d: %+v", len(tags), tags)
	}
}

func TestWheelTagMatchesWildcard(t *testing.T) {
	tag := distribution.WheelTag{Python: "py3", ABI: "none", Platform: "any"}
	supported := distribution.WheelTag{Python: "py3", ABI: "cp312", Platform: "manylinux_2_17_x86_64"}

	if !tag.Matches(supported) {
		t.Error("wildcard abi/platform should match any supported tag")
	}
}

func TestBestTagRankPrefersEarlierEntries(t *testing.T) {
	supported := []distribution.WheelTag{
		{Python: "cp312", ABI: "cp312", Platform: "manylinux_2_17_x86_64"},
		{Python: "py3", ABI: "none", Platform: "any"},
	}

	rank := distribution.BestTagRank(distribution.WheelTag{Python: "py3", ABI: "none", Platform: "any"}, supported)
	if rank != 1 {
		t.Errorf("rank = %d, want 1", rank)
	}
}
