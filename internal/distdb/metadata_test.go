package distdb

import "testing"

func TestParseMetadataBasicFields(t *testing.T) {
	raw := []byte("Metadata-Version: 2.1\n" +
		"Name: requests\n" +
		"Version: 2.31.0\n" +
		"Requires-Python: >=3.7\n" +
		"Requires-Dist: charset-normalizer<4,>=2\n" +
		"Requires-Dist: idna<4,>=2.5\n" +
		"Requires-Dist: PySocks!=1.5.7,>=1.5.6; extra == \"socks\"\n" +
		"Provides-Extra: socks\n" +
		"\n" +
		"This is the long description body.\nIt has multiple lines.\n")

	md, err := parseMetadata(raw)
	if err != nil {
		t.Fatalf("parseMetadata: %v", err)
	}

	if md.Name != "requests" {
		t.Errorf("Name = %q, want requests", md.Name)
	}

	if md.Version != "2.31.0" {
		t.Errorf("Version = %q, want 2.31.0", md.Version)
	}

	if md.RequiresPython != ">=3.7" {
		t.Errorf("RequiresPython = %q, want >=3.7", md.RequiresPython)
	}

	if len(md.RequiresDist) != 3 {
		t.Fatalf("RequiresDist = %v, want 3 entries", md.RequiresDist)
	}

	if !md.Provides["socks"] {
		t.Error("expected socks extra to be recorded")
	}
}

func TestParseMetadataFoldsContinuationLines(t *testing.T) {
	raw := []byte("Name: demo\n" +
		"Version: 1.0\n" +
		"Description: first line\n" +
		" continued line\n" +
		"Requires-Dist: six\n" +
		"\n")

	md, err := parseMetadata(raw)
	if err != nil {
		t.Fatalf("parseMetadata: %v", err)
	}

	if len(md.RequiresDist) != 1 || md.RequiresDist[0] != "six" {
		t.Errorf("RequiresDist = %v, want [six]", md.RequiresDist)
	}
}

func TestParseMetadataMissingNameErrors(t *testing.T) {
	_, err := parseMetadata([]byte("Version: 1.0\n\n"))
	if err == nil {
		t.Fatal("expected error for metadata missing Name")
	}
}
