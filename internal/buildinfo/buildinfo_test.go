package buildinfo

import "testing"

func TestShortAndLong(t *testing.T) {
	defer func(v, c, d string) { Version, Commit, Date = v, c, d }(Version, Commit, Date)

	Version, Commit, Date = "dev", "unknown", "unknown"
	if got := Short(); got != "dev" {
		t.Fatalf("Short = %q", got)
	}

	Commit = "abc123"
	if got := Long(); got != "abc123" {
		t.Fatalf("Long = %q", got)
	}

	Version, Date = "v0.3.0", "2026-10-19"
	if got := Long(); got != "v0.3.0 (abc123) built 2026-10-19" {
		t.Fatalf("Long = %q", got)
	}
}
