package semver

import (
	"reflect"
	"testing"
)

func makeVersions() []string {
	return []string{"3.4.2", "3.3.0", "3.2.1", "2.1.0", "2.0.0", "1.0.0", "3.5.0-alpha.1", "not-a-version"}
}

func TestResolveVersion(t *testing.T) {
	tests := []struct {
		name     string
		versions []string
		rangeStr string
		want     string
	}{
		{"no range picks latest stable", makeVersions(), "", "3.4.2"},
		{"no range falls back to prerelease", []string{"1.0.0-rc.1", "1.0.0-beta.2"}, "", "1.0.0-rc.1"},
		{"major only", makeVersions(), "2", "2.1.0"},
		{"major only no match", makeVersions(), "99", ""},
		{"caret", makeVersions(), "^2.0.0", "2.1.0"},
		{"comparison", makeVersions(), ">=3.0.0 <3.4.0", "3.3.0"},
		{"exact", makeVersions(), "3.2.1", "3.2.1"},
		{"exact missing", makeVersions(), "3.2.9", ""},
		{"empty list", nil, "", ""},
		{"only garbage", []string{"latest"}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveVersion(tt.versions, tt.rangeStr); got != tt.want {
				t.Errorf("ResolveVersion(%v, %q) = %q, want %q", tt.versions, tt.rangeStr, got, tt.want)
			}
		})
	}
}

func TestLatest(t *testing.T) {
	if got := Latest(makeVersions()); got != "3.4.2" {
		t.Errorf("Latest() = %q, want 3.4.2", got)
	}
}

func TestIsNewer(t *testing.T) {
	tests := []struct {
		candidate string
		installed string
		want      bool
	}{
		{"1.1.0", "1.0.0", true},
		{"1.0.0", "1.0.0", false},
		{"1.0.0", "1.1.0", false},
		{"2.0.0", "2.0.0-rc.1", true},
		{"2.0.0-rc.1", "1.9.9", true},
		{"garbage", "1.0.0", false},
		{"1.0.0", "", false},
	}

	for _, tt := range tests {
		if got := IsNewer(tt.candidate, tt.installed); got != tt.want {
			t.Errorf("IsNewer(%q, %q) = %v, want %v", tt.candidate, tt.installed, got, tt.want)
		}
	}
}

func TestSatisfiesRange(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		rangeStr string
		want     bool
	}{
		{"major-only match", "3.4.2", "3", true},
		{"major-only no match", "3.4.2", "2", false},
		{"caret match", "3.4.2", "^3.2.0", true},
		{"caret no match", "2.1.0", "^3.2.0", false},
		{"exact match", "3.4.2", "3.4.2", true},
		{"exact no match", "3.4.2", "3.4.1", false},
		{"bad version", "x", "^1.0.0", false},
		{"bad range", "1.0.0", "^^", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SatisfiesRange(tt.version, tt.rangeStr)
			if got != tt.want {
				t.Errorf("SatisfiesRange(%q, %q) = %v, want %v", tt.version, tt.rangeStr, got, tt.want)
			}
		})
	}
}

func TestSortDesc(t *testing.T) {
	got := SortDesc([]string{"1.0.0", "not", "2.0.0", "1.10.0", "1.2.0"})
	want := []string{"2.0.0", "1.10.0", "1.2.0", "1.0.0"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortDesc() = %v, want %v", got, want)
	}
}

func TestValid(t *testing.T) {
	if !Valid("1.2.3") || Valid("one") {
		t.Errorf("Valid() misclassified input")
	}
}
