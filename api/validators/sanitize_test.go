package validators

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeDisplayName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain name", "Ana", "Ana"},
		{"trims whitespace", "  Ana  ", "Ana"},
		{"strips markup", `<script>alert("x")</script>Ana`, "scriptalert(x)/scriptAna"},
		{"strips quotes and ampersand", `O'Brien & Co`, "OBrien  Co"},
		{"only markup collapses to empty", "<>", ""},
		{"clamps to limit", strings.Repeat("a", 150), strings.Repeat("a", 100)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeDisplayName(tc.input); got != tc.want {
				t.Fatalf("SanitizeDisplayName(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello  ", 0); got != "hello" {
		t.Fatalf("got %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizeStringClampsOnRuneBoundaries(t *testing.T) {
	// Each é is two bytes; a byte-indexed clamp would cut one in half.
	input := strings.Repeat("é", 5)
	got := SanitizeString(input, 3)
	if got != strings.Repeat("é", 3) {
		t.Fatalf("got %q, want %q", got, strings.Repeat("é", 3))
	}
	if !utf8.ValidString(got) {
		t.Fatalf("clamped string is not valid UTF-8: %q", got)
	}

	long := strings.Repeat("ü", 120)
	if clamped := SanitizeDisplayName(long); clamped != strings.Repeat("ü", 100) {
		t.Fatalf("display name clamp = %d runes", len([]rune(clamped)))
	}
}
