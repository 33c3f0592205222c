package validators

import "strings"

const maxDisplayNameLength = 100

// htmlMetaReplacer strips the characters that would let a display name break
// out of markup when rendered by a naive client.
var htmlMetaReplacer = strings.NewReplacer(
	"<", "",
	">", "",
	"&", "",
	`"`, "",
	"'", "",
)

// SanitizeString trims whitespace and clamps to maxLen runes. Clamping on
// rune boundaries keeps a multi-byte name valid UTF-8 after truncation.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen <= 0 {
		return trimmed
	}
	seen := 0
	for i := range trimmed {
		if seen == maxLen {
			return trimmed[:i]
		}
		seen++
	}
	return trimmed
}

// SanitizeDisplayName strips markup metacharacters and clamps the name to
// the display limit. Returns an empty string when nothing printable remains;
// callers treat that as a validation failure.
func SanitizeDisplayName(input string) string {
	cleaned := htmlMetaReplacer.Replace(input)
	return SanitizeString(cleaned, maxDisplayNameLength)
}
