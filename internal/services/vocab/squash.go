package vocab

import (
	"strings"
	"unicode"
)

// Squash normalizes s for comparison: lowercased with every whitespace rune
// removed. The dashboard renders the same logical name with case and spacing
// variance, so names are always compared squashed.
func Squash(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

// SquashEqual reports whether a and b are equal after squashing.
func SquashEqual(a, b string) bool {
	return Squash(a) == Squash(b)
}
