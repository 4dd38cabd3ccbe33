// Package textx holds the text helpers shared by the transport and the
// model-output parsers.
package textx

import (
	"strings"
	"unicode/utf8"
)

// SanitizeText drops invalid UTF-8 and control characters other than tab,
// newline and carriage return, trims surrounding whitespace and keeps at
// most maxRunes runes. maxRunes <= 0 disables the cap.
func SanitizeText(s string, maxRunes int) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		if r == utf8.RuneError && size <= 1 {
			continue
		}
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if maxRunes > 0 && utf8.RuneCountInString(out) > maxRunes {
		out = strings.TrimSpace(string([]rune(out)[:maxRunes]))
	}
	return out
}
