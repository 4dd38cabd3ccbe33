package textx

import (
	"regexp"
	"strings"
)

// StripCodeFence removes a surrounding ```json ... ``` block if present.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 && !strings.ContainsAny(s[:i], "{[") {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ObjectSpans returns the byte ranges of top-level {...} spans in s.
// Quoted strings (single or double) are skipped so braces inside values do
// not unbalance the scan.
func ObjectSpans(s string) [][2]int {
	var spans [][2]int
	depth, start := 0, -1
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				quote = c
			}
		case '\'':
			// apostrophes in prose are not quotes
			if depth > 0 {
				quote = c
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				spans = append(spans, [2]int{start, i + 1})
				start = -1
			}
		}
	}
	return spans
}

// ExtractJSONObject returns the first balanced {...} object in s after
// stripping code fences. ok is false when there is none.
func ExtractJSONObject(s string) (string, bool) {
	s = StripCodeFence(s)
	spans := ObjectSpans(s)
	if len(spans) == 0 {
		return "", false
	}
	return s[spans[0][0]:spans[0][1]], true
}

// RemoveObjects deletes every top-level {...} span from s and tidies the
// whitespace left behind.
func RemoveObjects(s string) string {
	spans := ObjectSpans(s)
	if len(spans) == 0 {
		return strings.TrimSpace(s)
	}
	var b strings.Builder
	prev := 0
	for _, sp := range spans {
		b.WriteString(s[prev:sp[0]])
		prev = sp[1]
	}
	b.WriteString(s[prev:])
	return strings.TrimSpace(blankLines.ReplaceAllString(b.String(), "\n\n"))
}

var blankLines = regexp.MustCompile(`\n[ \t]*(\n[ \t]*)+`)

// DropLines removes every line matching any of patterns and trims the result.
func DropLines(s string, patterns []*regexp.Regexp) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		drop := false
		for _, p := range patterns {
			if p.MatchString(line) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
