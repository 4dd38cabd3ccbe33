package textx_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/laptop-assistant/pkg/textx"
)

func TestSanitizeText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"nul and delete dropped", "he\x00llo\nwo\x7frld\t!", 0, "hello\nworld\t!"},
		{"invalid utf8 dropped", "ok\xff\xfe budget", 0, "ok budget"},
		{"escape sequences dropped", "\x1b[31mgaming\x1b[0m", 0, "[31mgaming[0m"},
		{"surrounding whitespace trimmed", "  \n need a laptop \r\n", 0, "need a laptop"},
		{"multibyte kept", "₹80,000 budget", 0, "₹80,000 budget"},
		{"capped by runes", "ééééé", 3, "ééé"},
		{"cap trims trailing space", "ab   cd", 4, "ab"},
		{"empty", "\x00\x01", 10, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, textx.SanitizeText(tc.in, tc.max))
		})
	}
}

func TestSanitizeText_LongInputStaysValid(t *testing.T) {
	in := strings.Repeat("ü\xff", 100)
	got := textx.SanitizeText(in, 50)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 50, utf8.RuneCountInString(got))
}
