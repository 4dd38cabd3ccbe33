package textx

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"bare", `{"result":"yes"}`, `{"result":"yes"}`, true},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"prose around", `Here you go: {"a":{"b":2}} thanks`, `{"a":{"b":2}}`, true},
		{"brace in string", `{"a":"}"}`, `{"a":"}"}`, true},
		{"none", `no json here`, "", false},
		{"unbalanced", `{"a":1`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONObject(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRemoveObjects(t *testing.T) {
	in := "Great, here is your profile:\n\n{'GPU intensity': 'high', 'Budget': '80000'}\n\nLet me find laptops."
	assert.Equal(t, "Great, here is your profile:\n\nLet me find laptops.", RemoveObjects(in))
	assert.Equal(t, "I'm happy to help", RemoveObjects("  I'm happy to help "))
}

func TestDropLines(t *testing.T) {
	pats := []*regexp.Regexp{regexp.MustCompile(`(?i)missing required dictionary`)}
	in := "first\nThe MISSING required dictionary was not found\nlast"
	assert.Equal(t, "first\nlast", DropLines(in, pats))
}
