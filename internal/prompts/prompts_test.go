package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	s, err := Load()
	require.NoError(t, err)

	sys := s.SystemInstruction(25000)
	assert.Contains(t, sys, "greater than or equal to 25000 INR")
	assert.Contains(t, sys, "####")
	assert.NotContains(t, sys, "{{")

	assert.Contains(t, s.IntentConfirmation(), `{"result": "Yes"}`)
	assert.Contains(t, s.DictionaryPresent(), "python dictionary")
	assert.Contains(t, s.ProductMap("Dell XPS 13, 16GB RAM"), "Laptop description: Dell XPS 13, 16GB RAM")
	assert.NotEmpty(t, s.Recommender())
	assert.Contains(t, s.Greeting("helo"), "Message: 'helo'")
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("::not yaml"))
	require.Error(t, err)

	_, err = Parse([]byte("system_instruction: hi\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intent_confirmation")

	_, err = Parse([]byte(`
system_instruction: "{{.Broken"
intent_confirmation: a
dictionary_present: a
product_map: a
recommender: a
greeting: a
`))
	require.Error(t, err)
}
