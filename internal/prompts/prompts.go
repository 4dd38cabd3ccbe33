// Package prompts loads the embedded prompt catalogue used by the assistant.
package prompts

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var catalogueYAML []byte

type catalogue struct {
	Delimiter          string `yaml:"delimiter"`
	SystemInstruction  string `yaml:"system_instruction"`
	IntentConfirmation string `yaml:"intent_confirmation"`
	DictionaryPresent  string `yaml:"dictionary_present"`
	ProductMap         string `yaml:"product_map"`
	Recommender        string `yaml:"recommender"`
	Greeting           string `yaml:"greeting"`
}

// Set holds parsed prompt templates.
type Set struct {
	delimiter          string
	systemInstruction  *template.Template
	intentConfirmation *template.Template
	dictionaryPresent  *template.Template
	productMap         *template.Template
	recommender        *template.Template
	greeting           *template.Template
}

// Load parses the embedded catalogue.
func Load() (*Set, error) { return Parse(catalogueYAML) }

// MustLoad is Load for package initialisation and tests.
func MustLoad() *Set {
	s, err := Load()
	if err != nil {
		panic(err)
	}
	return s
}

// Parse builds a Set from a YAML catalogue. Every prompt must be non-empty.
func Parse(b []byte) (*Set, error) {
	var c catalogue
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("op=prompts.Parse: %w", err)
	}
	s := &Set{delimiter: c.Delimiter}
	for _, p := range []struct {
		name string
		text string
		dst  **template.Template
	}{
		{"system_instruction", c.SystemInstruction, &s.systemInstruction},
		{"intent_confirmation", c.IntentConfirmation, &s.intentConfirmation},
		{"dictionary_present", c.DictionaryPresent, &s.dictionaryPresent},
		{"product_map", c.ProductMap, &s.productMap},
		{"recommender", c.Recommender, &s.recommender},
		{"greeting", c.Greeting, &s.greeting},
	} {
		if strings.TrimSpace(p.text) == "" {
			return nil, fmt.Errorf("op=prompts.Parse: prompt %q is empty", p.name)
		}
		t, err := template.New(p.name).Option("missingkey=error").Parse(p.text)
		if err != nil {
			return nil, fmt.Errorf("op=prompts.Parse: %s: %w", p.name, err)
		}
		*p.dst = t
	}
	return s, nil
}

func (s *Set) render(t *template.Template, data map[string]any) string {
	if data == nil {
		data = map[string]any{}
	}
	data["Delimiter"] = s.delimiter
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		// templates are validated at load; a failure here is a programming error
		panic(fmt.Sprintf("prompts: render %s: %v", t.Name(), err))
	}
	return strings.TrimSpace(b.String())
}

// SystemInstruction is the conversation's first message.
func (s *Set) SystemInstruction(minBudget int64) string {
	return s.render(s.systemInstruction, map[string]any{"MinBudget": minBudget})
}

// IntentConfirmation is the system prompt for the intent confirmation check.
func (s *Set) IntentConfirmation() string { return s.render(s.intentConfirmation, nil) }

// DictionaryPresent is the system prompt for profile extraction.
func (s *Set) DictionaryPresent() string { return s.render(s.dictionaryPresent, nil) }

// ProductMap renders the mapping prompt for one description.
func (s *Set) ProductMap(description string) string {
	return s.render(s.productMap, map[string]any{"Description": description})
}

// Recommender is the system prompt for recommendation prose.
func (s *Set) Recommender() string { return s.render(s.recommender, nil) }

// Greeting renders the greeting classification prompt.
func (s *Set) Greeting(message string) string {
	return s.render(s.greeting, map[string]any{"Message": message})
}
