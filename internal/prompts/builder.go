package prompts

import (
	"fmt"
	"strings"
)

// PromptBuilder composes a prompt from fragments and {{key}} variables.
type PromptBuilder struct {
	fragments []string
	variables map[string]string
}

// NewPromptBuilder starts from the latest version of a registered prompt.
func NewPromptBuilder(registry *PromptRegistry, id string) (*PromptBuilder, error) {
	base, err := registry.GetLatest(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get base prompt: %w", err)
	}
	return FromText(base.Content), nil
}

// FromText starts a builder from literal text.
func FromText(text string) *PromptBuilder {
	return &PromptBuilder{
		fragments: []string{text},
		variables: make(map[string]string),
	}
}

// AddFragment appends a fragment to the prompt. Empty fragments are skipped.
func (b *PromptBuilder) AddFragment(text string) *PromptBuilder {
	if strings.TrimSpace(text) != "" {
		b.fragments = append(b.fragments, text)
	}
	return b
}

// SetVariable sets a variable for template substitution.
func (b *PromptBuilder) SetVariable(key, value string) *PromptBuilder {
	b.variables[key] = value
	return b
}

// Build joins the fragments and substitutes variables.
func (b *PromptBuilder) Build() string {
	result := strings.Join(b.fragments, "\n\n")
	for key, value := range b.variables {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}
