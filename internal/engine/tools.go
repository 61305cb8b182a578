package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// ToolFunc runs a tool and returns its envelope. A returned error is turned
// into a failed envelope by the tools node.
type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

type Tool struct {
	Name        string
	Description string
	SchemaJSON  string
	Fn          ToolFunc
	Category    string // e.g. "filesystem", "execution", "plan", "progress"
}

// Categories of the reserved tools. CategoryProgress holds the two tools the
// proceed node may choose from.
const (
	CategoryPlan     = "plan"
	CategoryProgress = "progress"
)

// ValidateArgs validates the provided arguments against the tool's JSON schema.
func (t Tool) ValidateArgs(args map[string]any) error {
	if t.SchemaJSON == "" {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	schemaLoader := gojsonschema.NewStringLoader(t.SchemaJSON)
	documentLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		var errorMsgs []string
		for _, err := range result.Errors() {
			errorMsgs = append(errorMsgs, err.String())
		}
		return &ToolValidationError{
			ToolName: t.Name,
			Errors:   errorMsgs,
		}
	}
	return nil
}

// Schema returns the provider-facing schema of t.
func (t Tool) Schema() ToolSchema {
	return ToolSchema{Name: t.Name, Description: t.Description, JSONSchema: t.SchemaJSON}
}

// ToolRegistry maps tool names to tools. It is built once at startup and only
// read afterwards.
type ToolRegistry map[string]Tool

// Register adds t, replacing any tool with the same name.
func (r ToolRegistry) Register(t Tool) {
	r[t.Name] = t
}

// Names returns the registered tool names in sorted order.
func (r ToolRegistry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns every schema, sorted by name so prompts are stable.
func (r ToolRegistry) Schemas() []ToolSchema {
	s := make([]ToolSchema, 0, len(r))
	for _, name := range r.Names() {
		s = append(s, r[name].Schema())
	}
	return s
}

// FilterByCategory returns a new registry containing only tools of the given category.
func (r ToolRegistry) FilterByCategory(category string) ToolRegistry {
	filtered := make(ToolRegistry)
	for name, tool := range r {
		if tool.Category == category {
			filtered[name] = tool
		}
	}
	return filtered
}
