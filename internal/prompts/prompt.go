// Package prompts holds the versioned prompt texts the control loop sends to
// the model, and a small builder for filling their {{variables}}.
package prompts

// PromptVersion represents a version identifier for prompts.
type PromptVersion string

const (
	PromptV1 PromptVersion = "1.0.0"
)

// Prompt represents a versioned prompt with metadata.
type Prompt struct {
	ID          string
	Version     PromptVersion
	Content     string
	Description string
	Deprecated  bool
}

// Prompt IDs used by the engine.
const (
	IDSystem            = "system"
	IDBuildDirective    = "build_directive"
	IDStageContext      = "stage_context"
	IDProceedDirective  = "proceed_directive"
	IDProceedEscalation = "proceed_escalation"
	IDReflection        = "reflection"
)
