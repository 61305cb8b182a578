package prompts

import (
	"fmt"
	"sync"
)

// PromptRegistry manages versioned prompts.
type PromptRegistry struct {
	mu      sync.RWMutex
	prompts map[string]map[PromptVersion]*Prompt // ID -> Version -> Prompt
}

var defaultRegistry *PromptRegistry
var defaultRegistryOnce sync.Once

// DefaultRegistry returns the process-wide registry holding the built-in prompts.
func DefaultRegistry() *PromptRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewPromptRegistry()
		registerBuiltins(defaultRegistry)
	})
	return defaultRegistry
}

// NewPromptRegistry creates an empty prompt registry.
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{
		prompts: make(map[string]map[PromptVersion]*Prompt),
	}
}

// Register registers a prompt in the registry.
func (r *PromptRegistry) Register(p *Prompt) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.prompts[p.ID] == nil {
		r.prompts[p.ID] = make(map[PromptVersion]*Prompt)
	}
	r.prompts[p.ID][p.Version] = p
}

// Get retrieves a specific version of a prompt.
func (r *PromptRegistry) Get(id string, version PromptVersion) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.prompts[id]
	if !ok {
		return nil, fmt.Errorf("prompt not found: %s", id)
	}
	prompt, ok := versions[version]
	if !ok {
		return nil, fmt.Errorf("prompt %s version %s not found", id, version)
	}
	return prompt, nil
}

// GetLatest retrieves the latest non-deprecated version of a prompt, falling
// back to the latest deprecated one.
func (r *PromptRegistry) GetLatest(id string) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.prompts[id]
	if !ok || len(versions) == 0 {
		return nil, fmt.Errorf("prompt not found: %s", id)
	}

	var latest, latestAny *Prompt
	for version, p := range versions {
		if latestAny == nil || version > latestAny.Version {
			latestAny = p
		}
		if !p.Deprecated && (latest == nil || version > latest.Version) {
			latest = p
		}
	}
	if latest == nil {
		latest = latestAny
	}
	return latest, nil
}

// Text returns the latest content of id, or "" when it is not registered.
func (r *PromptRegistry) Text(id string) string {
	p, err := r.GetLatest(id)
	if err != nil {
		return ""
	}
	return p.Content
}
