package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinsRegistered(t *testing.T) {
	r := DefaultRegistry()
	for _, id := range []string{IDSystem, IDBuildDirective, IDStageContext, IDProceedDirective, IDProceedEscalation, IDReflection} {
		assert.NotEmpty(t, r.Text(id), id)
	}
	assert.Empty(t, r.Text("missing"))
}

func TestGetLatestSkipsDeprecated(t *testing.T) {
	r := NewPromptRegistry()
	r.Register(&Prompt{ID: "p", Version: "1.0.0", Content: "v1"})
	r.Register(&Prompt{ID: "p", Version: "1.1.0", Content: "v1.1", Deprecated: true})
	r.Register(nil)

	p, err := r.GetLatest("p")
	require.NoError(t, err)
	assert.Equal(t, "v1", p.Content)

	_, err = r.Get("p", "2.0.0")
	assert.Error(t, err)
	_, err = r.GetLatest("nope")
	assert.Error(t, err)

	only := NewPromptRegistry()
	only.Register(&Prompt{ID: "old", Version: "1.0.0", Content: "legacy", Deprecated: true})
	p, err = only.GetLatest("old")
	require.NoError(t, err)
	assert.Equal(t, "legacy", p.Content)
}

func TestBuilder(t *testing.T) {
	got := FromText("Stage {{index}}/{{total}}").
		AddFragment("   ").
		AddFragment("Name: {{name}}").
		SetVariable("index", "2").
		SetVariable("total", "3").
		SetVariable("name", "Fix").
		Build()
	assert.Equal(t, "Stage 2/3\n\nName: Fix", got)

	b, err := NewPromptBuilder(DefaultRegistry(), IDStageContext)
	require.NoError(t, err)
	assert.Contains(t, b.SetVariable("name", "Deploy").Build(), "Deploy")

	_, err = NewPromptBuilder(NewPromptRegistry(), IDSystem)
	assert.Error(t, err)
}
