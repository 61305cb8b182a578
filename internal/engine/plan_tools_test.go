package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntArg(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]any
		want    int
		wantErr bool
	}{
		{"missing uses default", map[string]any{}, 1, false},
		{"null uses default", map[string]any{"stage_count": nil}, 1, false},
		{"json number", map[string]any{"stage_count": float64(-1)}, -1, false},
		{"go int", map[string]any{"stage_count": 2}, 2, false},
		{"fraction", map[string]any{"stage_count": 1.5}, 0, true},
		{"string", map[string]any{"stage_count": "2"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := intArg(tt.args, "stage_count", 1)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStringsArg(t *testing.T) {
	got, err := stringsArg(map[string]any{"stage_names": []any{" Read ", "", "Write"}}, "stage_names")
	require.NoError(t, err)
	assert.Equal(t, []string{"Read", "Write"}, got)

	_, err = stringsArg(map[string]any{"stage_names": []any{"a", 3}}, "stage_names")
	assert.Error(t, err)

	_, err = stringsArg(map[string]any{}, "stage_names")
	assert.Error(t, err)
}

func TestBuiltinPlanToolsValidate(t *testing.T) {
	for _, name := range []string{ToolBuildStages, ToolEndCurrentStage, ToolEditStages, ToolFinishTask} {
		tool, ok := builtinPlanTool(name)
		require.True(t, ok, name)
		assert.True(t, IsPlanTool(name))
		assert.NotEmpty(t, tool.Description)
	}
	_, ok := builtinPlanTool("read_file")
	assert.False(t, ok)

	tool, _ := builtinPlanTool(ToolEndCurrentStage)
	assert.NoError(t, tool.ValidateArgs(map[string]any{"stage_count": -1}))
	assert.Error(t, tool.ValidateArgs(map[string]any{"stage_count": -2}))
}

func TestProgressToolsComeFromCategory(t *testing.T) {
	reg := ToolRegistry{}
	reg.Register(staticTool("list_files", "{}"))
	assert.Empty(t, reg.FilterByCategory(CategoryProgress))

	g := NewGraph(&scriptedLLM{}, "m", reg, testConfig())
	assert.ElementsMatch(t, []string{ToolEditStages, ToolEndCurrentStage}, g.progressTools().Names())

	custom := Tool{Name: ToolEndCurrentStage, Description: "custom", Category: CategoryProgress}
	reg.Register(custom)
	g = NewGraph(&scriptedLLM{}, "m", reg, testConfig())
	progress := g.progressTools()
	require.Len(t, progress, 2)
	assert.Equal(t, "custom", progress[ToolEndCurrentStage].Description)
	assert.NotContains(t, progress, ToolFinishTask)
}
