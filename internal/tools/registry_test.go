package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry(DefaultSet())
	assert.Equal(t, []string{
		"ask_user", "edit_stages", "end_current_stage", "finish_task",
		"list_files", "read_file", "request_handoff", "run_cmd", "search_files", "write_file",
	}, reg.Names())

	for _, s := range reg.Schemas() {
		assert.NotEmpty(t, s.Description, s.Name)
	}

	planOnly := NewRegistry(Set{})
	assert.Equal(t, []string{"edit_stages", "end_current_stage", "finish_task"}, planOnly.Names())
}
