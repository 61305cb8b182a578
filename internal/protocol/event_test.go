package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeFields(t *testing.T, ev Event) map[string]any {
	t.Helper()
	raw, err := MarshalEvent(ev)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	return fields
}

func TestMarshalEventFlattensBase(t *testing.T) {
	fields := decodeFields(t, NewTaskFinishedEvent("s1", "t1", "completed", "", true, 30, 15, 1500*time.Millisecond))

	assert.Equal(t, "task_finished", fields["type"])
	assert.Equal(t, "s1", fields["session_id"])
	assert.Equal(t, "t1", fields["thread_id"])
	assert.Equal(t, float64(1500), fields["duration_ms"])
	assert.Equal(t, true, fields["task_completed"])
	assert.NotContains(t, fields, "error")
}

func TestToolEventPhases(t *testing.T) {
	start := decodeFields(t, NewToolStartEvent("s1", "c1", "read_file", map[string]any{"path": "a.go"}))
	assert.Equal(t, "start", start["phase"])
	assert.NotContains(t, start, "success")

	end := decodeFields(t, NewToolEndEvent("s1", "c1", "read_file", false, "missing", ""))
	assert.Equal(t, "end", end["phase"])
	assert.Equal(t, false, end["success"])

	failed := decodeFields(t, NewToolErrorEvent("s1", "c1", "read_file", "boom"))
	assert.Equal(t, "error", failed["phase"])
	assert.Equal(t, "boom", failed["error"])
}

func TestThreadsEventNeverNull(t *testing.T) {
	fields := decodeFields(t, NewThreadsEvent(nil))
	assert.Equal(t, []any{}, fields["threads"])
	assert.NotContains(t, fields, "session_id")
}
