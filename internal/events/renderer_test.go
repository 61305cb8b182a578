package events

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type startCountingRenderer struct {
	NopRenderer
	started int
}

func (c *startCountingRenderer) OnTaskStarted(context.Context, TaskStarted) { c.started++ }

func TestMultiRendererFansOut(t *testing.T) {
	a, b := &startCountingRenderer{}, &startCountingRenderer{}
	var r Renderer = MultiRenderer{a, NopRenderer{}, b}

	r.OnTaskStarted(context.Background(), TaskStarted{Task: "x"})
	r.OnTaskFinished(context.Background(), TaskFinished{})

	assert.Equal(t, 1, a.started)
	assert.Equal(t, 1, b.started)
}

func TestTerminalRendererTranscript(t *testing.T) {
	var out bytes.Buffer
	prompts := make(chan InteractionRequest, 1)
	r := &TerminalRenderer{W: &out, Prompts: prompts}
	ctx := context.Background()

	r.OnTaskStarted(ctx, TaskStarted{Task: "fix the build"})
	r.OnStagesBuilt(ctx, StagesBuilt{Names: []string{"Read", "Fix"}})
	r.OnStageStarted(ctx, StageStarted{Index: 0, Name: "Read", Total: 2})
	r.OnToolStart(ctx, "c1", "read_file", map[string]any{"path": "main.go"})
	r.OnToolEnd(ctx, "c1", "read_file", "", false, "not found")
	r.OnRequestUserDecision(ctx, InteractionRequest{RequestID: "r1", Prompt: "Which file?", Timeout: time.Minute})
	r.OnRequestUserDecision(ctx, InteractionRequest{RequestID: "r2", Prompt: "Dropped"})
	r.OnTaskFinished(ctx, TaskFinished{Outcome: OutcomeFailed, Error: "quota"})

	text := out.String()
	for _, want := range []string{"fix the build", "1. Read", "2. Fix", "Stage 1/2: Read", "read_file path=main.go", "not found", "Which file?", "quota"} {
		assert.Contains(t, text, want)
	}

	require.Len(t, prompts, 1)
	assert.Equal(t, "r1", (<-prompts).RequestID)
}

func TestLogRendererLevels(t *testing.T) {
	var buf bytes.Buffer
	r := LogRenderer{L: zerolog.New(&buf).Level(zerolog.InfoLevel)}
	ctx := context.Background()

	r.OnLLMChunk(ctx, "m1", "hidden", "")
	r.OnToolError(ctx, "c1", "run_cmd", errors.New("exit 2"))
	r.OnTaskFinished(ctx, TaskFinished{SessionID: "s1", Outcome: OutcomeFailed, Error: "boom"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"level":"warn"`)
	assert.Contains(t, lines[0], "exit 2")
	assert.Contains(t, lines[1], `"level":"error"`)
	assert.Contains(t, lines[1], `"outcome":"failed"`)
	assert.NotContains(t, buf.String(), "hidden")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "abc", preview("abc", 5))
	assert.Equal(t, "ab...", preview("abcdef", 2))
}
