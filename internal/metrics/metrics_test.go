package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/stagehand/internal/events"
)

func TestRendererCountsLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	ctx := context.Background()

	r.OnTaskStarted(ctx, events.TaskStarted{SessionID: "s"})
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsActive))

	r.OnLLMStart(ctx, "m1", events.ModelStart{Node: "build"})
	r.OnLLMEnd(ctx, "m1", events.ModelEnd{Node: "build", InputTokens: 100, OutputTokens: 20})
	r.OnLLMStart(ctx, "m2", events.ModelStart{Node: "reflection"})
	r.OnLLMEnd(ctx, "m2", events.ModelEnd{Node: "reflection", InputTokens: 50, OutputTokens: 5})
	r.OnStagesBuilt(ctx, events.StagesBuilt{Names: []string{"A", "B"}})

	r.OnToolStart(ctx, "t1", "list_files", nil)
	r.OnToolEnd(ctx, "t1", "list_files", "{}", true, "")
	r.OnToolStart(ctx, "t2", "run_cmd", nil)
	r.OnToolError(ctx, "t2", "run_cmd", errors.New("boom"))
	r.OnToolEnd(ctx, "t2", "run_cmd", "{}", false, "")

	r.OnResolveUserDecision(ctx, events.InteractionResolution{Kind: "decision", Status: "timeout"})
	r.OnTaskFinished(ctx, events.TaskFinished{Outcome: events.OutcomeCompleted, Duration: 3 * time.Second})

	assert.Equal(t, 0.0, testutil.ToFloat64(r.runsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.modelCalls.WithLabelValues("build")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.modelCalls.WithLabelValues("reflection")))
	assert.Equal(t, 150.0, testutil.ToFloat64(r.tokens.WithLabelValues("input")))
	assert.Equal(t, 25.0, testutil.ToFloat64(r.tokens.WithLabelValues("output")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.toolCalls.WithLabelValues("list_files", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.toolCalls.WithLabelValues("run_cmd", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.toolErrors.WithLabelValues("run_cmd")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.interactions.WithLabelValues("decision", "timeout")))

	// Start times are released once observed.
	assert.Empty(t, r.modelStart)
	assert.Empty(t, r.toolStart)

	n, err := testutil.GatherAndCount(reg, "stagehand_tool_call_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRendererRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
