// Package metrics turns lifecycle events into Prometheus metrics.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ChamsBouzaiene/stagehand/internal/events"
)

const namespace = "stagehand"

// Renderer records metrics from the events of every session it is attached
// to. It is safe for concurrent use by several dispatchers.
type Renderer struct {
	events.NopRenderer

	runsActive    prometheus.Gauge
	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	modelCalls    *prometheus.CounterVec
	modelDuration *prometheus.HistogramVec
	tokens        *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	toolErrors    *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	stagesBuilt   prometheus.Histogram
	interactions  *prometheus.CounterVec

	mu         sync.Mutex
	modelStart map[string]time.Time
	toolStart  map[string]time.Time
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer to
// expose them on the default /metrics handler.
func New(reg prometheus.Registerer) *Renderer {
	f := promauto.With(reg)
	return &Renderer{
		runsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "runs_active",
			Help: "Number of tasks currently running",
		}),
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_total",
			Help: "Finished tasks by outcome",
		}, []string{"outcome"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "run_duration_seconds",
			Help:    "Wall time of finished tasks",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		modelCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "model_calls_total",
			Help: "Model invocations by graph node",
		}, []string{"node"}),
		modelDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "model_call_duration_seconds",
			Help:    "Duration of model invocations by graph node",
			Buckets: prometheus.DefBuckets,
		}, []string{"node"}),
		tokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tokens_total",
			Help: "Tokens used by direction",
		}, []string{"direction"}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tool_calls_total",
			Help: "Tool calls by tool and envelope outcome",
		}, []string{"tool", "outcome"}),
		toolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "tool_errors_total",
			Help: "Tool calls that raised an error or panicked",
		}, []string{"tool"}),
		toolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tool_call_duration_seconds",
			Help:    "Duration of tool calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		stagesBuilt: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "plan_stages",
			Help:    "Number of stages in each built plan",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
		interactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "interactions_total",
			Help: "Resolved human interactions by kind and status",
		}, []string{"kind", "status"}),
		modelStart: make(map[string]time.Time),
		toolStart:  make(map[string]time.Time),
	}
}

func (r *Renderer) OnTaskStarted(context.Context, events.TaskStarted) {
	r.runsActive.Inc()
}

func (r *Renderer) OnTaskFinished(_ context.Context, p events.TaskFinished) {
	r.runsActive.Dec()
	r.runsTotal.WithLabelValues(string(p.Outcome)).Inc()
	r.runDuration.Observe(p.Duration.Seconds())
}

func (r *Renderer) OnLLMStart(_ context.Context, runID string, p events.ModelStart) {
	r.modelCalls.WithLabelValues(p.Node).Inc()
	r.mark(r.modelStart, runID)
}

func (r *Renderer) OnLLMEnd(_ context.Context, runID string, p events.ModelEnd) {
	if d, ok := r.since(r.modelStart, runID); ok {
		r.modelDuration.WithLabelValues(p.Node).Observe(d.Seconds())
	}
	r.tokens.WithLabelValues("input").Add(float64(p.InputTokens))
	r.tokens.WithLabelValues("output").Add(float64(p.OutputTokens))
}

func (r *Renderer) OnToolStart(_ context.Context, runID, name string, _ map[string]any) {
	r.mark(r.toolStart, runID)
}

func (r *Renderer) OnToolEnd(_ context.Context, runID, name, _ string, success bool, _ string) {
	outcome := "ok"
	if !success {
		outcome = "failed"
	}
	r.toolCalls.WithLabelValues(name, outcome).Inc()
	if d, ok := r.since(r.toolStart, runID); ok {
		r.toolDuration.WithLabelValues(name).Observe(d.Seconds())
	}
}

func (r *Renderer) OnToolError(_ context.Context, _, name string, _ error) {
	r.toolErrors.WithLabelValues(name).Inc()
}

func (r *Renderer) OnStagesBuilt(_ context.Context, p events.StagesBuilt) {
	r.stagesBuilt.Observe(float64(len(p.Names)))
}

func (r *Renderer) OnResolveConfirmation(_ context.Context, res events.InteractionResolution) {
	r.interactions.WithLabelValues(res.Kind, res.Status).Inc()
}

func (r *Renderer) OnResolveUserDecision(_ context.Context, res events.InteractionResolution) {
	r.interactions.WithLabelValues(res.Kind, res.Status).Inc()
}

func (r *Renderer) mark(m map[string]time.Time, id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	m[id] = time.Now()
	r.mu.Unlock()
}

func (r *Renderer) since(m map[string]time.Time, id string) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	start, ok := m[id]
	if !ok {
		return 0, false
	}
	delete(m, id)
	return time.Since(start), true
}
