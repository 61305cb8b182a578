package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ChamsBouzaiene/stagehand/internal/events"
	"github.com/ChamsBouzaiene/stagehand/internal/stages"
	"github.com/ChamsBouzaiene/stagehand/internal/toolresponse"
)

type toolCallKey struct{}

// WithToolCall returns ctx carrying the call being executed.
func WithToolCall(ctx context.Context, call ToolCall) context.Context {
	return context.WithValue(ctx, toolCallKey{}, call)
}

// ToolCallFromContext returns the call a tool is executing for, if any.
func ToolCallFromContext(ctx context.Context) (ToolCall, bool) {
	c, ok := ctx.Value(toolCallKey{}).(ToolCall)
	return c, ok
}

// callResult is the outcome of one tool call.
type callResult struct {
	call ToolCall
	resp toolresponse.Response
	err  error // raised error or recovered panic, reported as tool-error
}

// toolsNode runs every call of the latest assistant turn concurrently, then
// applies plan tools in call order.
func (r *run) toolsNode(ctx context.Context) (Update, error) {
	last, ok := r.st.LastAssistant()
	if !ok || len(last.ToolCalls) == 0 {
		return Update{}, nil
	}

	results := r.g.executeToolCalls(ctx, last.ToolCalls)

	u := Update{Stats: Stats{ToolCallCounts: make(map[string]int, len(results))}}
	plan := r.st.Plan()
	planChanged, completed := false, false

	for i := range results {
		res := &results[i]
		if IsPlanTool(res.call.Name) {
			if res.resp.Success {
				changed, done := r.applyPlanCall(ctx, res, &plan)
				planChanged = planChanged || changed
				completed = completed || done
			}
			r.g.emitToolEnd(ctx, res)
		}

		u.Stats.ToolCallCounts[res.call.Name]++
		if !res.resp.Success {
			u.Stats.Failures++
			u.Stats.FailuresSinceLastReflection++
		}
		u.Messages = append(u.Messages, ChatMessage{
			Role:       RoleTool,
			Content:    res.resp.String(),
			ToolCallID: res.call.ID,
			ToolName:   res.call.Name,
		})
	}

	if planChanged {
		u.Plan = &plan
	}
	if completed {
		u.TaskCompleted = &completed
	}

	r.g.logger.Debug().Int("calls", len(results)).Int("failures", u.Stats.Failures).
		Bool("plan_changed", planChanged).Bool("completed", completed).Msg("tools done")
	return u, nil
}

// executeToolCalls runs calls concurrently and returns results in call order.
// A failing or panicking call never affects its siblings.
func (g *Graph) executeToolCalls(ctx context.Context, calls []ToolCall) []callResult {
	results := make([]callResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, c ToolCall) {
			defer wg.Done()
			results[i] = g.executeToolCall(ctx, c)
		}(i, call)
	}
	wg.Wait()
	return results
}

func (g *Graph) executeToolCall(ctx context.Context, c ToolCall) (res callResult) {
	res.call = c
	g.emit.Dispatch(ctx, events.Event{
		Kind: events.KindToolStart, Name: c.Name, RunID: c.ID,
		Payload: events.ToolStart{Args: c.Args},
	})

	var output string
	defer func() {
		if p := recover(); p != nil {
			res.err = fmt.Errorf("panic in tool %s: %v", c.Name, p)
		}
		if res.err != nil {
			output = toolresponse.FromError(res.err)
			g.emit.Dispatch(ctx, events.Event{
				Kind: events.KindToolError, Name: c.Name, RunID: c.ID,
				Payload: events.ToolError{Err: res.err},
			})
		}
		res.resp = toolresponse.Parse(output)
		// Plan tools report their end once the tracker has run.
		if !IsPlanTool(c.Name) {
			g.emitToolEnd(ctx, &res)
		}
	}()

	output, res.err = g.invokeTool(WithToolCall(ctx, c), c)
	return res
}

func (g *Graph) invokeTool(ctx context.Context, c ToolCall) (string, error) {
	if c.Error != "" {
		return toolresponse.Failf("Error: malformed call to %s: %s", c.Name, c.Error), nil
	}
	t, ok := g.lookupTool(c.Name)
	if !ok {
		return toolresponse.Failf("Tool not found: %s", c.Name), nil
	}
	if err := t.ValidateArgs(c.Args); err != nil {
		return toolresponse.FromError(err), nil
	}
	if t.Fn == nil {
		return toolresponse.Failf("Tool %s has no implementation", c.Name), nil
	}
	return t.Fn(ctx, c.Args)
}

// lookupTool checks the registry first, then the built-in plan tools.
func (g *Graph) lookupTool(name string) (Tool, bool) {
	if t, ok := g.tools[name]; ok {
		return t, true
	}
	return builtinPlanTool(name)
}

// progressTools are the registered progress tools, with the built-in ones
// filling any gap.
func (g *Graph) progressTools() ToolRegistry {
	all := ToolRegistry{}
	for _, t := range PlanTools() {
		all.Register(t)
	}
	for _, t := range g.tools {
		all.Register(t)
	}
	return all.FilterByCategory(CategoryProgress)
}

func builtinPlanTool(name string) (Tool, bool) {
	if name == ToolBuildStages {
		return BuildStagesTool(), true
	}
	for _, t := range PlanTools() {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

func (g *Graph) emitToolEnd(ctx context.Context, res *callResult) {
	g.emit.Dispatch(ctx, events.Event{
		Kind: events.KindToolEnd, Name: res.call.Name, RunID: res.call.ID,
		Payload: events.ToolEnd{Output: res.resp.String(), Success: res.resp.Success, Summary: res.resp.Message},
	})
}

// applyPlanCall routes a successful plan tool call through the stage tracker.
// A tracker rejection turns the call's envelope into a failure.
func (r *run) applyPlanCall(ctx context.Context, res *callResult, plan *Plan) (changed, completed bool) {
	fail := func(msg string) {
		res.resp = toolresponse.Response{Success: false, Message: msg}
	}

	switch res.call.Name {
	case ToolBuildStages:
		raw, err := stringsArg(res.call.Args, "stage_names")
		if err != nil {
			fail("Error: " + err.Error())
			return false, false
		}
		names, total := stages.Build(raw)
		*plan = Plan{Current: 0, Total: total, Names: names}
		if total == 0 {
			fail("Plan is empty: call build_stages with at least one stage name")
			return true, false
		}
		res.resp = toolresponse.Response{
			Success: true,
			Message: fmt.Sprintf("Plan created with %d stages. Now on stage 1/%d: %s", total, total, names[0]),
			Data:    map[string]any{"stage_names": names, "total_stages": total},
		}
		r.emitPlan(ctx, events.KindStagesBuilt, events.StagesBuilt{Names: names})
		r.emitStageStarted(ctx, *plan)
		return true, false

	case ToolEndCurrentStage:
		n, err := intArg(res.call.Args, "stage_count", 1)
		if err != nil {
			fail("Error: " + err.Error())
			return false, false
		}
		if plan.Total == 0 {
			fail("No plan exists: call build_stages first")
			return false, false
		}
		adv, err := stages.AdvanceStage(n, plan.Current, plan.Total, plan.Names)
		if err != nil {
			fail("Error: " + err.Error())
			return false, false
		}
		finished := adv.Completed(plan.Names)
		plan.Current = adv.Current

		var msg strings.Builder
		if len(finished) > 0 {
			fmt.Fprintf(&msg, "Completed: %s. ", strings.Join(finished, ", "))
		} else {
			msg.WriteString("No stages ended. ")
		}
		if adv.Current >= plan.Total {
			msg.WriteString("All stages complete. Call finish_task when the task is done.")
		} else {
			fmt.Fprintf(&msg, "Now on stage %d/%d: %s", adv.Current+1, plan.Total, adv.NextStage)
		}
		res.resp = toolresponse.Response{
			Success: true,
			Message: msg.String(),
			Data:    map[string]any{"current_stage": adv.Current, "total_stages": plan.Total, "done": adv.Done},
		}

		if len(finished) == 0 {
			return false, false
		}
		r.emitPlan(ctx, events.KindStagesCompleted, events.StagesCompleted{
			From: adv.CompletedFrom, To: adv.CompletedTo, Names: finished, Done: adv.Done,
		})
		if !adv.Done {
			r.emitStageStarted(ctx, *plan)
		}
		return true, false

	case ToolEditStages:
		raw, err := stringsArg(res.call.Args, "new_stages")
		if err != nil {
			fail("Error: " + err.Error())
			return false, false
		}
		names, total, err := stages.Edit(raw, plan.Current, plan.Names)
		if err != nil {
			fail("Error: " + err.Error())
			return false, false
		}
		plan.Names, plan.Total = names, total
		plan.Current = min(plan.Current, total)
		res.resp = toolresponse.Response{
			Success: true,
			Message: fmt.Sprintf("Plan revised. Now on stage %d/%d: %s", plan.Current+1, total,
				stages.Label(plan.Current, total, names)),
			Data: map[string]any{"stage_names": names, "total_stages": total, "current_stage": plan.Current},
		}
		r.emitPlan(ctx, events.KindStagesEdited, events.StagesEdited{Names: names, Current: plan.Current, Total: total})
		r.emitStageStarted(ctx, *plan)
		return true, false

	case ToolFinishTask:
		return false, true
	}
	return false, false
}

func (r *run) emitPlan(ctx context.Context, kind events.Kind, payload any) {
	r.g.emit.Dispatch(ctx, events.Event{Kind: kind, Payload: payload})
}

func (r *run) emitStageStarted(ctx context.Context, p Plan) {
	if p.Current >= p.Total {
		return
	}
	r.emitPlan(ctx, events.KindStageStarted, events.StageStarted{
		Index: p.Current, Name: stages.Label(p.Current, p.Total, p.Names), Total: p.Total,
	})
}
