package engine

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ChamsBouzaiene/stagehand/internal/toolresponse"
)

// Reserved tool names with meaning to the control loop.
const (
	ToolBuildStages     = "build_stages"
	ToolEndCurrentStage = "end_current_stage"
	ToolEditStages      = "edit_stages"
	ToolFinishTask      = "finish_task"
)

// IsPlanTool reports whether name is one of the reserved plan tools.
func IsPlanTool(name string) bool {
	switch name {
	case ToolBuildStages, ToolEndCurrentStage, ToolEditStages, ToolFinishTask:
		return true
	}
	return false
}

// BuildStagesTool is the built-in planner tool. It is offered alone by the
// build node and is found even when the registry does not carry it.
func BuildStagesTool() Tool {
	return Tool{
		Name:        ToolBuildStages,
		Description: "Create the plan for the latest user request as an ordered list of short stage names. Replaces any previous plan.",
		SchemaJSON: `{
  "type": "object",
  "properties": {
    "stage_names": {"type": "array", "items": {"type": "string"}, "description": "Ordered stage names"}
  },
  "required": ["stage_names"]
}`,
		Fn: func(_ context.Context, args map[string]any) (string, error) {
			names, err := stringsArg(args, "stage_names")
			if err != nil {
				return "", err
			}
			return toolresponse.OK(fmt.Sprintf("Plan received with %d stages", len(names)), nil), nil
		},
		Category: CategoryPlan,
	}
}

// PlanTools returns end_current_stage, edit_stages and finish_task. Register
// them alongside the capability tools so the model and proceed nodes can see them.
func PlanTools() []Tool {
	return []Tool{
		{
			Name:        ToolEndCurrentStage,
			Description: "Mark the current stage as done. stage_count=1 (default) ends one stage, N ends N stages, -1 ends every remaining stage.",
			SchemaJSON: `{
  "type": "object",
  "properties": {
    "stage_count": {"type": "integer", "minimum": -1, "default": 1}
  }
}`,
			Fn: func(_ context.Context, args map[string]any) (string, error) {
				n, err := intArg(args, "stage_count", 1)
				if err != nil {
					return "", err
				}
				return toolresponse.OK(fmt.Sprintf("Ending %d stage(s)", n), nil), nil
			},
			Category: CategoryProgress,
		},
		{
			Name:        ToolEditStages,
			Description: "Replace the current and all remaining stages with new_stages. Completed stages are kept.",
			SchemaJSON: `{
  "type": "object",
  "properties": {
    "new_stages": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["new_stages"]
}`,
			Fn: func(_ context.Context, args map[string]any) (string, error) {
				names, err := stringsArg(args, "new_stages")
				if err != nil {
					return "", err
				}
				return toolresponse.OK(fmt.Sprintf("Replanning with %d stages", len(names)), nil), nil
			},
			Category: CategoryProgress,
		},
		{
			Name:        ToolFinishTask,
			Description: "Declare the whole task complete. This is the only way to end the task.",
			SchemaJSON: `{
  "type": "object",
  "properties": {
    "reason": {"type": "string", "description": "One sentence on why the task is complete"}
  },
  "required": ["reason"]
}`,
			Fn: func(_ context.Context, args map[string]any) (string, error) {
				reason, _ := args["reason"].(string)
				return toolresponse.OK("Task finished: "+reason, nil), nil
			},
			Category: CategoryPlan,
		},
	}
}

func stringsArg(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("missing %s", key)
	}
	switch v := raw.(type) {
	case []string:
		return cleanNames(v), nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] is %T, want string", key, i, item)
			}
			out = append(out, s)
		}
		return cleanNames(out), nil
	}
	return nil, fmt.Errorf("%s is %T, want array of strings", key, raw)
}

func cleanNames(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func intArg(args map[string]any, key string, def int) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%s must be an integer, got %v", key, v)
		}
		return int(v), nil
	}
	return 0, fmt.Errorf("%s is %T, want integer", key, raw)
}
