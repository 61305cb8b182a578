// Package stages tracks the agent's plan: an ordered list of stage names and a
// cursor into it. All operations are pure; callers own the state.
package stages

import "errors"

var (
	// ErrEmptyStages is returned by Edit when the replacement list is empty.
	ErrEmptyStages = errors.New("new stages must not be empty")
	// ErrInvalidStageCount is returned by Advance for negative counts other than -1.
	ErrInvalidStageCount = errors.New("stage_count must be -1 or >= 0")
)

// All completes every remaining stage when passed to Advance.
const All = -1

// Build replaces the plan wholesale. The cursor implicitly resets to 0.
// An empty input yields the "no plan" state (nil, 0).
func Build(names []string) ([]string, int) {
	if len(names) == 0 {
		return nil, 0
	}
	out := make([]string, len(names))
	copy(out, names)
	return out, len(out)
}

// Advance is the result of moving the cursor forward.
type Advance struct {
	Current int
	Done    bool
	// Completed is the half-open range [From, To) of stages finished by this move.
	CompletedFrom int
	CompletedTo   int
	// NextStage is the name of the now-current stage, empty when Done.
	NextStage string
}

// Completed returns the names of the stages finished by this move.
func (a Advance) Completed(names []string) []string {
	if a.CompletedFrom >= a.CompletedTo || a.CompletedFrom >= len(names) {
		return nil
	}
	to := min(a.CompletedTo, len(names))
	out := make([]string, to-a.CompletedFrom)
	copy(out, names[a.CompletedFrom:to])
	return out
}

// AdvanceStage moves the cursor by stageCount. Zero is a no-op, All finishes
// the plan, and positive counts saturate at total.
func AdvanceStage(stageCount, current, total int, names []string) (Advance, error) {
	if stageCount < All {
		return Advance{Current: current, Done: current >= total}, ErrInvalidStageCount
	}
	current = max(0, min(current, total))

	var next int
	switch stageCount {
	case 0:
		return Advance{
			Current:       current,
			Done:          false,
			CompletedFrom: current,
			CompletedTo:   current,
			NextStage:     stageAt(names, current),
		}, nil
	case All:
		next = total
	default:
		next = min(current+stageCount, total)
	}

	adv := Advance{
		Current:       next,
		Done:          next >= total,
		CompletedFrom: current,
		CompletedTo:   next,
	}
	if next < total {
		adv.NextStage = stageAt(names, next)
	}
	return adv, nil
}

// Edit replaces every stage from current onward with newStages. The completed
// prefix names[:current] is kept as is.
func Edit(newStages []string, current int, names []string) ([]string, int, error) {
	if len(newStages) == 0 {
		return names, len(names), ErrEmptyStages
	}
	current = max(0, min(current, len(names)))

	out := make([]string, 0, current+len(newStages))
	out = append(out, names[:current]...)
	out = append(out, newStages...)
	return out, len(out), nil
}

// Label returns a short human description of the cursor position.
func Label(current, total int, names []string) string {
	if total == 0 {
		return "no plan"
	}
	if current >= total {
		return "all stages complete"
	}
	return stageAt(names, current)
}

func stageAt(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return ""
	}
	return names[i]
}
