package engine

import (
	"strconv"

	"github.com/ChamsBouzaiene/stagehand/internal/prompts"
	"github.com/ChamsBouzaiene/stagehand/internal/stages"
)

// DefaultSystemPrompt is used when Config.SystemPrompt is empty.
var DefaultSystemPrompt = prompts.DefaultRegistry().Text(prompts.IDSystem)

func buildSystemPrompt(base string) string {
	return prompts.FromText(base).
		AddFragment(prompts.DefaultRegistry().Text(prompts.IDBuildDirective)).
		Build()
}

func stageSystemPrompt(base string, st *AgentState) string {
	b := prompts.FromText(base)
	switch {
	case st.TotalStages == 0:
		b.AddFragment("CURRENT STAGE: no plan yet.")
	case st.CurrentStage >= st.TotalStages:
		b.AddFragment("CURRENT STAGE: all stages complete. Call finish_task if the task is done.")
	default:
		b.AddFragment(prompts.DefaultRegistry().Text(prompts.IDStageContext)).
			SetVariable("index", strconv.Itoa(st.CurrentStage+1)).
			SetVariable("total", strconv.Itoa(st.TotalStages)).
			SetVariable("name", stages.Label(st.CurrentStage, st.TotalStages, st.StageNames))
	}
	return b.Build()
}

func proceedMessage(attempt int) string {
	b := prompts.FromText(prompts.DefaultRegistry().Text(prompts.IDProceedDirective))
	if attempt > 1 {
		b.AddFragment(prompts.DefaultRegistry().Text(prompts.IDProceedEscalation)).
			SetVariable("attempt", strconv.Itoa(attempt))
	}
	return b.Build()
}

func reflectionMessage(stats Stats) string {
	return prompts.FromText(prompts.DefaultRegistry().Text(prompts.IDReflection)).
		SetVariable("failures", strconv.Itoa(stats.Failures)).
		SetVariable("recent", strconv.Itoa(stats.FailuresSinceLastReflection)).
		Build()
}
