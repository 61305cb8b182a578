// Package tools assembles the capability tools offered to the model.
package tools

import (
	"github.com/ChamsBouzaiene/stagehand/internal/engine"
	"github.com/ChamsBouzaiene/stagehand/internal/tools/execution"
	"github.com/ChamsBouzaiene/stagehand/internal/tools/filesystem"
	"github.com/ChamsBouzaiene/stagehand/internal/tools/interaction"
	"github.com/ChamsBouzaiene/stagehand/internal/tools/search"
)

// Set selects tool groups. end_current_stage, edit_stages and finish_task are
// always included; build_stages is offered only by the build node.
type Set struct {
	Filesystem  bool     `yaml:"filesystem"`
	Execution   bool     `yaml:"execution"`
	Search      bool     `yaml:"search"`
	Interaction bool     `yaml:"interaction"`
	Allowlist   []string `yaml:"allowlist"` // run_cmd commands that skip confirmation
}

// DefaultSet enables every group.
func DefaultSet() Set {
	return Set{Filesystem: true, Execution: true, Search: true, Interaction: true}
}

// NewRegistry builds the registry once at startup. Tools find their
// per-session resources through the call context.
func NewRegistry(set Set) engine.ToolRegistry {
	reg := make(engine.ToolRegistry)

	for _, t := range engine.PlanTools() {
		reg.Register(t)
	}

	if set.Filesystem {
		reg.Register(filesystem.NewReadFileTool())
		reg.Register(filesystem.NewListFilesTool())
		reg.Register(filesystem.NewWriteFileTool())
	}
	if set.Search {
		reg.Register(search.NewSearchFilesTool())
	}
	if set.Execution {
		reg.Register(execution.NewRunCmdTool(set.Allowlist))
	}
	if set.Interaction {
		reg.Register(interaction.NewAskUserTool())
		reg.Register(interaction.NewRequestHandoffTool())
	}
	return reg
}
