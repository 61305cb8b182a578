package engine

// Node names a step of the control loop.
type Node string

const (
	NodeStart      Node = "start"
	NodeBuild      Node = "build"
	NodeModel      Node = "model"
	NodeProceed    Node = "proceed"
	NodeTools      Node = "tools"
	NodeReflection Node = "reflection"
	NodeEnd        Node = "end"
)

// Route picks the node that follows from. k is the reflection threshold.
func Route(from Node, st *AgentState, k int) Node {
	switch from {
	case NodeStart:
		return NodeBuild

	case NodeBuild:
		if lastTurnHasToolCalls(st) {
			return NodeTools
		}
		return NodeBuild

	case NodeModel:
		if lastTurnHasToolCalls(st) {
			return NodeTools
		}
		if ShouldReflect(st.Stats.FailuresSinceLastReflection, k) {
			return NodeReflection
		}
		return NodeProceed

	case NodeProceed:
		if lastTurnHasToolCalls(st) {
			return NodeTools
		}
		return NodeProceed

	case NodeTools:
		switch {
		case st.TaskCompleted:
			return NodeEnd
		case st.TotalStages == 0:
			return NodeBuild
		case ShouldReflect(st.Stats.FailuresSinceLastReflection, k):
			return NodeReflection
		default:
			return NodeModel
		}

	case NodeReflection:
		return NodeModel
	}
	return NodeEnd
}

// ShouldReflect reports whether f failures since the last reflection call for
// one under threshold k.
func ShouldReflect(f, k int) bool {
	return k > 0 && f > 0 && f%k == 0
}

func lastTurnHasToolCalls(st *AgentState) bool {
	m, ok := st.LastAssistant()
	return ok && m.HasToolCalls()
}
