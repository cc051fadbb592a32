package executor

import (
	"maps"

	"github.com/techwithparamesh/agent-app-sub006/pkg/expressions"
)

type loopFrame struct {
	NodeID string
	Item   any
	Index  int
}

// RunContext accumulates what a running execution has produced so far. Node
// expressions see it through Scope.
type RunContext struct {
	UserID      string
	WorkflowID  string
	ExecutionID string

	Trigger     map[string]any
	NodeOutputs map[string]any
	Vars        map[string]any

	loop *loopFrame
}

func NewRunContext(userID, workflowID, executionID string, trigger map[string]any) *RunContext {
	if trigger == nil {
		trigger = map[string]any{}
	}

	return &RunContext{
		UserID:      userID,
		WorkflowID:  workflowID,
		ExecutionID: executionID,
		Trigger:     trigger,
		NodeOutputs: map[string]any{},
		Vars:        map[string]any{},
	}
}

// Scope builds the expression data for a node receiving input.
func (r *RunContext) Scope(input any) map[string]any {
	scope := map[string]any{
		expressions.ScopeTrigger: r.Trigger,
		expressions.ScopeNodes:   maps.Clone(r.NodeOutputs),
		expressions.ScopeVars:    maps.Clone(r.Vars),
		expressions.ScopeInput:   input,
		expressions.ScopeExecution: map[string]any{
			"id":          r.ExecutionID,
			"workflow_id": r.WorkflowID,
			"user_id":     r.UserID,
		},
	}

	if r.loop != nil {
		scope[expressions.ScopeIteration] = map[string]any{
			"node_id": r.loop.NodeID,
			"item":    r.loop.Item,
			"index":   r.loop.Index,
		}
	}

	return scope
}

func (r *RunContext) enterLoop(frame *loopFrame) *loopFrame {
	previous := r.loop
	r.loop = frame

	return previous
}

func (r *RunContext) leaveLoop(previous *loopFrame) {
	r.loop = previous
}
