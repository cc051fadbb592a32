package domain

import (
	"fmt"
	"time"
)

type TriggerKind string

const (
	TriggerKindPoll     TriggerKind = "poll"
	TriggerKindSchedule TriggerKind = "schedule"
	TriggerKindWebhook  TriggerKind = "webhook"
	TriggerKindManual   TriggerKind = "manual"
)

type ExecutionStatus string

const (
	ExecutionStatusPending ExecutionStatus = "pending"
	ExecutionStatusRunning ExecutionStatus = "running"
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusError   ExecutionStatus = "error"
)

func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusError
}

// CanTransitionTo allows pending->running and running->success|error only.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	switch s {
	case ExecutionStatusPending:
		return next == ExecutionStatusRunning
	case ExecutionStatusRunning:
		return next.IsTerminal()
	}

	return false
}

func ValidateTransition(current, next ExecutionStatus) error {
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidExecutionTransition, current, next)
	}

	return nil
}

// Execution is the audit record of one firing of a workflow.
type Execution struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	UserID      string          `json:"user_id"`
	TriggerKind TriggerKind     `json:"trigger_kind"`
	TriggerData map[string]any  `json:"trigger_data"`
	Status      ExecutionStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms"`

	OutputData     map[string]any       `json:"output_data,omitempty"`
	NodeExecutions []NodeExecutionEntry `json:"node_executions"`

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorStack   string `json:"error_stack,omitempty"`
}

type NodeExecutionStatus string

const (
	NodeExecutionStatusSuccess NodeExecutionStatus = "success"
	NodeExecutionStatusError   NodeExecutionStatus = "error"
	NodeExecutionStatusSkipped NodeExecutionStatus = "skipped"
)

// NodeExecutionEntry is one node's outcome inside an execution trace. Nodes run
// inside a loop body carry the loop node id and iteration index.
type NodeExecutionEntry struct {
	ID             string              `json:"id"`
	NodeID         string              `json:"node_id"`
	NodeType       NodeType            `json:"node_type"`
	AppID          IntegrationType     `json:"app_id,omitempty"`
	Status         NodeExecutionStatus `json:"status"`
	Ports          []string            `json:"ports,omitempty"`
	Input          any                 `json:"input,omitempty"`
	Output         any                 `json:"output,omitempty"`
	Error          string              `json:"error,omitempty"`
	StartedAt      time.Time           `json:"started_at"`
	EndedAt        time.Time           `json:"ended_at"`
	ExecutionOrder int                 `json:"execution_order"`
	LoopNodeID     string              `json:"loop_node_id,omitempty"`
	Iteration      *int                `json:"iteration,omitempty"`
}

// ExecutionOutcome is what gets written back to a workflow's aggregate counters.
type ExecutionOutcome struct {
	Status     ExecutionStatus
	ExecutedAt time.Time
}

// ExecutionCompletion carries the fields of the final running->success|error write.
type ExecutionCompletion struct {
	Status         ExecutionStatus
	CompletedAt    time.Time
	DurationMs     int64
	OutputData     map[string]any
	NodeExecutions []NodeExecutionEntry
	ErrorMessage   string
	ErrorStack     string
}

func (e *Execution) MarkRunning(at time.Time) error {
	if err := ValidateTransition(e.Status, ExecutionStatusRunning); err != nil {
		return err
	}

	e.Status = ExecutionStatusRunning
	e.StartedAt = &at

	return nil
}

func (e *Execution) Complete(c ExecutionCompletion) error {
	if err := ValidateTransition(e.Status, c.Status); err != nil {
		return err
	}

	completedAt := c.CompletedAt

	e.Status = c.Status
	e.CompletedAt = &completedAt
	e.DurationMs = c.DurationMs
	e.OutputData = c.OutputData
	e.NodeExecutions = c.NodeExecutions
	e.ErrorMessage = c.ErrorMessage
	e.ErrorStack = c.ErrorStack

	return nil
}
