package domain

import (
	"context"
	"time"
)

// WorkflowStore persists workflow definitions. The engine only writes trigger
// state and the aggregate execution counters back.
type WorkflowStore interface {
	ListActiveWorkflows(ctx context.Context) ([]Workflow, error)
	GetWorkflow(ctx context.Context, workflowID string) (Workflow, error)
	GetWorkflowByWebhookID(ctx context.Context, webhookID string) (Workflow, error)
	SaveWorkflow(ctx context.Context, workflow Workflow) error
	SaveTriggerState(ctx context.Context, workflowID string, state TriggerState) error
	// RecordExecutionOutcome increments the execution count and sets the last
	// execution fields. Concurrent calls must all be counted.
	RecordExecutionOutcome(ctx context.Context, workflowID string, outcome ExecutionOutcome) error
}

// ExecutionStore persists execution records. Implementations reject status changes
// other than pending->running and running->success|error with
// ErrInvalidExecutionTransition.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, execution Execution) error
	MarkExecutionRunning(ctx context.Context, executionID string, startedAt time.Time) error
	CompleteExecution(ctx context.Context, executionID string, completion ExecutionCompletion) error
	GetExecution(ctx context.Context, executionID string) (Execution, error)
	ListExecutions(ctx context.Context, workflowID string, limit int) ([]Execution, error)
}
