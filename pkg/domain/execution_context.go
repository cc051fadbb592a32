package domain

import (
	"context"
)

type WorkflowExecutionContextKey struct{}

type WorkflowExecutionContext struct {
	UserID              string
	WorkflowID          string
	WorkflowExecutionID string
	TriggerKind         TriggerKind
}

func NewContextWithWorkflowExecutionContext(ctx context.Context, executionContext WorkflowExecutionContext) context.Context {
	return context.WithValue(ctx, WorkflowExecutionContextKey{}, &executionContext)
}

func GetWorkflowExecutionContext(ctx context.Context) (*WorkflowExecutionContext, bool) {
	executionContext, ok := ctx.Value(WorkflowExecutionContextKey{}).(*WorkflowExecutionContext)
	return executionContext, ok
}
