package executor

import (
	"context"
	"time"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

type ExecutionEventType string

const (
	ExecutionEventTypeNodeExecutionStarted       ExecutionEventType = "node_execution_started"
	ExecutionEventTypeNodeExecutionCompleted     ExecutionEventType = "node_execution_completed"
	ExecutionEventTypeNodeExecutionFailed        ExecutionEventType = "node_execution_failed"
	ExecutionEventTypeNodeExecutionSkipped       ExecutionEventType = "node_execution_skipped"
	ExecutionEventTypeWorkflowExecutionCompleted ExecutionEventType = "workflow_execution_completed"
)

type ExecutionEvent interface {
	GetEventType() ExecutionEventType
}

// NodeRef identifies a node run, including its loop iteration when it ran inside
// a loop body.
type NodeRef struct {
	NodeID     string
	NodeType   domain.NodeType
	AppID      domain.IntegrationType
	LoopNodeID string
	Iteration  *int
}

type NodeExecutionStartedEvent struct {
	Node      NodeRef
	Timestamp time.Time
}

func (NodeExecutionStartedEvent) GetEventType() ExecutionEventType {
	return ExecutionEventTypeNodeExecutionStarted
}

type NodeExecutionCompletedEvent struct {
	Node           NodeRef
	Input          any
	Output         any
	Ports          []string
	ExecutionOrder int
	StartedAt      time.Time
	EndedAt        time.Time
}

func (NodeExecutionCompletedEvent) GetEventType() ExecutionEventType {
	return ExecutionEventTypeNodeExecutionCompleted
}

type NodeExecutionFailedEvent struct {
	Node           NodeRef
	Input          any
	Output         any
	Error          error
	ExecutionOrder int
	StartedAt      time.Time
	EndedAt        time.Time
}

func (NodeExecutionFailedEvent) GetEventType() ExecutionEventType {
	return ExecutionEventTypeNodeExecutionFailed
}

type NodeExecutionSkippedEvent struct {
	Node           NodeRef
	ExecutionOrder int
	Timestamp      time.Time
}

func (NodeExecutionSkippedEvent) GetEventType() ExecutionEventType {
	return ExecutionEventTypeNodeExecutionSkipped
}

type WorkflowExecutionCompletedEvent struct {
	Status    domain.ExecutionStatus
	Error     error
	Timestamp time.Time
}

func (WorkflowExecutionCompletedEvent) GetEventType() ExecutionEventType {
	return ExecutionEventTypeWorkflowExecutionCompleted
}

type ExecutionEventHandler interface {
	HandleEvent(ctx context.Context, event ExecutionEvent) error
}

type ExecutionObserver struct {
	handlers []ExecutionEventHandler
}

func NewExecutionObserver() *ExecutionObserver {
	return &ExecutionObserver{
		handlers: []ExecutionEventHandler{},
	}
}

func (o *ExecutionObserver) Subscribe(handler ExecutionEventHandler) {
	o.handlers = append(o.handlers, handler)
}

func (o *ExecutionObserver) Notify(ctx context.Context, event ExecutionEvent) error {
	for _, handler := range o.handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
