package domain

import (
	"context"
	"sync"
)

type EventType string

const (
	EventTypeNodeExecutionStarted       EventType = "node_execution_started"
	EventTypeNodeExecuted               EventType = "node_executed"
	EventTypeNodeFailed                 EventType = "node_failed"
	EventTypeWorkflowExecutionCompleted EventType = "workflow_execution_completed"
)

// ExecutionEvent is published while an execution runs, for live dashboards.
type ExecutionEvent struct {
	Type        EventType       `json:"type"`
	WorkflowID  string          `json:"workflow_id"`
	ExecutionID string          `json:"execution_id"`
	NodeID      string          `json:"node_id,omitempty"`
	Status      ExecutionStatus `json:"status,omitempty"`
	Error       string          `json:"error,omitempty"`
	Order       int             `json:"order"`
	Timestamp   int64           `json:"timestamp"`
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, event ExecutionEvent) error
}

type EventOrderContextKey struct{}

type EventOrderContext struct {
	mtx   sync.Mutex
	order int
}

func NewContextWithEventOrder(ctx context.Context) context.Context {
	return context.WithValue(ctx, EventOrderContextKey{}, &EventOrderContext{})
}

func GetEventOrderContext(ctx context.Context) (*EventOrderContext, bool) {
	order, ok := ctx.Value(EventOrderContextKey{}).(*EventOrderContext)
	return order, ok
}

func (c *EventOrderContext) GetNextOrder() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.order++

	return c.order
}

// OrderedEventPublisher stamps events with a per-execution sequence number taken
// from the context before handing them to the wrapped publisher.
type OrderedEventPublisher struct {
	publisher EventPublisher
}

func NewOrderedEventPublisher(publisher EventPublisher) *OrderedEventPublisher {
	return &OrderedEventPublisher{publisher: publisher}
}

func (p *OrderedEventPublisher) PublishEvent(ctx context.Context, event ExecutionEvent) error {
	if order, ok := GetEventOrderContext(ctx); ok {
		event.Order = order.GetNextOrder()
	}

	return p.publisher.PublishEvent(ctx, event)
}

type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishEvent(ctx context.Context, event ExecutionEvent) error {
	return nil
}
