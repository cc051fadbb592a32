package executor

import (
	"context"
	"sync"

	"github.com/rs/xid"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

// HistoryRecorder builds the per-node trace of an execution
type HistoryRecorder struct {
	historyEntries []domain.NodeExecutionEntry
	mutex          sync.Mutex
}

func NewHistoryRecorder() *HistoryRecorder {
	return &HistoryRecorder{
		historyEntries: []domain.NodeExecutionEntry{},
	}
}

func (h *HistoryRecorder) HandleEvent(ctx context.Context, event ExecutionEvent) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	switch e := event.(type) {
	case NodeExecutionCompletedEvent:
		h.historyEntries = append(h.historyEntries, newHistoryEntry(e.Node, domain.NodeExecutionEntry{
			Status:         domain.NodeExecutionStatusSuccess,
			Ports:          e.Ports,
			Input:          e.Input,
			Output:         e.Output,
			StartedAt:      e.StartedAt,
			EndedAt:        e.EndedAt,
			ExecutionOrder: e.ExecutionOrder,
		}))

	case NodeExecutionFailedEvent:
		h.historyEntries = append(h.historyEntries, newHistoryEntry(e.Node, domain.NodeExecutionEntry{
			Status:         domain.NodeExecutionStatusError,
			Input:          e.Input,
			Output:         e.Output,
			Error:          e.Error.Error(),
			StartedAt:      e.StartedAt,
			EndedAt:        e.EndedAt,
			ExecutionOrder: e.ExecutionOrder,
		}))

	case NodeExecutionSkippedEvent:
		h.historyEntries = append(h.historyEntries, newHistoryEntry(e.Node, domain.NodeExecutionEntry{
			Status:         domain.NodeExecutionStatusSkipped,
			StartedAt:      e.Timestamp,
			EndedAt:        e.Timestamp,
			ExecutionOrder: e.ExecutionOrder,
		}))
	}

	return nil
}

func newHistoryEntry(node NodeRef, entry domain.NodeExecutionEntry) domain.NodeExecutionEntry {
	entry.ID = xid.New().String()
	entry.NodeID = node.NodeID
	entry.NodeType = node.NodeType
	entry.AppID = node.AppID
	entry.LoopNodeID = node.LoopNodeID
	entry.Iteration = node.Iteration

	return entry
}

// GetHistoryEntries returns a copy of the recorded entries in execution order.
func (h *HistoryRecorder) GetHistoryEntries() []domain.NodeExecutionEntry {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	entries := make([]domain.NodeExecutionEntry, len(h.historyEntries))
	copy(entries, h.historyEntries)

	return entries
}

// EventBroadcaster publishes events to external event publisher
type EventBroadcaster struct {
	orderedEventPublisher domain.EventPublisher
	workflowID            string
	executionID           string
}

func NewEventBroadcaster(orderedEventPublisher domain.EventPublisher, workflowID string, executionID string) *EventBroadcaster {
	return &EventBroadcaster{
		orderedEventPublisher: orderedEventPublisher,
		workflowID:            workflowID,
		executionID:           executionID,
	}
}

func (b *EventBroadcaster) HandleEvent(ctx context.Context, event ExecutionEvent) error {
	if b.orderedEventPublisher == nil {
		return nil
	}

	switch e := event.(type) {
	case NodeExecutionStartedEvent:
		return b.orderedEventPublisher.PublishEvent(ctx, domain.ExecutionEvent{
			Type:        domain.EventTypeNodeExecutionStarted,
			WorkflowID:  b.workflowID,
			ExecutionID: b.executionID,
			NodeID:      e.Node.NodeID,
			Timestamp:   e.Timestamp.UnixNano(),
		})

	case NodeExecutionCompletedEvent:
		return b.orderedEventPublisher.PublishEvent(ctx, domain.ExecutionEvent{
			Type:        domain.EventTypeNodeExecuted,
			WorkflowID:  b.workflowID,
			ExecutionID: b.executionID,
			NodeID:      e.Node.NodeID,
			Timestamp:   e.EndedAt.UnixNano(),
		})

	case NodeExecutionFailedEvent:
		return b.orderedEventPublisher.PublishEvent(ctx, domain.ExecutionEvent{
			Type:        domain.EventTypeNodeFailed,
			WorkflowID:  b.workflowID,
			ExecutionID: b.executionID,
			NodeID:      e.Node.NodeID,
			Error:       e.Error.Error(),
			Timestamp:   e.EndedAt.UnixNano(),
		})

	case WorkflowExecutionCompletedEvent:
		published := domain.ExecutionEvent{
			Type:        domain.EventTypeWorkflowExecutionCompleted,
			WorkflowID:  b.workflowID,
			ExecutionID: b.executionID,
			Status:      e.Status,
			Timestamp:   e.Timestamp.UnixNano(),
		}

		if e.Error != nil {
			published.Error = e.Error.Error()
		}

		return b.orderedEventPublisher.PublishEvent(ctx, published)
	}

	return nil
}
