package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

func TestStore_Workflows(t *testing.T) {
	ctx := context.Background()
	store := New()

	require.NoError(t, store.SaveWorkflow(ctx, domain.Workflow{ID: "b", IsActive: true, WebhookID: "hook-b"}))
	require.NoError(t, store.SaveWorkflow(ctx, domain.Workflow{ID: "a", IsActive: true}))
	require.NoError(t, store.SaveWorkflow(ctx, domain.Workflow{ID: "off", IsActive: false}))

	active, err := store.ListActiveWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID)

	byWebhook, err := store.GetWorkflowByWebhookID(ctx, "hook-b")
	require.NoError(t, err)
	assert.Equal(t, "b", byWebhook.ID)

	_, err = store.GetWorkflowByWebhookID(ctx, "")
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)

	_, err = store.GetWorkflow(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)

	state := domain.TriggerState{Poll: &domain.PollState{RecentIDs: []string{"x"}}}
	require.NoError(t, store.SaveTriggerState(ctx, "a", state))

	state.Poll.RecentIDs[0] = "mutated"

	stored, err := store.GetWorkflow(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, stored.TriggerState.Poll.RecentIDs)
}

func TestStore_RecordExecutionOutcomeCountsConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	store := New()
	require.NoError(t, store.SaveWorkflow(ctx, domain.Workflow{ID: "wf", IsActive: true}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			_ = store.RecordExecutionOutcome(ctx, "wf", domain.ExecutionOutcome{Status: domain.ExecutionStatusSuccess, ExecutedAt: time.Now()})
		}()
	}

	wg.Wait()

	workflow, err := store.GetWorkflow(ctx, "wf")
	require.NoError(t, err)
	assert.Equal(t, int64(50), workflow.ExecutionCount)
	assert.Equal(t, domain.ExecutionStatusSuccess, workflow.LastExecutionStatus)
}

func TestStore_ExecutionTransitions(t *testing.T) {
	ctx := context.Background()
	store := New()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateExecution(ctx, domain.Execution{ID: "e1", WorkflowID: "wf", Status: domain.ExecutionStatusPending, CreatedAt: now}))

	assert.Error(t, store.CreateExecution(ctx, domain.Execution{ID: "e1", WorkflowID: "wf", Status: domain.ExecutionStatusPending}))
	assert.ErrorIs(t, store.CreateExecution(ctx, domain.Execution{ID: "e2", Status: domain.ExecutionStatusRunning}), domain.ErrInvalidExecutionTransition)

	assert.ErrorIs(t,
		store.CompleteExecution(ctx, "e1", domain.ExecutionCompletion{Status: domain.ExecutionStatusSuccess}),
		domain.ErrInvalidExecutionTransition,
		"pending cannot complete directly",
	)

	require.NoError(t, store.MarkExecutionRunning(ctx, "e1", now))
	require.NoError(t, store.CompleteExecution(ctx, "e1", domain.ExecutionCompletion{Status: domain.ExecutionStatusError, ErrorMessage: "boom"}))

	assert.ErrorIs(t, store.MarkExecutionRunning(ctx, "e1", now), domain.ErrInvalidExecutionTransition)
	assert.ErrorIs(t, store.MarkExecutionRunning(ctx, "missing", now), domain.ErrExecutionNotFound)

	execution, err := store.GetExecution(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusError, execution.Status)
	assert.Equal(t, "boom", execution.ErrorMessage)
}

func TestStore_ListExecutionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := New()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.CreateExecution(ctx, domain.Execution{
			ID:         fmt.Sprintf("e%d", i),
			WorkflowID: "wf",
			Status:     domain.ExecutionStatusPending,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	require.NoError(t, store.CreateExecution(ctx, domain.Execution{ID: "other", WorkflowID: "other", Status: domain.ExecutionStatusPending}))

	executions, err := store.ListExecutions(ctx, "wf", 2)
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, "e4", executions[0].ID)
	assert.Equal(t, "e3", executions[1].ID)

	all, err := store.ListExecutions(ctx, "wf", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}
