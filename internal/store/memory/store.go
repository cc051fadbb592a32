// Package memory keeps workflows, executions and credentials in process. It
// backs tests and single node deployments seeded from a YAML file.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

type Store struct {
	mutex sync.RWMutex

	workflows   map[string]domain.Workflow
	executions  map[string]domain.Execution
	credentials map[string]domain.SealedCredential
}

func New() *Store {
	return &Store{
		workflows:   map[string]domain.Workflow{},
		executions:  map[string]domain.Execution{},
		credentials: map[string]domain.SealedCredential{},
	}
}

func (s *Store) ListActiveWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	workflows := []domain.Workflow{}

	for _, workflow := range s.workflows {
		if workflow.IsActive {
			workflows = append(workflows, cloneWorkflow(workflow))
		}
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].ID < workflows[j].ID
	})

	return workflows, nil
}

func (s *Store) GetWorkflow(ctx context.Context, workflowID string) (domain.Workflow, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	workflow, ok := s.workflows[workflowID]
	if !ok {
		return domain.Workflow{}, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}

	return cloneWorkflow(workflow), nil
}

func (s *Store) GetWorkflowByWebhookID(ctx context.Context, webhookID string) (domain.Workflow, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, workflow := range s.workflows {
		if webhookID != "" && workflow.WebhookID == webhookID {
			return cloneWorkflow(workflow), nil
		}
	}

	return domain.Workflow{}, fmt.Errorf("%w: webhook %s", domain.ErrWorkflowNotFound, webhookID)
}

func (s *Store) SaveWorkflow(ctx context.Context, workflow domain.Workflow) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now().UTC()

	if existing, ok := s.workflows[workflow.ID]; ok {
		workflow.CreatedAt = existing.CreatedAt
	} else if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	s.workflows[workflow.ID] = cloneWorkflow(workflow)

	return nil
}

func (s *Store) SaveTriggerState(ctx context.Context, workflowID string, state domain.TriggerState) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	workflow, ok := s.workflows[workflowID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}

	workflow.TriggerState = cloneTriggerState(state)
	s.workflows[workflowID] = workflow

	return nil
}

func (s *Store) RecordExecutionOutcome(ctx context.Context, workflowID string, outcome domain.ExecutionOutcome) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	workflow, ok := s.workflows[workflowID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}

	executedAt := outcome.ExecutedAt

	workflow.ExecutionCount++
	workflow.LastExecutedAt = &executedAt
	workflow.LastExecutionStatus = outcome.Status
	s.workflows[workflowID] = workflow

	return nil
}

func (s *Store) CreateExecution(ctx context.Context, execution domain.Execution) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.executions[execution.ID]; exists {
		return fmt.Errorf("execution %s already exists", execution.ID)
	}

	if execution.Status != domain.ExecutionStatusPending {
		return fmt.Errorf("%w: executions are created pending, got %s", domain.ErrInvalidExecutionTransition, execution.Status)
	}

	s.executions[execution.ID] = execution

	return nil
}

func (s *Store) MarkExecutionRunning(ctx context.Context, executionID string, startedAt time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	execution, ok := s.executions[executionID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrExecutionNotFound, executionID)
	}

	if err := execution.MarkRunning(startedAt); err != nil {
		return err
	}

	s.executions[executionID] = execution

	return nil
}

func (s *Store) CompleteExecution(ctx context.Context, executionID string, completion domain.ExecutionCompletion) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	execution, ok := s.executions[executionID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrExecutionNotFound, executionID)
	}

	completion.NodeExecutions = slices.Clone(completion.NodeExecutions)

	if err := execution.Complete(completion); err != nil {
		return err
	}

	s.executions[executionID] = execution

	return nil
}

func (s *Store) GetExecution(ctx context.Context, executionID string) (domain.Execution, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	execution, ok := s.executions[executionID]
	if !ok {
		return domain.Execution{}, fmt.Errorf("%w: %s", domain.ErrExecutionNotFound, executionID)
	}

	return execution, nil
}

// ListExecutions returns the newest executions of a workflow first. A limit of
// zero or less returns all of them.
func (s *Store) ListExecutions(ctx context.Context, workflowID string, limit int) ([]domain.Execution, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	executions := []domain.Execution{}

	for _, execution := range s.executions {
		if execution.WorkflowID == workflowID {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		if executions[i].CreatedAt.Equal(executions[j].CreatedAt) {
			return executions[i].ID > executions[j].ID
		}

		return executions[i].CreatedAt.After(executions[j].CreatedAt)
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}

func (s *Store) GetCredential(ctx context.Context, credentialID string) (domain.SealedCredential, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	credential, ok := s.credentials[credentialID]
	if !ok {
		return domain.SealedCredential{}, fmt.Errorf("%w: %s", domain.ErrCredentialNotFound, credentialID)
	}

	return credential, nil
}

func (s *Store) SaveCredential(ctx context.Context, credential domain.SealedCredential) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.credentials[credential.ID] = credential

	return nil
}

func cloneWorkflow(workflow domain.Workflow) domain.Workflow {
	workflow.Nodes = slices.Clone(workflow.Nodes)
	workflow.Connections = slices.Clone(workflow.Connections)
	workflow.TriggerState = cloneTriggerState(workflow.TriggerState)

	if workflow.LastExecutedAt != nil {
		executedAt := *workflow.LastExecutedAt
		workflow.LastExecutedAt = &executedAt
	}

	return workflow
}

func cloneTriggerState(state domain.TriggerState) domain.TriggerState {
	cloned := domain.TriggerState{}

	if state.Poll != nil {
		poll := state.Poll.Clone()
		cloned.Poll = &poll
	}

	if state.Schedule != nil {
		schedule := *state.Schedule
		cloned.Schedule = &schedule
	}

	return cloned
}
