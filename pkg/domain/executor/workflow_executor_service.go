package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
	"github.com/techwithparamesh/agent-app-sub006/pkg/expressions"
)

type WorkflowExecutorService interface {
	Run(ctx context.Context, params RunParams) (domain.Execution, error)
	Execute(ctx context.Context, params ExecuteParams) (ExecutionResult, error)
}

type workflowExecutorService struct {
	nodeExecutor          *NodeExecutor
	orderedEventPublisher domain.EventPublisher
	workflowStore         domain.WorkflowStore
	executionStore        domain.ExecutionStore
	maxLoopIterations     int
}

type WorkflowExecutorServiceDependencies struct {
	IntegrationSelector   domain.IntegrationSelector
	CredentialResolver    domain.CredentialResolver
	Evaluator             *expressions.Evaluator
	JavaScriptRunner      *expressions.JavaScriptRunner
	OrderedEventPublisher domain.EventPublisher
	WorkflowStore         domain.WorkflowStore
	ExecutionStore        domain.ExecutionStore
	AdapterTimeout        time.Duration
	MaxLoopIterations     int
}

func NewWorkflowExecutorService(deps WorkflowExecutorServiceDependencies) WorkflowExecutorService {
	return &workflowExecutorService{
		nodeExecutor: NewNodeExecutor(NodeExecutorDeps{
			IntegrationSelector: deps.IntegrationSelector,
			CredentialResolver:  deps.CredentialResolver,
			Evaluator:           deps.Evaluator,
			JavaScriptRunner:    deps.JavaScriptRunner,
			AdapterTimeout:      deps.AdapterTimeout,
		}),
		orderedEventPublisher: deps.OrderedEventPublisher,
		workflowStore:         deps.WorkflowStore,
		executionStore:        deps.ExecutionStore,
		maxLoopIterations:     deps.MaxLoopIterations,
	}
}

type ExecuteParams struct {
	ExecutionID string
	UserID      string
	WorkflowID  string
	Nodes       []domain.Node
	Connections []domain.Connection
	TriggerKind domain.TriggerKind
	TriggerData map[string]any
}

// Execute runs the graph without touching any store. A graph that fails
// validation is rejected before any node runs.
func (s *workflowExecutorService) Execute(ctx context.Context, params ExecuteParams) (ExecutionResult, error) {
	graph, err := domain.NewWorkflowGraph(params.Nodes, params.Connections)
	if err != nil {
		return ExecutionResult{NodeExecutions: []domain.NodeExecutionEntry{}}, err
	}

	executionID := params.ExecutionID
	if executionID == "" {
		executionID = uuid.NewString()
	}

	workflowExecutor := NewWorkflowExecutor(WorkflowExecutorDeps{
		ExecutionID:           executionID,
		UserID:                params.UserID,
		WorkflowID:            params.WorkflowID,
		TriggerKind:           params.TriggerKind,
		Graph:                 graph,
		NodeExecutor:          s.nodeExecutor,
		OrderedEventPublisher: s.orderedEventPublisher,
		MaxLoopIterations:     s.maxLoopIterations,
	})

	return workflowExecutor.Execute(ctx, params.TriggerData)
}

type RunParams struct {
	Workflow    domain.Workflow
	TriggerKind domain.TriggerKind
	TriggerData map[string]any
}

// Run executes the workflow and keeps its execution record and the workflow
// counters in step. The returned error only reports bookkeeping failures; a
// failed graph shows up as an execution with status error.
func (s *workflowExecutorService) Run(ctx context.Context, params RunParams) (domain.Execution, error) {
	workflow := params.Workflow

	execution := domain.Execution{
		ID:          uuid.NewString(),
		WorkflowID:  workflow.ID,
		UserID:      workflow.UserID,
		TriggerKind: params.TriggerKind,
		TriggerData: params.TriggerData,
		Status:      domain.ExecutionStatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.executionStore.CreateExecution(ctx, execution); err != nil {
		log.Error().Err(err).Str("workflowID", workflow.ID).Msg("executor: failed to create execution")
		return domain.Execution{}, err
	}

	// The record must reach a terminal status even when ctx was cancelled mid run.
	bookkeepingCtx := context.WithoutCancel(ctx)

	startedAt := time.Now().UTC()

	if err := s.executionStore.MarkExecutionRunning(bookkeepingCtx, execution.ID, startedAt); err != nil {
		log.Error().Err(err).Str("executionID", execution.ID).Msg("executor: failed to mark execution running")
		s.abandon(bookkeepingCtx, workflow.ID, execution.ID, startedAt, err)
		return execution, err
	}

	if err := execution.MarkRunning(startedAt); err != nil {
		return execution, err
	}

	result, execErr := s.Execute(ctx, ExecuteParams{
		ExecutionID: execution.ID,
		UserID:      workflow.UserID,
		WorkflowID:  workflow.ID,
		Nodes:       workflow.Nodes,
		Connections: workflow.Connections,
		TriggerKind: params.TriggerKind,
		TriggerData: params.TriggerData,
	})

	completedAt := time.Now().UTC()

	completion := domain.ExecutionCompletion{
		Status:         domain.ExecutionStatusSuccess,
		CompletedAt:    completedAt,
		DurationMs:     completedAt.Sub(startedAt).Milliseconds(),
		OutputData:     result.OutputData,
		NodeExecutions: result.NodeExecutions,
	}

	if execErr != nil {
		completion.Status = domain.ExecutionStatusError
		completion.OutputData = nil
		completion.ErrorMessage = execErr.Error()
		completion.ErrorStack = domain.ErrorStack(execErr)

		log.Error().
			Err(execErr).
			Str("workflowID", workflow.ID).
			Str("executionID", execution.ID).
			Str("errorClass", string(domain.ClassifyError(execErr))).
			Msg("executor: workflow execution failed")
	}

	completeErr := s.executionStore.CompleteExecution(bookkeepingCtx, execution.ID, completion)
	if completeErr != nil {
		log.Error().Err(completeErr).Str("executionID", execution.ID).Msg("executor: failed to complete execution")
	}

	s.recordOutcome(bookkeepingCtx, workflow.ID, completion.Status, completedAt)

	if completeErr != nil {
		return execution, completeErr
	}

	if err := execution.Complete(completion); err != nil {
		return execution, err
	}

	log.Info().
		Str("workflowID", workflow.ID).
		Str("executionID", execution.ID).
		Str("status", string(execution.Status)).
		Int64("duration_ms", execution.DurationMs).
		Msg("executor: execution finished")

	return execution, nil
}

// abandon closes out a run whose record could not be marked running. The
// error completion only lands when the running transition was stored despite
// the failure; the workflow counters are updated either way.
func (s *workflowExecutorService) abandon(ctx context.Context, workflowID string, executionID string, startedAt time.Time, cause error) {
	completedAt := time.Now().UTC()

	err := s.executionStore.CompleteExecution(ctx, executionID, domain.ExecutionCompletion{
		Status:         domain.ExecutionStatusError,
		CompletedAt:    completedAt,
		DurationMs:     completedAt.Sub(startedAt).Milliseconds(),
		NodeExecutions: []domain.NodeExecutionEntry{},
		ErrorMessage:   cause.Error(),
		ErrorStack:     domain.ErrorStack(cause),
	})
	if err != nil {
		log.Warn().Err(err).Str("executionID", executionID).Msg("executor: execution record left unfinished")
	}

	s.recordOutcome(ctx, workflowID, domain.ExecutionStatusError, completedAt)
}

func (s *workflowExecutorService) recordOutcome(ctx context.Context, workflowID string, status domain.ExecutionStatus, executedAt time.Time) {
	if err := s.workflowStore.RecordExecutionOutcome(ctx, workflowID, domain.ExecutionOutcome{
		Status:     status,
		ExecutedAt: executedAt,
	}); err != nil {
		log.Error().Err(err).Str("workflowID", workflowID).Msg("executor: failed to record execution outcome")
	}
}
