// Package postgres stores workflows, executions and sealed credentials in
// PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id                    TEXT PRIMARY KEY,
	user_id               TEXT NOT NULL,
	name                  TEXT NOT NULL DEFAULT '',
	nodes                 JSONB NOT NULL DEFAULT '[]',
	connections           JSONB NOT NULL DEFAULT '[]',
	trigger_config        JSONB NOT NULL DEFAULT '{}',
	trigger_state         JSONB NOT NULL DEFAULT '{}',
	is_active             BOOLEAN NOT NULL DEFAULT FALSE,
	webhook_id            TEXT UNIQUE,
	execution_count       BIGINT NOT NULL DEFAULT 0,
	last_executed_at      TIMESTAMPTZ,
	last_execution_status TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS executions (
	id              TEXT PRIMARY KEY,
	workflow_id     TEXT NOT NULL,
	user_id         TEXT NOT NULL,
	trigger_kind    TEXT NOT NULL,
	trigger_data    JSONB,
	status          TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	started_at      TIMESTAMPTZ,
	completed_at    TIMESTAMPTZ,
	duration_ms     BIGINT NOT NULL DEFAULT 0,
	output_data     JSONB,
	node_executions JSONB,
	error_message   TEXT NOT NULL DEFAULT '',
	error_stack     TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS executions_workflow_id_created_at_idx ON executions (workflow_id, created_at DESC);

CREATE TABLE IF NOT EXISTS credentials (
	id                   TEXT PRIMARY KEY,
	user_id              TEXT NOT NULL,
	integration_type     TEXT NOT NULL,
	verified             BOOLEAN NOT NULL DEFAULT FALSE,
	ephemeral_public_key BYTEA NOT NULL,
	nonce                BYTEA NOT NULL,
	encrypted_payload    BYTEA NOT NULL
);
`

type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn and creates the tables when they do not exist yet.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	store := &Store{pool: pool}

	if err := store.ensureTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().Msg("postgres: store ready")

	return store, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) ensureTables(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

var errUnreadableWorkflow = errors.New("unreadable workflow definition")

const workflowColumns = `id, user_id, name, nodes, connections, trigger_config, trigger_state, is_active,
	COALESCE(webhook_id, ''), execution_count, last_executed_at, last_execution_status, created_at, updated_at`

func scanWorkflow(row pgx.Row) (domain.Workflow, error) {
	var (
		workflow                                        domain.Workflow
		nodes, connections, triggerConfig, triggerState []byte
		lastExecutionStatus                             string
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.UserID,
		&workflow.Name,
		&nodes,
		&connections,
		&triggerConfig,
		&triggerState,
		&workflow.IsActive,
		&workflow.WebhookID,
		&workflow.ExecutionCount,
		&workflow.LastExecutedAt,
		&lastExecutionStatus,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return domain.Workflow{}, err
	}

	workflow.LastExecutionStatus = domain.ExecutionStatus(lastExecutionStatus)

	if err := json.Unmarshal(nodes, &workflow.Nodes); err != nil {
		return domain.Workflow{}, fmt.Errorf("%w: workflow %s has invalid nodes: %w", errUnreadableWorkflow, workflow.ID, err)
	}

	if err := json.Unmarshal(connections, &workflow.Connections); err != nil {
		return domain.Workflow{}, fmt.Errorf("%w: workflow %s has invalid connections: %w", errUnreadableWorkflow, workflow.ID, err)
	}

	if err := json.Unmarshal(triggerConfig, &workflow.TriggerConfig); err != nil {
		return domain.Workflow{}, fmt.Errorf("%w: workflow %s has invalid trigger config: %w", errUnreadableWorkflow, workflow.ID, err)
	}

	if err := json.Unmarshal(triggerState, &workflow.TriggerState); err != nil {
		return domain.Workflow{}, fmt.Errorf("%w: workflow %s has invalid trigger state: %w", errUnreadableWorkflow, workflow.ID, err)
	}

	return workflow, nil
}

func (s *Store) ListActiveWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active workflows: %w", err)
	}
	defer rows.Close()

	return collectWorkflows(rows)
}

type workflowRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// collectWorkflows skips rows whose stored definition no longer decodes so
// one broken workflow does not stop every other trigger.
func collectWorkflows(rows workflowRows) ([]domain.Workflow, error) {
	workflows := []domain.Workflow{}

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if errors.Is(err, errUnreadableWorkflow) {
			log.Warn().Err(err).Msg("postgres: skipping unreadable workflow")
			continue
		}

		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	return workflows, rows.Err()
}

func (s *Store) GetWorkflow(ctx context.Context, workflowID string) (domain.Workflow, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, workflowID)

	workflow, err := scanWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Workflow{}, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}

	return workflow, err
}

func (s *Store) GetWorkflowByWebhookID(ctx context.Context, webhookID string) (domain.Workflow, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE webhook_id = $1`, webhookID)

	workflow, err := scanWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Workflow{}, fmt.Errorf("%w: webhook %s", domain.ErrWorkflowNotFound, webhookID)
	}

	return workflow, err
}

func (s *Store) SaveWorkflow(ctx context.Context, workflow domain.Workflow) error {
	nodes, err := json.Marshal(workflow.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	connections, err := json.Marshal(workflow.Connections)
	if err != nil {
		return fmt.Errorf("failed to marshal connections: %w", err)
	}

	triggerConfig, err := json.Marshal(workflow.TriggerConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger config: %w", err)
	}

	triggerState, err := json.Marshal(workflow.TriggerState)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger state: %w", err)
	}

	var webhookID *string
	if workflow.WebhookID != "" {
		webhookID = &workflow.WebhookID
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflows (id, user_id, name, nodes, connections, trigger_config, trigger_state, is_active, webhook_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			name = EXCLUDED.name,
			nodes = EXCLUDED.nodes,
			connections = EXCLUDED.connections,
			trigger_config = EXCLUDED.trigger_config,
			trigger_state = EXCLUDED.trigger_state,
			is_active = EXCLUDED.is_active,
			webhook_id = EXCLUDED.webhook_id,
			updated_at = NOW()`,
		workflow.ID, workflow.UserID, workflow.Name, nodes, connections, triggerConfig, triggerState, workflow.IsActive, webhookID,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return nil
}

func (s *Store) SaveTriggerState(ctx context.Context, workflowID string, state domain.TriggerState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger state: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `UPDATE workflows SET trigger_state = $2, updated_at = NOW() WHERE id = $1`, workflowID, stateJSON)
	if err != nil {
		return fmt.Errorf("failed to save trigger state of %s: %w", workflowID, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}

	return nil
}

// RecordExecutionOutcome increments in SQL so concurrent executions never lose
// a count.
func (s *Store) RecordExecutionOutcome(ctx context.Context, workflowID string, outcome domain.ExecutionOutcome) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE workflows
		SET execution_count = execution_count + 1, last_executed_at = $2, last_execution_status = $3
		WHERE id = $1`,
		workflowID, outcome.ExecutedAt, string(outcome.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome of %s: %w", workflowID, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}

	return nil
}

func (s *Store) CreateExecution(ctx context.Context, execution domain.Execution) error {
	if execution.Status != domain.ExecutionStatusPending {
		return fmt.Errorf("%w: executions are created pending, got %s", domain.ErrInvalidExecutionTransition, execution.Status)
	}

	triggerData, err := json.Marshal(execution.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO executions (id, workflow_id, user_id, trigger_kind, trigger_data, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		execution.ID, execution.WorkflowID, execution.UserID, string(execution.TriggerKind), triggerData,
		string(execution.Status), execution.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

func (s *Store) MarkExecutionRunning(ctx context.Context, executionID string, startedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE executions SET status = $2, started_at = $3
		WHERE id = $1 AND status = $4`,
		executionID, string(domain.ExecutionStatusRunning), startedAt, string(domain.ExecutionStatusPending),
	)
	if err != nil {
		return fmt.Errorf("failed to mark execution %s running: %w", executionID, err)
	}

	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, executionID, domain.ExecutionStatusRunning)
	}

	return nil
}

func (s *Store) CompleteExecution(ctx context.Context, executionID string, completion domain.ExecutionCompletion) error {
	if !completion.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is not terminal", domain.ErrInvalidExecutionTransition, completion.Status)
	}

	outputData, err := json.Marshal(completion.OutputData)
	if err != nil {
		return fmt.Errorf("failed to marshal output data: %w", err)
	}

	nodeExecutions, err := json.Marshal(completion.NodeExecutions)
	if err != nil {
		return fmt.Errorf("failed to marshal node executions: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE executions
		SET status = $2, completed_at = $3, duration_ms = $4, output_data = $5, node_executions = $6,
			error_message = $7, error_stack = $8
		WHERE id = $1 AND status = $9`,
		executionID, string(completion.Status), completion.CompletedAt, completion.DurationMs, outputData,
		nodeExecutions, completion.ErrorMessage, completion.ErrorStack, string(domain.ExecutionStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("failed to complete execution %s: %w", executionID, err)
	}

	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, executionID, completion.Status)
	}

	return nil
}

// transitionError explains why a guarded update touched no row.
func (s *Store) transitionError(ctx context.Context, executionID string, next domain.ExecutionStatus) error {
	var status string

	err := s.pool.QueryRow(ctx, `SELECT status FROM executions WHERE id = $1`, executionID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrExecutionNotFound, executionID)
	}

	if err != nil {
		return err
	}

	return domain.ValidateTransition(domain.ExecutionStatus(status), next)
}

const executionColumns = `id, workflow_id, user_id, trigger_kind, trigger_data, status, created_at, started_at,
	completed_at, duration_ms, output_data, node_executions, error_message, error_stack`

func scanExecution(row pgx.Row) (domain.Execution, error) {
	var (
		execution                               domain.Execution
		triggerKind, status                     string
		triggerData, outputData, nodeExecutions []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.UserID,
		&triggerKind,
		&triggerData,
		&status,
		&execution.CreatedAt,
		&execution.StartedAt,
		&execution.CompletedAt,
		&execution.DurationMs,
		&outputData,
		&nodeExecutions,
		&execution.ErrorMessage,
		&execution.ErrorStack,
	)
	if err != nil {
		return domain.Execution{}, err
	}

	execution.TriggerKind = domain.TriggerKind(triggerKind)
	execution.Status = domain.ExecutionStatus(status)

	for _, field := range []struct {
		raw    []byte
		target any
	}{
		{triggerData, &execution.TriggerData},
		{outputData, &execution.OutputData},
		{nodeExecutions, &execution.NodeExecutions},
	} {
		if len(field.raw) == 0 {
			continue
		}

		if err := json.Unmarshal(field.raw, field.target); err != nil {
			return domain.Execution{}, fmt.Errorf("execution %s has invalid data: %w", execution.ID, err)
		}
	}

	return execution, nil
}

func (s *Store) GetExecution(ctx context.Context, executionID string) (domain.Execution, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = $1`, executionID)

	execution, err := scanExecution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Execution{}, fmt.Errorf("%w: %s", domain.ErrExecutionNotFound, executionID)
	}

	return execution, err
}

func (s *Store) ListExecutions(ctx context.Context, workflowID string, limit int) ([]domain.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE workflow_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{workflowID}

	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	executions := []domain.Execution{}

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	return executions, rows.Err()
}

func (s *Store) GetCredential(ctx context.Context, credentialID string) (domain.SealedCredential, error) {
	var (
		credential      domain.SealedCredential
		integrationType string
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, integration_type, verified, ephemeral_public_key, nonce, encrypted_payload
		FROM credentials WHERE id = $1`, credentialID,
	).Scan(
		&credential.ID,
		&credential.UserID,
		&integrationType,
		&credential.Verified,
		&credential.EphemeralPublicKey,
		&credential.Nonce,
		&credential.EncryptedPayload,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SealedCredential{}, fmt.Errorf("%w: %s", domain.ErrCredentialNotFound, credentialID)
	}

	if err != nil {
		return domain.SealedCredential{}, fmt.Errorf("failed to get credential %s: %w", credentialID, err)
	}

	credential.IntegrationType = domain.IntegrationType(integrationType)

	return credential, nil
}

func (s *Store) SaveCredential(ctx context.Context, credential domain.SealedCredential) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO credentials (id, user_id, integration_type, verified, ephemeral_public_key, nonce, encrypted_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			integration_type = EXCLUDED.integration_type,
			verified = EXCLUDED.verified,
			ephemeral_public_key = EXCLUDED.ephemeral_public_key,
			nonce = EXCLUDED.nonce,
			encrypted_payload = EXCLUDED.encrypted_payload`,
		credential.ID, credential.UserID, string(credential.IntegrationType), credential.Verified,
		credential.EphemeralPublicKey, credential.Nonce, credential.EncryptedPayload,
	)
	if err != nil {
		return fmt.Errorf("failed to save credential %s: %w", credential.ID, err)
	}

	return nil
}
