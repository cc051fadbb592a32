// Package mongodb stores workflows, executions and sealed credentials in MongoDB.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

const (
	workflowsCollection   = "workflows"
	executionsCollection  = "executions"
	credentialsCollection = "credentials"
)

type Store struct {
	client      *mongo.Client
	workflows   *mongo.Collection
	executions  *mongo.Collection
	credentials *mongo.Collection
}

func New(ctx context.Context, uri string, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(database)

	store := &Store{
		client:      client,
		workflows:   db.Collection(workflowsCollection),
		executions:  db.Collection(executionsCollection),
		credentials: db.Collection(credentialsCollection),
	}

	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	log.Info().Str("database", database).Msg("mongo: store ready")

	return store, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.workflows.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "webhook_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "is_active", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create workflow indexes: %w", err)
	}

	_, err = s.executions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "workflow_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create execution indexes: %w", err)
	}

	return nil
}

func (s *Store) findWorkflows(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]domain.Workflow, error) {
	cursor, err := s.workflows.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to find workflows: %w", err)
	}
	defer cursor.Close(ctx)

	return collectWorkflows(ctx, cursor)
}

// collectWorkflows skips documents that no longer decode into a workflow so
// one broken definition does not stop every other trigger.
func collectWorkflows(ctx context.Context, cursor *mongo.Cursor) ([]domain.Workflow, error) {
	workflows := []domain.Workflow{}

	for cursor.Next(ctx) {
		var document workflowDocument
		if err := cursor.Decode(&document); err != nil {
			id, _ := cursor.Current.Lookup("_id").StringValueOK()
			log.Warn().Err(err).Str("workflowID", id).Msg("mongo: skipping unreadable workflow")
			continue
		}

		workflow, err := document.toDomain()
		if err != nil {
			log.Warn().Err(err).Str("workflowID", document.ID).Msg("mongo: skipping unreadable workflow")
			continue
		}

		workflows = append(workflows, workflow)
	}

	return workflows, cursor.Err()
}

func (s *Store) findOneWorkflow(ctx context.Context, filter bson.M, notFound string) (domain.Workflow, error) {
	var document workflowDocument

	err := s.workflows.FindOne(ctx, filter).Decode(&document)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Workflow{}, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, notFound)
	}

	if err != nil {
		return domain.Workflow{}, fmt.Errorf("failed to find workflow: %w", err)
	}

	return document.toDomain()
}

func (s *Store) ListActiveWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	return s.findWorkflows(ctx, bson.M{"is_active": true}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (s *Store) GetWorkflow(ctx context.Context, workflowID string) (domain.Workflow, error) {
	return s.findOneWorkflow(ctx, bson.M{"_id": workflowID}, workflowID)
}

func (s *Store) GetWorkflowByWebhookID(ctx context.Context, webhookID string) (domain.Workflow, error) {
	return s.findOneWorkflow(ctx, bson.M{"webhook_id": webhookID}, "webhook "+webhookID)
}

func (s *Store) SaveWorkflow(ctx context.Context, workflow domain.Workflow) error {
	nodes, err := toDocument(workflow.Nodes)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	set := bson.M{
		"user_id":        workflow.UserID,
		"name":           workflow.Name,
		"nodes":          nodes,
		"connections":    workflow.Connections,
		"trigger_config": workflow.TriggerConfig,
		"trigger_state":  workflow.TriggerState,
		"is_active":      workflow.IsActive,
		"updated_at":     now,
	}

	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"created_at":            now,
			"execution_count":       int64(0),
			"last_execution_status": "",
		},
	}

	if workflow.WebhookID != "" {
		set["webhook_id"] = workflow.WebhookID
	} else {
		update["$unset"] = bson.M{"webhook_id": ""}
	}

	_, err = s.workflows.UpdateOne(ctx, bson.M{"_id": workflow.ID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return nil
}

func (s *Store) SaveTriggerState(ctx context.Context, workflowID string, state domain.TriggerState) error {
	result, err := s.workflows.UpdateOne(ctx, bson.M{"_id": workflowID}, bson.M{
		"$set": bson.M{"trigger_state": state, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("failed to save trigger state of %s: %w", workflowID, err)
	}

	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}

	return nil
}

func (s *Store) RecordExecutionOutcome(ctx context.Context, workflowID string, outcome domain.ExecutionOutcome) error {
	result, err := s.workflows.UpdateOne(ctx, bson.M{"_id": workflowID}, bson.M{
		"$inc": bson.M{"execution_count": 1},
		"$set": bson.M{
			"last_executed_at":      outcome.ExecutedAt,
			"last_execution_status": string(outcome.Status),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to record outcome of %s: %w", workflowID, err)
	}

	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}

	return nil
}

func (s *Store) CreateExecution(ctx context.Context, execution domain.Execution) error {
	if execution.Status != domain.ExecutionStatusPending {
		return fmt.Errorf("%w: executions are created pending, got %s", domain.ErrInvalidExecutionTransition, execution.Status)
	}

	triggerData, err := toDocument(execution.TriggerData)
	if err != nil {
		return err
	}

	_, err = s.executions.InsertOne(ctx, executionDocument{
		ID:          execution.ID,
		WorkflowID:  execution.WorkflowID,
		UserID:      execution.UserID,
		TriggerKind: string(execution.TriggerKind),
		TriggerData: triggerData,
		Status:      string(execution.Status),
		CreatedAt:   execution.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

func (s *Store) MarkExecutionRunning(ctx context.Context, executionID string, startedAt time.Time) error {
	result, err := s.executions.UpdateOne(ctx,
		bson.M{"_id": executionID, "status": string(domain.ExecutionStatusPending)},
		bson.M{"$set": bson.M{"status": string(domain.ExecutionStatusRunning), "started_at": startedAt}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark execution %s running: %w", executionID, err)
	}

	if result.MatchedCount == 0 {
		return s.transitionError(ctx, executionID, domain.ExecutionStatusRunning)
	}

	return nil
}

func (s *Store) CompleteExecution(ctx context.Context, executionID string, completion domain.ExecutionCompletion) error {
	if !completion.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is not terminal", domain.ErrInvalidExecutionTransition, completion.Status)
	}

	outputData, err := toDocument(completion.OutputData)
	if err != nil {
		return err
	}

	nodeExecutions, err := toDocument(completion.NodeExecutions)
	if err != nil {
		return err
	}

	result, err := s.executions.UpdateOne(ctx,
		bson.M{"_id": executionID, "status": string(domain.ExecutionStatusRunning)},
		bson.M{"$set": bson.M{
			"status":          string(completion.Status),
			"completed_at":    completion.CompletedAt,
			"duration_ms":     completion.DurationMs,
			"output_data":     outputData,
			"node_executions": nodeExecutions,
			"error_message":   completion.ErrorMessage,
			"error_stack":     completion.ErrorStack,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to complete execution %s: %w", executionID, err)
	}

	if result.MatchedCount == 0 {
		return s.transitionError(ctx, executionID, completion.Status)
	}

	return nil
}

func (s *Store) transitionError(ctx context.Context, executionID string, next domain.ExecutionStatus) error {
	execution, err := s.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}

	return domain.ValidateTransition(execution.Status, next)
}

func (s *Store) GetExecution(ctx context.Context, executionID string) (domain.Execution, error) {
	var document executionDocument

	err := s.executions.FindOne(ctx, bson.M{"_id": executionID}).Decode(&document)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Execution{}, fmt.Errorf("%w: %s", domain.ErrExecutionNotFound, executionID)
	}

	if err != nil {
		return domain.Execution{}, fmt.Errorf("failed to get execution %s: %w", executionID, err)
	}

	return document.toDomain()
}

func (s *Store) ListExecutions(ctx context.Context, workflowID string, limit int) ([]domain.Execution, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.executions.Find(ctx, bson.M{"workflow_id": workflowID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer cursor.Close(ctx)

	executions := []domain.Execution{}

	for cursor.Next(ctx) {
		var document executionDocument
		if err := cursor.Decode(&document); err != nil {
			return nil, fmt.Errorf("failed to decode execution: %w", err)
		}

		execution, err := document.toDomain()
		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	return executions, cursor.Err()
}

func (s *Store) GetCredential(ctx context.Context, credentialID string) (domain.SealedCredential, error) {
	var credential domain.SealedCredential

	err := s.credentials.FindOne(ctx, bson.M{"_id": credentialID}).Decode(&credential)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.SealedCredential{}, fmt.Errorf("%w: %s", domain.ErrCredentialNotFound, credentialID)
	}

	if err != nil {
		return domain.SealedCredential{}, fmt.Errorf("failed to get credential %s: %w", credentialID, err)
	}

	return credential, nil
}

func (s *Store) SaveCredential(ctx context.Context, credential domain.SealedCredential) error {
	_, err := s.credentials.ReplaceOne(ctx, bson.M{"_id": credential.ID}, credential, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save credential %s: %w", credential.ID, err)
	}

	return nil
}
