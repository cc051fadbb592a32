package mongodb

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

type workflowDocument struct {
	ID                  string                       `bson:"_id"`
	UserID              string                       `bson:"user_id"`
	Name                string                       `bson:"name"`
	Nodes               bson.Raw                     `bson:"nodes"`
	Connections         []domain.Connection          `bson:"connections"`
	TriggerConfig       domain.WorkflowTriggerConfig `bson:"trigger_config"`
	TriggerState        domain.TriggerState          `bson:"trigger_state"`
	IsActive            bool                         `bson:"is_active"`
	WebhookID           string                       `bson:"webhook_id,omitempty"`
	ExecutionCount      int64                        `bson:"execution_count"`
	LastExecutedAt      *time.Time                   `bson:"last_executed_at,omitempty"`
	LastExecutionStatus string                       `bson:"last_execution_status"`
	CreatedAt           time.Time                    `bson:"created_at"`
	UpdatedAt           time.Time                    `bson:"updated_at"`
}

func (d workflowDocument) toDomain() (domain.Workflow, error) {
	workflow := domain.Workflow{
		ID:                  d.ID,
		UserID:              d.UserID,
		Name:                d.Name,
		Connections:         d.Connections,
		TriggerConfig:       d.TriggerConfig,
		TriggerState:        d.TriggerState,
		IsActive:            d.IsActive,
		WebhookID:           d.WebhookID,
		ExecutionCount:      d.ExecutionCount,
		LastExecutedAt:      d.LastExecutedAt,
		LastExecutionStatus: domain.ExecutionStatus(d.LastExecutionStatus),
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}

	if err := fromDocument(d.Nodes, &workflow.Nodes); err != nil {
		return domain.Workflow{}, fmt.Errorf("workflow %s has invalid nodes: %w", d.ID, err)
	}

	return workflow, nil
}

type executionDocument struct {
	ID             string     `bson:"_id"`
	WorkflowID     string     `bson:"workflow_id"`
	UserID         string     `bson:"user_id"`
	TriggerKind    string     `bson:"trigger_kind"`
	TriggerData    bson.Raw   `bson:"trigger_data,omitempty"`
	Status         string     `bson:"status"`
	CreatedAt      time.Time  `bson:"created_at"`
	StartedAt      *time.Time `bson:"started_at,omitempty"`
	CompletedAt    *time.Time `bson:"completed_at,omitempty"`
	DurationMs     int64      `bson:"duration_ms"`
	OutputData     bson.Raw   `bson:"output_data,omitempty"`
	NodeExecutions bson.Raw   `bson:"node_executions,omitempty"`
	ErrorMessage   string     `bson:"error_message"`
	ErrorStack     string     `bson:"error_stack"`
}

func (d executionDocument) toDomain() (domain.Execution, error) {
	execution := domain.Execution{
		ID:           d.ID,
		WorkflowID:   d.WorkflowID,
		UserID:       d.UserID,
		TriggerKind:  domain.TriggerKind(d.TriggerKind),
		Status:       domain.ExecutionStatus(d.Status),
		CreatedAt:    d.CreatedAt,
		StartedAt:    d.StartedAt,
		CompletedAt:  d.CompletedAt,
		DurationMs:   d.DurationMs,
		ErrorMessage: d.ErrorMessage,
		ErrorStack:   d.ErrorStack,
	}

	if err := fromDocument(d.TriggerData, &execution.TriggerData); err != nil {
		return domain.Execution{}, err
	}

	if err := fromDocument(d.OutputData, &execution.OutputData); err != nil {
		return domain.Execution{}, err
	}

	if err := fromDocument(d.NodeExecutions, &execution.NodeExecutions); err != nil {
		return domain.Execution{}, err
	}

	return execution, nil
}

type valueWrapper struct {
	Value json.RawMessage `json:"v"`
}

// toDocument stores a JSON shaped value as a BSON document. Node configs and
// free form payloads go through their JSON encoding so their custom marshalers
// apply.
func toDocument(value any) (bson.Raw, error) {
	raw, err := json.Marshal(map[string]any{"v": value})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}

	var document bson.Raw
	if err := bson.UnmarshalExtJSON(raw, false, &document); err != nil {
		return nil, fmt.Errorf("failed to convert value to bson: %w", err)
	}

	return document, nil
}

func fromDocument(document bson.Raw, target any) error {
	if len(document) == 0 {
		return nil
	}

	raw, err := bson.MarshalExtJSON(document, false, false)
	if err != nil {
		return fmt.Errorf("failed to convert bson to json: %w", err)
	}

	var wrapper valueWrapper
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return err
	}

	if len(wrapper.Value) == 0 || string(wrapper.Value) == "null" {
		return nil
	}

	return json.Unmarshal(wrapper.Value, target)
}
