package domain

import (
	"errors"
	"time"
)

var (
	ErrWorkflowNotFound = errors.New("workflow not found")
)

// WorkflowTriggerConfig holds the workflow-level trigger fields. Node level trigger
// configuration takes precedence over these.
type WorkflowTriggerConfig struct {
	Kind     TriggerKind `json:"kind,omitempty" bson:"kind,omitempty" yaml:"kind,omitempty"`
	Cron     string      `json:"cron,omitempty" bson:"cron,omitempty" yaml:"cron,omitempty"`
	Timezone string      `json:"timezone,omitempty" bson:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// TriggerState is the dispatcher state persisted next to the workflow it belongs to.
type TriggerState struct {
	Poll     *PollState     `json:"poll,omitempty" bson:"poll,omitempty"`
	Schedule *ScheduleState `json:"schedule,omitempty" bson:"schedule,omitempty"`
}

type Workflow struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Name        string       `json:"name"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`

	TriggerConfig WorkflowTriggerConfig `json:"trigger_config"`
	TriggerState  TriggerState          `json:"trigger_state"`

	IsActive  bool   `json:"is_active"`
	WebhookID string `json:"webhook_id,omitempty"`

	ExecutionCount      int64           `json:"execution_count"`
	LastExecutedAt      *time.Time      `json:"last_executed_at,omitempty"`
	LastExecutionStatus ExecutionStatus `json:"last_execution_status,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (w Workflow) GetNodeByID(nodeID string) (Node, bool) {
	for _, node := range w.Nodes {
		if node.ID == nodeID {
			return node, true
		}
	}

	return Node{}, false
}

// TriggerNode returns the workflow's entry point. Workflows without exactly one
// trigger node have no entry point.
func (w Workflow) TriggerNode() (Node, bool) {
	var (
		trigger Node
		found   bool
	)

	for _, node := range w.Nodes {
		if node.Type != NodeTypeTrigger {
			continue
		}

		if found {
			return Node{}, false
		}

		trigger = node
		found = true
	}

	return trigger, found
}

// ResolveTriggerKind reads the kind from the trigger node, then from the workflow
// level config, then infers it from whichever sub-config is present.
func (w Workflow) ResolveTriggerKind(trigger Node) TriggerKind {
	config, _ := trigger.TriggerConfig()

	if config.Kind != "" {
		return config.Kind
	}

	if w.TriggerConfig.Kind != "" {
		return w.TriggerConfig.Kind
	}

	switch {
	case config.Poll != nil:
		return TriggerKindPoll
	case config.Schedule != nil:
		return TriggerKindSchedule
	case config.Webhook != nil:
		return TriggerKindWebhook
	}

	return ""
}

// ResolveSchedule returns the cron expression and timezone for a schedule trigger,
// falling back to the workflow level fields for whatever the node leaves empty.
func (w Workflow) ResolveSchedule(trigger Node) (string, string, error) {
	config, _ := trigger.TriggerConfig()

	expression := ""
	timezone := ""

	if config.Schedule != nil {
		cronExpression, err := config.Schedule.CronExpression()
		if err != nil {
			return "", "", err
		}

		expression = cronExpression
		timezone = config.Schedule.Timezone
	}

	if expression == "" {
		expression = w.TriggerConfig.Cron
	}

	if timezone == "" {
		timezone = w.TriggerConfig.Timezone
	}

	if expression == "" {
		return "", "", NewConfigurationError("workflow %s has no cron expression", w.ID)
	}

	if timezone == "" {
		timezone = "UTC"
	}

	return expression, timezone, nil
}

// Connection is a directed edge between a node output port and a node input port.
type Connection struct {
	FromNodeID string `json:"from_node_id" bson:"from_node_id" yaml:"from_node_id"`
	FromPort   string `json:"from_port,omitempty" bson:"from_port,omitempty" yaml:"from_port,omitempty"`
	ToNodeID   string `json:"to_node_id" bson:"to_node_id" yaml:"to_node_id"`
	ToPort     string `json:"to_port,omitempty" bson:"to_port,omitempty" yaml:"to_port,omitempty"`
}

func (c Connection) SourcePort() string {
	if c.FromPort == "" {
		return PortMain
	}

	return c.FromPort
}

func (c Connection) TargetPort() string {
	if c.ToPort == "" {
		return PortMain
	}

	return c.ToPort
}
