package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

type NodeType string

const (
	NodeTypeTrigger     NodeType = "trigger"
	NodeTypeAction      NodeType = "action"
	NodeTypeCondition   NodeType = "condition"
	NodeTypeSwitch      NodeType = "switch"
	NodeTypeLoop        NodeType = "loop"
	NodeTypeSetVariable NodeType = "set_variable"
	NodeTypeCode        NodeType = "code"
	NodeTypeApp         NodeType = "app"
)

// PortMain is the port of connections that name none, and the only output port
// of nodes that do not branch.
const (
	PortMain  = "main"
	PortTrue  = "true"
	PortFalse = "false"
	PortItem  = "item"
	PortDone  = "done"
)

type NodeSettings struct {
	ContinueOnError bool `json:"continue_on_error,omitempty"`
}

// Node is a single step of a workflow graph. Config holds one of the typed
// *NodeConfig structs below, selected by Type.
type Node struct {
	ID       string
	Type     NodeType
	AppID    IntegrationType
	Name     string
	Config   NodeConfig
	Settings NodeSettings
}

type NodeConfig interface {
	isNodeConfig()
}

type TriggerNodeConfig struct {
	Kind     TriggerKind            `json:"kind,omitempty"`
	Poll     *PollTriggerConfig     `json:"poll,omitempty"`
	Schedule *ScheduleTriggerConfig `json:"schedule,omitempty"`
	Webhook  *WebhookTriggerConfig  `json:"webhook,omitempty"`
}

type PollTriggerConfig struct {
	ResourceType    IntegrationType `json:"resource_type"`
	EventType       string          `json:"event_type,omitempty"`
	IntervalMinutes int             `json:"interval_minutes,omitempty"`
	CredentialID    string          `json:"credential_id,omitempty"`
	Settings        map[string]any  `json:"settings,omitempty"`
}

// WebhookTriggerConfig filters and verifies inbound deliveries. Verification
// selects how SigningSecret is checked for senders without a dedicated
// integration: "hmac" (default) or "jwt".
type WebhookTriggerConfig struct {
	Provider      IntegrationType `json:"provider,omitempty"`
	Event         string          `json:"event,omitempty"`
	SigningSecret string          `json:"signing_secret,omitempty"`
	Verification  string          `json:"verification,omitempty"`
}

// ActionNodeConfig configures action and app nodes. Keys other than action_id and
// credential_id are kept as app specific parameters.
type ActionNodeConfig struct {
	ActionID     IntegrationActionType
	CredentialID string
	Params       map[string]any
}

type ConditionNodeConfig struct {
	Expression string `json:"expression"`
	Language   string `json:"language,omitempty"`
}

type SwitchCase struct {
	Port       string `json:"port"`
	Expression string `json:"expression"`
}

type SwitchNodeConfig struct {
	Cases       []SwitchCase `json:"cases"`
	DefaultPort string       `json:"default_port,omitempty"`
	Language    string       `json:"language,omitempty"`
}

type LoopNodeConfig struct {
	Items         string `json:"items"`
	Language      string `json:"language,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

type VariableAssignment struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	Language   string `json:"language,omitempty"`
}

type SetVariableNodeConfig struct {
	Variables []VariableAssignment `json:"variables"`
}

type CodeNodeConfig struct {
	Source string `json:"source"`
}

func (TriggerNodeConfig) isNodeConfig()     {}
func (ActionNodeConfig) isNodeConfig()      {}
func (ConditionNodeConfig) isNodeConfig()   {}
func (SwitchNodeConfig) isNodeConfig()      {}
func (LoopNodeConfig) isNodeConfig()        {}
func (SetVariableNodeConfig) isNodeConfig() {}
func (CodeNodeConfig) isNodeConfig()        {}

func (n Node) TriggerConfig() (TriggerNodeConfig, bool) {
	config, ok := n.Config.(TriggerNodeConfig)
	return config, ok
}

func (n Node) ActionConfig() (ActionNodeConfig, bool) {
	config, ok := n.Config.(ActionNodeConfig)
	return config, ok
}

// IsAppBacked reports whether the node delegates to a vendor adapter.
func (n Node) IsAppBacked() bool {
	switch n.Type {
	case NodeTypeApp:
		return true
	case NodeTypeAction:
		return n.AppID != ""
	case NodeTypeTrigger, NodeTypeCondition, NodeTypeSwitch, NodeTypeLoop, NodeTypeSetVariable, NodeTypeCode:
		return false
	}

	return n.AppID != ""
}

type nodeJSON struct {
	ID       string          `json:"id"`
	Type     NodeType        `json:"type"`
	AppID    IntegrationType `json:"app_id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Config   json.RawMessage `json:"config,omitempty"`
	Settings NodeSettings    `json:"settings"`
}

func (n Node) MarshalJSON() ([]byte, error) {
	var config json.RawMessage

	if n.Config != nil {
		raw, err := json.Marshal(n.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal config of node %s: %w", n.ID, err)
		}

		config = raw
	}

	return json.Marshal(nodeJSON{
		ID:       n.ID,
		Type:     n.Type,
		AppID:    n.AppID,
		Name:     n.Name,
		Config:   config,
		Settings: n.Settings,
	})
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	config, err := decodeNodeConfig(raw.Type, raw.Config)
	if err != nil {
		return fmt.Errorf("node %s: %w", raw.ID, err)
	}

	*n = Node{
		ID:       raw.ID,
		Type:     raw.Type,
		AppID:    raw.AppID,
		Name:     raw.Name,
		Config:   config,
		Settings: raw.Settings,
	}

	return nil
}

func decodeNodeConfig(nodeType NodeType, raw json.RawMessage) (NodeConfig, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage("{}")
	}

	var (
		config NodeConfig
		err    error
	)

	switch nodeType {
	case NodeTypeTrigger:
		var c TriggerNodeConfig
		err = json.Unmarshal(raw, &c)
		config = c
	case NodeTypeCondition:
		var c ConditionNodeConfig
		err = json.Unmarshal(raw, &c)
		config = c
	case NodeTypeSwitch:
		var c SwitchNodeConfig
		err = json.Unmarshal(raw, &c)
		config = c
	case NodeTypeLoop:
		var c LoopNodeConfig
		err = json.Unmarshal(raw, &c)
		config = c
	case NodeTypeSetVariable:
		var c SetVariableNodeConfig
		err = json.Unmarshal(raw, &c)
		config = c
	case NodeTypeCode:
		var c CodeNodeConfig
		err = json.Unmarshal(raw, &c)
		config = c
	default:
		var c ActionNodeConfig
		err = json.Unmarshal(raw, &c)
		config = c
	}

	if err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", nodeType, err)
	}

	return config, nil
}

func (c ActionNodeConfig) MarshalJSON() ([]byte, error) {
	values := make(map[string]any, len(c.Params)+2)

	for key, value := range c.Params {
		values[key] = value
	}

	if c.ActionID != "" {
		values["action_id"] = c.ActionID
	}

	if c.CredentialID != "" {
		values["credential_id"] = c.CredentialID
	}

	return json.Marshal(values)
}

func (c *ActionNodeConfig) UnmarshalJSON(data []byte) error {
	values := map[string]any{}

	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}

	actionID, err := popString(values, "action_id")
	if err != nil {
		return err
	}

	credentialID, err := popString(values, "credential_id")
	if err != nil {
		return err
	}

	*c = ActionNodeConfig{
		ActionID:     IntegrationActionType(actionID),
		CredentialID: credentialID,
		Params:       values,
	}

	return nil
}

func popString(values map[string]any, key string) (string, error) {
	value, ok := values[key]
	if !ok || value == nil {
		return "", nil
	}

	delete(values, key)

	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%s is not a string", key)
	}

	return strings.TrimSpace(s), nil
}
