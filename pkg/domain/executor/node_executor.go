package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
	"github.com/techwithparamesh/agent-app-sub006/pkg/expressions"
)

var (
	ErrNoSwitchMatch    = errors.New("no switch case matched and no default port is configured")
	ErrLoopItemsInvalid = errors.New("loop items expression did not return an array")
)

type NodeResult struct {
	Output any
	Ports  []string
}

// NodeExecutor runs a single node against the run context. Loops are driven by
// the WorkflowExecutor; the NodeExecutor only resolves their items.
type NodeExecutor struct {
	integrationSelector domain.IntegrationSelector
	credentialResolver  domain.CredentialResolver
	evaluator           *expressions.Evaluator
	binder              *expressions.Binder
	javaScriptRunner    *expressions.JavaScriptRunner
	adapterTimeout      time.Duration
}

type NodeExecutorDeps struct {
	IntegrationSelector domain.IntegrationSelector
	CredentialResolver  domain.CredentialResolver
	Evaluator           *expressions.Evaluator
	JavaScriptRunner    *expressions.JavaScriptRunner
	AdapterTimeout      time.Duration
}

func NewNodeExecutor(deps NodeExecutorDeps) *NodeExecutor {
	return &NodeExecutor{
		integrationSelector: deps.IntegrationSelector,
		credentialResolver:  deps.CredentialResolver,
		evaluator:           deps.Evaluator,
		binder:              expressions.NewBinder(deps.Evaluator, ""),
		javaScriptRunner:    deps.JavaScriptRunner,
		adapterTimeout:      deps.AdapterTimeout,
	}
}

func (e *NodeExecutor) ExecuteNode(ctx context.Context, node domain.Node, input any, run *RunContext) (NodeResult, error) {
	switch node.Type {
	case domain.NodeTypeTrigger:
		return NodeResult{Output: run.Trigger, Ports: []string{domain.PortMain}}, nil
	case domain.NodeTypeCondition:
		return e.executeCondition(ctx, node, input, run)
	case domain.NodeTypeSwitch:
		return e.executeSwitch(ctx, node, input, run)
	case domain.NodeTypeSetVariable:
		return e.executeSetVariable(ctx, node, input, run)
	case domain.NodeTypeCode:
		return e.executeCode(ctx, node, input, run)
	case domain.NodeTypeLoop:
		return NodeResult{}, fmt.Errorf("loop node %s must be run by the workflow executor", node.ID)
	}

	if node.IsAppBacked() {
		return e.executeApp(ctx, node, input, run)
	}

	return NodeResult{}, domain.NewConfigurationError("node %s has unsupported type %q", node.ID, node.Type)
}

func (e *NodeExecutor) executeApp(ctx context.Context, node domain.Node, input any, run *RunContext) (NodeResult, error) {
	config, ok := node.ActionConfig()
	if !ok {
		return NodeResult{}, domain.NewConfigurationError("node %s has no action config", node.ID)
	}

	appID := node.AppID
	if appID == "" {
		return NodeResult{}, domain.NewConfigurationError("node %s has no app id", node.ID)
	}

	creator, err := e.integrationSelector.SelectCreator(ctx, domain.SelectIntegrationParams{
		IntegrationType: appID,
	})
	if err != nil {
		return NodeResult{}, err
	}

	credential := domain.Credential{}

	if config.CredentialID != "" {
		credential, err = e.credentialResolver.Resolve(ctx, config.CredentialID, run.UserID)
		if err != nil {
			return NodeResult{}, err
		}
	}

	params, err := e.binder.BindMap(ctx, config.Params, run.Scope(input))
	if err != nil {
		return NodeResult{}, domain.NewConfigurationError("node %s params: %v", node.ID, err)
	}

	integration, err := creator.CreateIntegration(ctx, domain.CreateIntegrationParams{
		UserID:     run.UserID,
		Credential: credential,
	})
	if err != nil {
		return NodeResult{}, err
	}

	if e.adapterTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.adapterTimeout)
		defer cancel()
	}

	log.Debug().
		Str("nodeID", node.ID).
		Str("appID", string(appID)).
		Str("actionID", string(config.ActionID)).
		Msg("executor: calling integration")

	output, err := integration.Execute(ctx, domain.IntegrationInput{
		NodeID:   node.ID,
		ActionID: config.ActionID,
		Params:   params,
		Input:    input,
	})
	if err != nil {
		return NodeResult{}, err
	}

	return NodeResult{Output: output.Data, Ports: []string{domain.PortMain}}, nil
}

func (e *NodeExecutor) executeCondition(ctx context.Context, node domain.Node, input any, run *RunContext) (NodeResult, error) {
	config, ok := node.Config.(domain.ConditionNodeConfig)
	if !ok || config.Expression == "" {
		return NodeResult{}, domain.NewConfigurationError("condition node %s has no expression", node.ID)
	}

	result, err := e.evaluator.EvaluateBool(ctx, config.Language, config.Expression, run.Scope(input))
	if err != nil {
		return NodeResult{}, err
	}

	port := domain.PortFalse
	if result {
		port = domain.PortTrue
	}

	return NodeResult{Output: input, Ports: []string{port}}, nil
}

func (e *NodeExecutor) executeSwitch(ctx context.Context, node domain.Node, input any, run *RunContext) (NodeResult, error) {
	config, ok := node.Config.(domain.SwitchNodeConfig)
	if !ok {
		return NodeResult{}, domain.NewConfigurationError("switch node %s has no config", node.ID)
	}

	scope := run.Scope(input)

	for _, switchCase := range config.Cases {
		matched, err := e.evaluator.EvaluateBool(ctx, config.Language, switchCase.Expression, scope)
		if err != nil {
			return NodeResult{}, fmt.Errorf("case %s: %w", switchCase.Port, err)
		}

		if matched {
			return NodeResult{Output: input, Ports: []string{switchCase.Port}}, nil
		}
	}

	if config.DefaultPort == "" {
		return NodeResult{}, ErrNoSwitchMatch
	}

	return NodeResult{Output: input, Ports: []string{config.DefaultPort}}, nil
}

func (e *NodeExecutor) executeSetVariable(ctx context.Context, node domain.Node, input any, run *RunContext) (NodeResult, error) {
	config, ok := node.Config.(domain.SetVariableNodeConfig)
	if !ok {
		return NodeResult{}, domain.NewConfigurationError("set_variable node %s has no config", node.ID)
	}

	assigned := make(map[string]any, len(config.Variables))

	for _, variable := range config.Variables {
		if variable.Name == "" {
			return NodeResult{}, domain.NewConfigurationError("set_variable node %s has a variable without name", node.ID)
		}

		value, err := e.evaluator.Evaluate(ctx, variable.Language, variable.Expression, run.Scope(input))
		if err != nil {
			return NodeResult{}, fmt.Errorf("variable %s: %w", variable.Name, err)
		}

		run.Vars[variable.Name] = value
		assigned[variable.Name] = value
	}

	return NodeResult{Output: assigned, Ports: []string{domain.PortMain}}, nil
}

func (e *NodeExecutor) executeCode(ctx context.Context, node domain.Node, input any, run *RunContext) (NodeResult, error) {
	config, ok := node.Config.(domain.CodeNodeConfig)
	if !ok || config.Source == "" {
		return NodeResult{}, domain.NewConfigurationError("code node %s has no source", node.ID)
	}

	result, err := e.javaScriptRunner.Run(ctx, config.Source, run.Scope(input))
	if err != nil {
		return NodeResult{}, err
	}

	run.Vars = result.Vars

	return NodeResult{Output: result.Value, Ports: []string{domain.PortMain}}, nil
}

// LoopItems evaluates a loop node's items expression. At most maxIterations
// items are returned.
func (e *NodeExecutor) LoopItems(ctx context.Context, node domain.Node, input any, run *RunContext, maxIterations int) ([]any, error) {
	config, ok := node.Config.(domain.LoopNodeConfig)
	if !ok || config.Items == "" {
		return nil, domain.NewConfigurationError("loop node %s has no items expression", node.ID)
	}

	value, err := e.evaluator.Evaluate(ctx, config.Language, config.Items, run.Scope(input))
	if err != nil {
		return nil, err
	}

	var items []any

	switch v := value.(type) {
	case nil:
		items = []any{}
	case []any:
		items = v
	case []map[string]any:
		items = make([]any, len(v))
		for i, item := range v {
			items[i] = item
		}
	default:
		return nil, fmt.Errorf("%w: got %T", ErrLoopItemsInvalid, value)
	}

	limit := maxIterations
	if config.MaxIterations > 0 && config.MaxIterations < limit {
		limit = config.MaxIterations
	}

	if len(items) > limit {
		log.Warn().
			Str("nodeID", node.ID).
			Int("items", len(items)).
			Int("limit", limit).
			Msg("executor: loop items truncated")

		items = items[:limit]
	}

	return items, nil
}
