package executor

import (
	"context"
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

const DefaultMaxLoopIterations = 1000

// ExecutionResult is what a finished graph walk produced. NodeExecutions is
// filled on failure too.
type ExecutionResult struct {
	OutputData     map[string]any
	NodeExecutions []domain.NodeExecutionEntry
}

type edgeState struct {
	active  bool
	payload any
}

// traversal is one walk over a set of nodes: the top level graph, or one
// iteration of a loop body.
type traversal struct {
	members map[string]struct{}
	startID string
	edges   map[domain.Connection]edgeState
	visited map[string]struct{}

	executed   []string
	lastOutput any

	loopNodeID string
	iteration  *int
}

type WorkflowExecutor struct {
	executionID string
	userID      string
	workflowID  string
	triggerKind domain.TriggerKind

	graph        *domain.WorkflowGraph
	nodeExecutor *NodeExecutor
	run          *RunContext

	loopBodies        map[string]map[string]struct{}
	maxLoopIterations int
	executionOrder    int

	observer        *ExecutionObserver
	historyRecorder *HistoryRecorder
}

type WorkflowExecutorDeps struct {
	ExecutionID           string
	UserID                string
	WorkflowID            string
	TriggerKind           domain.TriggerKind
	Graph                 *domain.WorkflowGraph
	NodeExecutor          *NodeExecutor
	OrderedEventPublisher domain.EventPublisher
	MaxLoopIterations     int
}

func NewWorkflowExecutor(deps WorkflowExecutorDeps) *WorkflowExecutor {
	observer := NewExecutionObserver()

	historyRecorder := NewHistoryRecorder()
	eventBroadcaster := NewEventBroadcaster(deps.OrderedEventPublisher, deps.WorkflowID, deps.ExecutionID)

	observer.Subscribe(historyRecorder)
	observer.Subscribe(eventBroadcaster)

	maxLoopIterations := deps.MaxLoopIterations
	if maxLoopIterations <= 0 {
		maxLoopIterations = DefaultMaxLoopIterations
	}

	loopBodies := map[string]map[string]struct{}{}

	for _, node := range deps.Graph.Nodes() {
		if node.Type != domain.NodeTypeLoop {
			continue
		}

		body := map[string]struct{}{}
		for _, id := range deps.Graph.ReachableFrom(deps.Graph.OutboundOnPort(node.ID, domain.PortItem)) {
			body[id] = struct{}{}
		}

		loopBodies[node.ID] = body
	}

	return &WorkflowExecutor{
		executionID:       deps.ExecutionID,
		userID:            deps.UserID,
		workflowID:        deps.WorkflowID,
		triggerKind:       deps.TriggerKind,
		graph:             deps.Graph,
		nodeExecutor:      deps.NodeExecutor,
		loopBodies:        loopBodies,
		maxLoopIterations: maxLoopIterations,
		observer:          observer,
		historyRecorder:   historyRecorder,
	}
}

// Execute walks the graph from the trigger node. The first node failure without
// continue_on_error stops the walk and is returned as a *domain.NodeError.
func (w *WorkflowExecutor) Execute(ctx context.Context, triggerData map[string]any) (ExecutionResult, error) {
	ctx = domain.NewContextWithEventOrder(ctx)
	ctx = domain.NewContextWithWorkflowExecutionContext(ctx, domain.WorkflowExecutionContext{
		UserID:              w.userID,
		WorkflowID:          w.workflowID,
		WorkflowExecutionID: w.executionID,
		TriggerKind:         w.triggerKind,
	})

	w.run = NewRunContext(w.userID, w.workflowID, w.executionID, triggerData)

	log.Info().
		Str("workflowID", w.workflowID).
		Str("executionID", w.executionID).
		Str("triggerKind", string(w.triggerKind)).
		Msg("executor: executing workflow")

	allNodes := make([]string, 0)
	for _, node := range w.graph.Nodes() {
		allNodes = append(allNodes, node.ID)
	}

	top := w.newTraversal(w.membersOf(allNodes), w.graph.Trigger().ID, nil, nil)

	err := w.traverse(ctx, top)

	status := domain.ExecutionStatusSuccess
	if err != nil {
		status = domain.ExecutionStatusError
	}

	if errNotify := w.observer.Notify(ctx, WorkflowExecutionCompletedEvent{
		Status:    status,
		Error:     err,
		Timestamp: time.Now(),
	}); errNotify != nil {
		log.Error().Err(errNotify).Str("workflowID", w.workflowID).Msg("executor: failed to notify workflow execution completed")
	}

	nodeOutputs := make(map[string]any, len(top.executed))
	for _, nodeID := range top.executed {
		nodeOutputs[nodeID] = w.run.NodeOutputs[nodeID]
	}

	entries := w.historyRecorder.GetHistoryEntries()
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ExecutionOrder < entries[j].ExecutionOrder
	})

	return ExecutionResult{
		OutputData: map[string]any{
			"nodes": nodeOutputs,
			"vars":  w.run.Vars,
		},
		NodeExecutions: entries,
	}, err
}

// membersOf drops the bodies of every loop among candidates. Those nodes only
// run inside their loop's iterations.
func (w *WorkflowExecutor) membersOf(candidates []string) map[string]struct{} {
	members := make(map[string]struct{}, len(candidates))
	for _, id := range candidates {
		members[id] = struct{}{}
	}

	for _, id := range candidates {
		for bodyID := range w.loopBodies[id] {
			delete(members, bodyID)
		}
	}

	return members
}

func (w *WorkflowExecutor) newTraversal(members map[string]struct{}, startID string, seeds []domain.Connection, payload any) *traversal {
	t := &traversal{
		members: members,
		startID: startID,
		edges:   map[domain.Connection]edgeState{},
		visited: map[string]struct{}{},
	}

	for _, seed := range seeds {
		t.edges[seed] = edgeState{active: true, payload: payload}
	}

	return t
}

func (w *WorkflowExecutor) traverse(ctx context.Context, t *traversal) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		node, ok := w.nextReady(t)
		if !ok {
			return nil
		}

		if err := w.visit(ctx, t, node); err != nil {
			return err
		}
	}
}

// inbound returns the edges that gate nodeID inside t: edges from other members
// and the seed edges of a loop body.
func (w *WorkflowExecutor) inbound(t *traversal, nodeID string) []domain.Connection {
	connections := []domain.Connection{}

	for _, connection := range w.graph.Inbound(nodeID) {
		_, fromMember := t.members[connection.FromNodeID]
		_, seeded := t.edges[connection]

		if fromMember || seeded {
			connections = append(connections, connection)
		}
	}

	return connections
}

// nextReady returns the first unvisited member, in declaration order, whose
// gating edges are all resolved.
func (w *WorkflowExecutor) nextReady(t *traversal) (domain.Node, bool) {
	for _, node := range w.graph.Nodes() {
		if _, ok := t.members[node.ID]; !ok {
			continue
		}

		if _, ok := t.visited[node.ID]; ok {
			continue
		}

		if node.ID == t.startID {
			return node, true
		}

		resolved := true
		for _, connection := range w.inbound(t, node.ID) {
			if _, ok := t.edges[connection]; !ok {
				resolved = false
				break
			}
		}

		if resolved {
			return node, true
		}
	}

	return domain.Node{}, false
}

func (w *WorkflowExecutor) visit(ctx context.Context, t *traversal, node domain.Node) error {
	t.visited[node.ID] = struct{}{}

	var input any

	if node.ID == t.startID {
		input = w.run.Trigger
	} else {
		active := []domain.Connection{}
		for _, connection := range w.inbound(t, node.ID) {
			if t.edges[connection].active {
				active = append(active, connection)
			}
		}

		if len(active) == 0 {
			w.skip(ctx, t, node)
			return nil
		}

		input = mergeInputs(t, active)
	}

	result, err := w.runNode(ctx, t, node, input)
	if err != nil {
		return err
	}

	w.run.NodeOutputs[node.ID] = result.Output
	t.executed = append(t.executed, node.ID)
	t.lastOutput = result.Output

	for _, connection := range w.graph.Outbound(node.ID) {
		t.edges[connection] = edgeState{
			active:  slices.Contains(result.Ports, connection.SourcePort()),
			payload: result.Output,
		}
	}

	return nil
}

func (w *WorkflowExecutor) skip(ctx context.Context, t *traversal, node domain.Node) {
	w.executionOrder++

	if err := w.observer.Notify(ctx, NodeExecutionSkippedEvent{
		Node:           w.nodeRef(t, node),
		ExecutionOrder: w.executionOrder,
		Timestamp:      time.Now(),
	}); err != nil {
		log.Error().Err(err).Str("nodeID", node.ID).Msg("executor: failed to notify node skipped")
	}

	for _, connection := range w.graph.Outbound(node.ID) {
		t.edges[connection] = edgeState{active: false}
	}
}

// mergeInputs hands a node its single upstream output as is, or a map keyed by
// source node id when several branches are active.
func mergeInputs(t *traversal, active []domain.Connection) any {
	if len(active) == 1 {
		return t.edges[active[0]].payload
	}

	merged := make(map[string]any, len(active))
	for _, connection := range active {
		merged[connection.FromNodeID] = t.edges[connection].payload
	}

	return merged
}

func (w *WorkflowExecutor) nodeRef(t *traversal, node domain.Node) NodeRef {
	return NodeRef{
		NodeID:     node.ID,
		NodeType:   node.Type,
		AppID:      node.AppID,
		LoopNodeID: t.loopNodeID,
		Iteration:  t.iteration,
	}
}

func (w *WorkflowExecutor) runNode(ctx context.Context, t *traversal, node domain.Node, input any) (NodeResult, error) {
	w.executionOrder++
	executionOrder := w.executionOrder

	ref := w.nodeRef(t, node)
	startedAt := time.Now()

	if err := w.observer.Notify(ctx, NodeExecutionStartedEvent{Node: ref, Timestamp: startedAt}); err != nil {
		log.Error().Err(err).Str("nodeID", node.ID).Msg("executor: failed to notify node started")
	}

	var (
		result NodeResult
		err    error
	)

	if node.Type == domain.NodeTypeLoop {
		result, err = w.runLoop(ctx, node, input)
	} else {
		result, err = w.nodeExecutor.ExecuteNode(ctx, node, input, w.run)
	}

	endedAt := time.Now()

	if err != nil {
		errorResult, handleErr := w.handleNodeExecutionError(node, err)

		if errNotify := w.observer.Notify(ctx, NodeExecutionFailedEvent{
			Node:           ref,
			Input:          input,
			Output:         errorResult.Output,
			Error:          err,
			ExecutionOrder: executionOrder,
			StartedAt:      startedAt,
			EndedAt:        endedAt,
		}); errNotify != nil {
			log.Error().Err(errNotify).Str("nodeID", node.ID).Msg("executor: failed to notify node failed")
		}

		if handleErr != nil {
			log.Error().Err(err).Str("workflowID", w.workflowID).Str("nodeID", node.ID).Msg("executor: node failed")
		} else {
			log.Warn().Err(err).Str("workflowID", w.workflowID).Str("nodeID", node.ID).Msg("executor: node failed, continuing")
		}

		return errorResult, handleErr
	}

	if errNotify := w.observer.Notify(ctx, NodeExecutionCompletedEvent{
		Node:           ref,
		Input:          input,
		Output:         result.Output,
		Ports:          result.Ports,
		ExecutionOrder: executionOrder,
		StartedAt:      startedAt,
		EndedAt:        endedAt,
	}); errNotify != nil {
		log.Error().Err(errNotify).Str("nodeID", node.ID).Msg("executor: failed to notify node completed")
	}

	return result, nil
}

// handleNodeExecutionError turns err into an {"error": message} output for nodes
// with continue_on_error. That output follows every outgoing port except a
// loop's item port.
func (w *WorkflowExecutor) handleNodeExecutionError(node domain.Node, err error) (NodeResult, error) {
	if !node.Settings.ContinueOnError {
		var nodeErr *domain.NodeError
		if errors.As(err, &nodeErr) {
			return NodeResult{}, err
		}

		return NodeResult{}, &domain.NodeError{NodeID: node.ID, NodeType: node.Type, Err: err}
	}

	ports := []string{}
	for _, connection := range w.graph.Outbound(node.ID) {
		port := connection.SourcePort()
		if node.Type == domain.NodeTypeLoop && port == domain.PortItem {
			continue
		}

		if !slices.Contains(ports, port) {
			ports = append(ports, port)
		}
	}

	return NodeResult{
		Output: map[string]any{"error": err.Error()},
		Ports:  ports,
	}, nil
}

// runLoop runs the loop body once per item and follows the done port with the
// per iteration results. Each iteration's result is the output of the last body
// node that ran.
func (w *WorkflowExecutor) runLoop(ctx context.Context, node domain.Node, input any) (NodeResult, error) {
	items, err := w.nodeExecutor.LoopItems(ctx, node, input, w.run, w.maxLoopIterations)
	if err != nil {
		return NodeResult{}, err
	}

	bodyIDs := make([]string, 0, len(w.loopBodies[node.ID]))
	for id := range w.loopBodies[node.ID] {
		bodyIDs = append(bodyIDs, id)
	}

	seeds := w.graph.OutboundOnPort(node.ID, domain.PortItem)
	results := make([]any, 0, len(items))

	for index, item := range items {
		if err := ctx.Err(); err != nil {
			return NodeResult{}, err
		}

		iteration := index

		body := w.newTraversal(w.membersOf(bodyIDs), "", seeds, item)
		body.loopNodeID = node.ID
		body.iteration = &iteration

		previous := w.run.enterLoop(&loopFrame{NodeID: node.ID, Item: item, Index: index})
		err := w.traverse(ctx, body)
		w.run.leaveLoop(previous)

		if err != nil {
			return NodeResult{}, err
		}

		results = append(results, body.lastOutput)
	}

	return NodeResult{Output: results, Ports: []string{domain.PortDone}}, nil
}
