package domain

import "sort"

// WorkflowGraph indexes a workflow's connections for traversal.
type WorkflowGraph struct {
	nodesByID map[string]Node
	order     []string
	inbound   map[string][]Connection
	outbound  map[string][]Connection
	trigger   Node
}

// NewWorkflowGraph validates nodes and connections and indexes them. The graph
// must have exactly one trigger node, only connections between known nodes, and
// no cycles.
func NewWorkflowGraph(nodes []Node, connections []Connection) (*WorkflowGraph, error) {
	g := &WorkflowGraph{
		nodesByID: make(map[string]Node, len(nodes)),
		inbound:   map[string][]Connection{},
		outbound:  map[string][]Connection{},
	}

	triggerCount := 0

	for _, node := range nodes {
		if node.ID == "" {
			return nil, NewConfigurationError("node without id")
		}

		if _, exists := g.nodesByID[node.ID]; exists {
			return nil, NewConfigurationError("duplicate node id %s", node.ID)
		}

		g.nodesByID[node.ID] = node
		g.order = append(g.order, node.ID)

		if node.Type == NodeTypeTrigger {
			g.trigger = node
			triggerCount++
		}
	}

	switch triggerCount {
	case 0:
		return nil, NewConfigurationError("workflow has no trigger node")
	case 1:
	default:
		return nil, NewConfigurationError("workflow has %d trigger nodes", triggerCount)
	}

	for _, connection := range connections {
		if _, ok := g.nodesByID[connection.FromNodeID]; !ok {
			return nil, NewConfigurationError("connection from unknown node %s", connection.FromNodeID)
		}

		if _, ok := g.nodesByID[connection.ToNodeID]; !ok {
			return nil, NewConfigurationError("connection to unknown node %s", connection.ToNodeID)
		}

		if connection.ToNodeID == g.trigger.ID {
			return nil, NewConfigurationError("trigger node %s cannot have inbound connections", g.trigger.ID)
		}

		g.outbound[connection.FromNodeID] = append(g.outbound[connection.FromNodeID], connection)
		g.inbound[connection.ToNodeID] = append(g.inbound[connection.ToNodeID], connection)
	}

	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}

	return g, nil
}

func (g *WorkflowGraph) Trigger() Node {
	return g.trigger
}

// Nodes returns the nodes in declaration order.
func (g *WorkflowGraph) Nodes() []Node {
	nodes := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, g.nodesByID[id])
	}

	return nodes
}

func (g *WorkflowGraph) Node(nodeID string) (Node, bool) {
	node, ok := g.nodesByID[nodeID]
	return node, ok
}

func (g *WorkflowGraph) Inbound(nodeID string) []Connection {
	return g.inbound[nodeID]
}

func (g *WorkflowGraph) Outbound(nodeID string) []Connection {
	return g.outbound[nodeID]
}

// OutboundOnPort returns the connections leaving nodeID from the given port.
func (g *WorkflowGraph) OutboundOnPort(nodeID string, port string) []Connection {
	connections := []Connection{}

	for _, connection := range g.outbound[nodeID] {
		if connection.SourcePort() == port {
			connections = append(connections, connection)
		}
	}

	return connections
}

// ReachableFrom returns the ids of all nodes reachable from the given connections,
// sorted for stable iteration.
func (g *WorkflowGraph) ReachableFrom(connections []Connection) []string {
	seen := map[string]struct{}{}
	queue := []string{}

	for _, connection := range connections {
		queue = append(queue, connection.ToNodeID)
	}

	for len(queue) > 0 {
		nodeID := queue[0]
		queue = queue[1:]

		if _, ok := seen[nodeID]; ok {
			continue
		}

		seen[nodeID] = struct{}{}

		for _, connection := range g.outbound[nodeID] {
			queue = append(queue, connection.ToNodeID)
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// checkAcyclic runs Kahn's algorithm; nodes left with inbound edges sit on a cycle.
func (g *WorkflowGraph) checkAcyclic() error {
	inDegree := make(map[string]int, len(g.nodesByID))
	for id := range g.nodesByID {
		inDegree[id] = len(g.inbound[id])
	}

	queue := []string{}
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++

		for _, connection := range g.outbound[id] {
			inDegree[connection.ToNodeID]--
			if inDegree[connection.ToNodeID] == 0 {
				queue = append(queue, connection.ToNodeID)
			}
		}
	}

	if visited != len(g.nodesByID) {
		return NewConfigurationError("workflow graph contains a cycle")
	}

	return nil
}
