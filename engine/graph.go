package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/parth1006/workflow-engine/expr"
	"github.com/parth1006/workflow-engine/types"
)

// NodeType is the closed set of node kinds the engine dispatches on.
type NodeType string

const (
	// NodeTypeAction invokes the registered action named by the node.
	NodeTypeAction NodeType = "action"
	// NodeTypePassthrough leaves the state unchanged. It exists for
	// structural nodes (entry markers, join points, routing hubs) that
	// carry edges but no work.
	NodeTypePassthrough NodeType = "passthrough"
)

// NodeDefinition is a named step in a graph. For action nodes, Action
// names the registry entry to invoke; passthrough nodes leave it empty.
type NodeDefinition struct {
	Name   string         `json:"name"`
	Type   NodeType       `json:"type,omitempty"`
	Action string         `json:"action,omitempty"`
	Config map[string]any `json:"config,omitempty"`
}

// Kind returns the node type, defaulting absent values to action nodes
// so that JSON definitions can omit the field.
func (n NodeDefinition) Kind() NodeType {
	if n.Type == "" {
		return NodeTypeAction
	}
	return n.Type
}

// EdgeDefinition is a directed connection between two nodes. An empty
// Condition means the edge is always eligible. Declaration order is
// semantic: the engine follows the first eligible edge.
type EdgeDefinition struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Condition string `json:"condition,omitempty"`
	Label     string `json:"label,omitempty"`
}

// GraphDefinition is the static description of a workflow: nodes,
// edges, and an entry point. It is immutable once created; one graph
// may have many runs.
type GraphDefinition struct {
	ID          string           `json:"graph_id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Nodes       []NodeDefinition `json:"nodes"`
	Edges       []EdgeDefinition `json:"edges"`
	EntryPoint  string           `json:"entry_point"`
	CreatedAt   time.Time        `json:"created_at"`
}

// NewGraph creates a graph definition with a fresh identifier.
func NewGraph(name, description string, nodes []NodeDefinition, edges []EdgeDefinition, entryPoint string) *GraphDefinition {
	return &GraphDefinition{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Nodes:       nodes,
		Edges:       edges,
		EntryPoint:  entryPoint,
		CreatedAt:   time.Now().UTC(),
	}
}

// Validate checks the graph invariants: node names are unique, the
// entry point names an existing node, every edge endpoint names an
// existing node, action nodes carry an action name, and every guard
// condition parses. The engine itself performs no up-front validation
// beyond resolving names during traversal, so callers that accept
// graph definitions from outside should validate at creation time.
func (g *GraphDefinition) Validate() error {
	if len(g.Nodes) == 0 {
		return types.NewError(types.ErrInvalidGraph, "graph has no nodes")
	}

	names := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.Name == "" {
			return types.NewError(types.ErrInvalidGraph, "node with empty name")
		}
		if _, dup := names[n.Name]; dup {
			return types.NewError(types.ErrInvalidGraph,
				fmt.Sprintf("duplicate node name %q", n.Name))
		}
		names[n.Name] = struct{}{}

		switch n.Kind() {
		case NodeTypeAction:
			if n.Action == "" {
				return types.NewError(types.ErrInvalidGraph,
					fmt.Sprintf("action node %q has no action name", n.Name))
			}
		case NodeTypePassthrough:
			// No action required.
		default:
			return types.NewError(types.ErrInvalidGraph,
				fmt.Sprintf("node %q has unknown type %q", n.Name, n.Type))
		}
	}

	if g.EntryPoint == "" {
		return types.NewError(types.ErrInvalidGraph, "graph has no entry point")
	}
	if _, ok := names[g.EntryPoint]; !ok {
		return types.NewError(types.ErrInvalidGraph,
			fmt.Sprintf("entry point %q not found in nodes", g.EntryPoint))
	}

	for i, e := range g.Edges {
		if _, ok := names[e.From]; !ok {
			return types.NewError(types.ErrInvalidGraph,
				fmt.Sprintf("edge %d: from-node %q not found in nodes", i, e.From))
		}
		if _, ok := names[e.To]; !ok {
			return types.NewError(types.ErrInvalidGraph,
				fmt.Sprintf("edge %d: to-node %q not found in nodes", i, e.To))
		}
		if e.Condition != "" {
			if _, err := expr.Parse(e.Condition); err != nil {
				return fmt.Errorf("edge %d (%s -> %s): %w", i, e.From, e.To, err)
			}
		}
	}

	return nil
}

// nodeMap indexes nodes by name for traversal.
func (g *GraphDefinition) nodeMap() map[string]NodeDefinition {
	m := make(map[string]NodeDefinition, len(g.Nodes))
	for _, n := range g.Nodes {
		m[n.Name] = n
	}
	return m
}

// adjacency groups outgoing edges by source node, preserving the
// graph's declared edge order within each group.
func (g *GraphDefinition) adjacency() map[string][]EdgeDefinition {
	m := make(map[string][]EdgeDefinition)
	for _, e := range g.Edges {
		m[e.From] = append(m[e.From], e)
	}
	return m
}
