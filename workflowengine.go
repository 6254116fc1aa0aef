// Package workflowengine provides a top-level convenience entry point
// for embedding the engine with minimal boilerplate.
//
// Usage:
//
//	import workflowengine "github.com/parth1006/workflow-engine"
//
//	eng, registry := workflowengine.New(logger)
//	registry.Register("greet", greetAction)
//	run, err := eng.Execute(ctx, graph, workflowengine.State{"name": "ada"})
//
// This is a thin wrapper around the engine and actions packages; both
// produce identical results. Use this package when you prefer the
// shorter import path.
package workflowengine

import (
	"go.uber.org/zap"

	"github.com/parth1006/workflow-engine/actions"
	"github.com/parth1006/workflow-engine/engine"
	"github.com/parth1006/workflow-engine/types"
)

// Re-exported core types so embedders rarely need deeper imports.
type (
	// State is the mutable key-value data threaded through a run.
	State = types.State
	// Graph is a static workflow definition.
	Graph = engine.GraphDefinition
	// Node is a named step within a graph.
	Node = engine.NodeDefinition
	// Edge is a directed, optionally guarded connection between nodes.
	Edge = engine.EdgeDefinition
	// Run is the record of one graph execution.
	Run = engine.Run
	// Action is an invocable unit of work bound to a node.
	Action = actions.Action
)

// NewGraph creates a graph definition with a fresh identifier.
var NewGraph = engine.NewGraph

// New creates an engine backed by an empty action registry. Register
// actions on the returned registry before executing graphs.
func New(logger *zap.Logger, opts ...engine.Option) (*engine.Engine, *actions.Registry) {
	registry := actions.NewRegistry(logger)
	return engine.New(registry, logger, opts...), registry
}
