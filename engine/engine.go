package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/parth1006/workflow-engine/actions"
	"github.com/parth1006/workflow-engine/expr"
	"github.com/parth1006/workflow-engine/types"
)

// DefaultMaxIterations is the per-run node-visit ceiling used when
// neither the engine nor the run overrides it. It is the sole
// loop-safety mechanism: the engine has no static cycle detector.
const DefaultMaxIterations = 10

// ActionResolver resolves an action name to an invocable action.
// actions.Registry is the standard implementation; tests may substitute
// their own.
type ActionResolver interface {
	Resolve(name string) (actions.Action, error)
}

// Observer receives run progress callbacks. Implementations must be
// fast or hand off to their own goroutines; the engine invokes them
// synchronously between node executions.
type Observer interface {
	// NodeExecuted is called after each node visit, successful or not.
	NodeExecuted(run *Run, entry ExecutionLog)
	// RunFinished is called exactly once, after the run reaches a
	// terminal status.
	RunFinished(run *Run)
}

// Engine drives runs from entry node to termination. A single Engine
// is safe for concurrent use: all per-run state lives in the Run.
type Engine struct {
	resolver      ActionResolver
	logger        *zap.Logger
	tracer        trace.Tracer
	maxIterations int
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxIterations sets the default per-run iteration ceiling.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// New creates an engine bound to the given action resolver. The
// resolver is injected rather than reached through a package global so
// that tests and embedders can run isolated registries side by side.
func New(resolver ActionResolver, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		resolver:      resolver,
		logger:        logger.With(zap.String("component", "graph_engine")),
		tracer:        otel.Tracer("workflow-engine/engine"),
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOption configures a single run.
type RunOption func(*runConfig)

type runConfig struct {
	maxIterations int
	observers     []Observer
}

// WithRunMaxIterations overrides the iteration ceiling for one run.
func WithRunMaxIterations(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithObserver attaches a progress observer to one run.
func WithObserver(obs Observer) RunOption {
	return func(c *runConfig) {
		if obs != nil {
			c.observers = append(c.observers, obs)
		}
	}
}

// Execute runs the graph from its entry point to a terminal status.
// The returned Run always carries the outcome: execution problems
// (unknown nodes, missing actions, failing actions, bad guards, the
// iteration ceiling) surface as terminal run statuses, not as an error
// return. The error return is reserved for a nil graph.
//
// The engine performs no up-front cross-reference validation: a
// malformed graph fails lazily at the node or edge where traversal
// first touches it.
func (e *Engine) Execute(ctx context.Context, graph *GraphDefinition, initial types.State, opts ...RunOption) (*Run, error) {
	if graph == nil {
		return nil, fmt.Errorf("graph cannot be nil")
	}

	cfg := runConfig{maxIterations: e.maxIterations}
	for _, opt := range opts {
		opt(&cfg)
	}

	run := NewRun(graph.ID, initial, cfg.maxIterations)
	run.Status = StatusRunning
	run.CurrentNode = graph.EntryPoint

	logger := e.logger.With(
		zap.String("run_id", run.RunID),
		zap.String("graph_id", graph.ID),
		zap.String("graph_name", graph.Name),
	)
	logger.Info("starting run",
		zap.String("entry_point", graph.EntryPoint),
		zap.Int("max_iterations", run.MaxIterations),
	)

	ctx, span := e.tracer.Start(ctx, "engine.Execute",
		trace.WithAttributes(
			attribute.String("workflow.graph_id", graph.ID),
			attribute.String("workflow.run_id", run.RunID),
		),
	)
	defer span.End()

	nodes := graph.nodeMap()
	adjacency := graph.adjacency()
	// Guards are compiled once per distinct condition and reused across
	// loop iterations of this run.
	compiled := make(map[string]*expr.Expr)

	current := graph.EntryPoint
	for {
		if err := ctx.Err(); err != nil {
			run.finish(StatusCancelled, types.NewError(types.ErrRunCancelled, "context cancelled").WithCause(err))
			logger.Warn("run cancelled", zap.Int("iterations", run.Iterations))
			break
		}

		if run.Iterations >= run.MaxIterations {
			run.finish(StatusIterationLimit, types.NewError(types.ErrIterationLimit,
				fmt.Sprintf("maximum iterations (%d) exceeded, possible infinite loop", run.MaxIterations)))
			logger.Warn("iteration limit exceeded", zap.Int("max_iterations", run.MaxIterations))
			break
		}

		node, ok := nodes[current]
		if !ok {
			err := types.NewError(types.ErrInvalidGraph, "node not found in graph").WithNode(current)
			run.Logs = append(run.Logs, failureEntry(current, run.State, err))
			run.finish(StatusFailed, err)
			logger.Error("unknown node", zap.String("node", current))
			break
		}
		run.CurrentNode = current

		entry, update, err := e.executeNode(ctx, node, run.State, logger)
		run.Logs = append(run.Logs, entry)
		if err != nil {
			run.finish(StatusFailed, err)
			e.notifyNode(cfg.observers, run, entry)
			logger.Error("node execution failed", zap.String("node", node.Name), zap.Error(err))
			break
		}

		run.State.Merge(update)
		run.Logs[len(run.Logs)-1].OutputState = run.State.Clone()
		run.Iterations++
		e.notifyNode(cfg.observers, run, run.Logs[len(run.Logs)-1])

		next, err := e.nextNode(adjacency[current], run.State, compiled, logger)
		if err != nil {
			// A failing guard ends the run; reflect it on the entry
			// for the node whose outgoing edges were being evaluated.
			if last := run.lastLog(); last != nil {
				last.Error = err.Error()
			}
			run.finish(StatusFailed, err)
			logger.Error("edge condition evaluation failed", zap.String("node", current), zap.Error(err))
			break
		}
		if next == "" {
			// No eligible outgoing edge: normal termination.
			run.finish(StatusCompleted, nil)
			break
		}
		current = next
	}

	span.SetAttributes(
		attribute.String("workflow.run_status", string(run.Status)),
		attribute.Int("workflow.iterations", run.Iterations),
	)
	for _, obs := range cfg.observers {
		obs.RunFinished(run)
	}

	logger.Info("run finished",
		zap.String("status", string(run.Status)),
		zap.Int("nodes_executed", len(run.Logs)),
		zap.Int("iterations", run.Iterations),
	)
	return run, nil
}

// executeNode dispatches one node visit and returns its log entry plus
// the partial state update. The entry's OutputState is filled with the
// pre-merge snapshot here; the caller replaces it with the post-merge
// snapshot on success.
func (e *Engine) executeNode(ctx context.Context, node NodeDefinition, state types.State, logger *zap.Logger) (ExecutionLog, types.State, error) {
	input := state.Clone()
	start := time.Now()

	ctx, span := e.tracer.Start(ctx, "engine.node",
		trace.WithAttributes(
			attribute.String("workflow.node", node.Name),
			attribute.String("workflow.node_type", string(node.Kind())),
		),
	)
	defer span.End()

	logger.Debug("executing node",
		zap.String("node", node.Name),
		zap.String("type", string(node.Kind())),
		zap.String("action", node.Action),
	)

	var update types.State
	var err error

	switch node.Kind() {
	case NodeTypeAction:
		var action actions.Action
		action, err = e.resolver.Resolve(node.Action)
		if err == nil {
			update, err = e.invoke(ctx, action, state)
			if err != nil {
				err = types.NewError(types.ErrActionExecution, "action failed").
					WithNode(node.Name).WithCause(err)
			}
		} else if ae, ok := err.(*types.Error); ok {
			err = ae.WithNode(node.Name)
		}
	case NodeTypePassthrough:
		// State flows through unchanged.
	default:
		err = types.NewError(types.ErrInvalidGraph,
			fmt.Sprintf("unknown node type %q", node.Type)).WithNode(node.Name)
	}

	entry := ExecutionLog{
		NodeName:    node.Name,
		Timestamp:   time.Now().UTC(),
		InputState:  input,
		OutputState: input,
		Duration:    time.Since(start),
		Success:     err == nil,
	}
	if err != nil {
		entry.Error = err.Error()
		return entry, nil, err
	}
	return entry, update, nil
}

// invoke shields the engine from panicking actions: a panic is reported
// as an action execution failure rather than tearing down the process.
func (e *Engine) invoke(ctx context.Context, action actions.Action, state types.State) (update types.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return action(ctx, state)
}

// nextNode evaluates the node's outgoing edges in declared order
// against the post-merge state and returns the destination of the
// first eligible edge, or "" when none matches. First match wins even
// when several guards would hold; declaration order is the tie-break.
func (e *Engine) nextNode(edges []EdgeDefinition, state types.State, compiled map[string]*expr.Expr, logger *zap.Logger) (string, error) {
	for _, edge := range edges {
		if edge.Condition == "" {
			return edge.To, nil
		}

		guard, ok := compiled[edge.Condition]
		if !ok {
			var err error
			guard, err = expr.Parse(edge.Condition)
			if err != nil {
				return "", err
			}
			compiled[edge.Condition] = guard
		}

		match, err := guard.Eval(state)
		if err != nil {
			return "", err
		}
		if match {
			logger.Debug("edge condition matched",
				zap.String("condition", edge.Condition),
				zap.String("to", edge.To),
			)
			return edge.To, nil
		}
	}
	return "", nil
}

func (e *Engine) notifyNode(observers []Observer, run *Run, entry ExecutionLog) {
	for _, obs := range observers {
		obs.NodeExecuted(run, entry)
	}
}

// failureEntry records an abnormal stop for a node that never executed
// (for example an edge destination missing from the graph).
func failureEntry(nodeName string, state types.State, err error) ExecutionLog {
	snapshot := state.Clone()
	return ExecutionLog{
		NodeName:    nodeName,
		Timestamp:   time.Now().UTC(),
		InputState:  snapshot,
		OutputState: snapshot,
		Success:     false,
		Error:       err.Error(),
	}
}
