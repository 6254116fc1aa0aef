package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parth1006/workflow-engine/actions"
	"github.com/parth1006/workflow-engine/types"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestEngine(t *testing.T, register func(r *actions.Registry)) *Engine {
	t.Helper()
	r := actions.NewRegistry(zap.NewNop())
	if register != nil {
		register(r)
	}
	return New(r, zap.NewNop())
}

func noopAction(ctx context.Context, state types.State) (types.State, error) {
	return types.State{}, nil
}

func graphOf(entry string, nodes []NodeDefinition, edges []EdgeDefinition) *GraphDefinition {
	return NewGraph("test-graph", "", nodes, edges, entry)
}

// recordingObserver captures observer callbacks for assertions.
type recordingObserver struct {
	nodes    []string
	finished []RunStatus
}

func (o *recordingObserver) NodeExecuted(run *Run, entry ExecutionLog) {
	o.nodes = append(o.nodes, entry.NodeName)
}

func (o *recordingObserver) RunFinished(run *Run) {
	o.finished = append(o.finished, run.Status)
}

// ---------------------------------------------------------------------------
// Scenario A: two-node chain, unconditional edge, empty updates
// ---------------------------------------------------------------------------

func TestExecute_TwoNodeChain(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r *actions.Registry) {
		r.Register("noop", noopAction)
	})
	g := graphOf("entry",
		[]NodeDefinition{{Name: "entry", Action: "noop"}, {Name: "exit", Action: "noop"}},
		[]EdgeDefinition{{From: "entry", To: "exit"}},
	)

	initial := types.State{"seed": 42}
	run, err := e.Execute(context.Background(), g, initial)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, run.Status)
	require.Len(t, run.Logs, 2)
	assert.Equal(t, "entry", run.Logs[0].NodeName)
	assert.Equal(t, "exit", run.Logs[1].NodeName)
	assert.Equal(t, types.State{"seed": 42}, run.State)
	assert.NotNil(t, run.CompletedAt)
	assert.Empty(t, run.Error)
}

// ---------------------------------------------------------------------------
// Scenario B: self-loop guarded by iterations < 3
// ---------------------------------------------------------------------------

func TestExecute_GuardedSelfLoop(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r *actions.Registry) {
		r.Register("increment", func(ctx context.Context, state types.State) (types.State, error) {
			n, _ := state["iterations"].(int)
			return types.State{"iterations": n + 1}, nil
		})
	})
	g := graphOf("loop",
		[]NodeDefinition{{Name: "loop", Action: "increment"}},
		[]EdgeDefinition{{From: "loop", To: "loop", Condition: "iterations < 3"}},
	)

	run, err := e.Execute(context.Background(), g, types.State{"iterations": 0})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, run.Status)
	assert.Len(t, run.Logs, 3)
	assert.Equal(t, 3, run.State["iterations"])
	assert.Equal(t, 3, run.Iterations)
}

// ---------------------------------------------------------------------------
// Scenario C: unregistered action
// ---------------------------------------------------------------------------

func TestExecute_ActionNotFound(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	g := graphOf("only",
		[]NodeDefinition{{Name: "only", Action: "missing"}},
		nil,
	)

	run, err := e.Execute(context.Background(), g, types.State{})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, run.Status)
	require.Len(t, run.Logs, 1)
	assert.False(t, run.Logs[0].Success)
	assert.Contains(t, run.Logs[0].Error, "ACTION_NOT_FOUND")
	assert.Contains(t, run.Error, "ACTION_NOT_FOUND")
}

// ---------------------------------------------------------------------------
// Scenario D: guard referencing a key never set
// ---------------------------------------------------------------------------

func TestExecute_ConditionMissingKey(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r *actions.Registry) {
		r.Register("noop", noopAction)
	})
	g := graphOf("a",
		[]NodeDefinition{{Name: "a", Action: "noop"}, {Name: "b", Action: "noop"}},
		[]EdgeDefinition{{From: "a", To: "b", Condition: "never_set == 1"}},
	)

	run, err := e.Execute(context.Background(), g, types.State{})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, run.Status)
	assert.Contains(t, run.Error, "CONDITION_EVALUATION")
	// The abnormal stop is reflected on the last log entry too.
	require.Len(t, run.Logs, 1)
	assert.Contains(t, run.Logs[0].Error, "never_set")
}

// ---------------------------------------------------------------------------
// Scenario E: always-true loop hits the ceiling
// ---------------------------------------------------------------------------

func TestExecute_IterationLimit(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r *actions.Registry) {
		r.Register("noop", noopAction)
	})
	g := graphOf("loop",
		[]NodeDefinition{{Name: "loop", Action: "noop"}},
		[]EdgeDefinition{{From: "loop", To: "loop"}},
	)

	run, err := e.Execute(context.Background(), g, types.State{}, WithRunMaxIterations(10))
	require.NoError(t, err)

	assert.Equal(t, StatusIterationLimit, run.Status)
	assert.Len(t, run.Logs, 10)
	assert.Equal(t, 10, run.Iterations)
	assert.Contains(t, run.Error, "ITERATION_LIMIT_EXCEEDED")
}

// ---------------------------------------------------------------------------
// First-match edge semantics
// ---------------------------------------------------------------------------

func TestExecute_FirstMatchingEdgeWins(t *testing.T) {
	t.Parallel()

	var visited []string
	record := func(name string) actions.Action {
		return func(ctx context.Context, state types.State) (types.State, error) {
			visited = append(visited, name)
			return types.State{}, nil
		}
	}

	e := newTestEngine(t, func(r *actions.Registry) {
		r.Register("start", record("start"))
		r.Register("first", record("first"))
		r.Register("second", record("second"))
	})
	// Both guards hold; the earlier declared edge must win.
	g := graphOf("start",
		[]NodeDefinition{
			{Name: "start", Action: "start"},
			{Name: "first", Action: "first"},
			{Name: "second", Action: "second"},
		},
		[]EdgeDefinition{
			{From: "start", To: "first", Condition: "x > 0"},
			{From: "start", To: "second", Condition: "x > -1"},
		},
	)

	run, err := e.Execute(context.Background(), g, types.State{"x": 1})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, []string{"start", "first"}, visited)
}

func TestExecute_UnconditionalEdgeAlwaysEligible(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r *actions.Registry) {
		r.Register("noop", noopAction)
	})
	g := graphOf("a",
		[]NodeDefinition{{Name: "a", Action: "noop"}, {Name: "b", Action: "noop"}, {Name: "c", Action: "noop"}},
		[]EdgeDefinition{
			{From: "a", To: "b", Condition: "x > 100"},
			{From: "a", To: "c"},
		},
	)

	run, err := e.Execute(context.Background(), g, types.State{"x": 1})
	require.NoError(t, err)

	require.Len(t, run.Logs, 2)
	assert.Equal(t, "c", run.Logs[1].NodeName)
}

// ---------------------------------------------------------------------------
// State merge semantics
// ---------------------------------------------------------------------------

func TestExecute_ShallowMerge(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r *actions.Registry) {
		r.Register("set_a", func(ctx context.Context, state types.State) (types.State, error) {
			return types.State{"a": 1}, nil
		})
		r.Register("overwrite_b", func(ctx context.Context, state types.State) (types.State, error) {
			return types.State{"b": 3}, nil
		})
	})
	g := graphOf("one",
		[]NodeDefinition{{Name: "one", Action: "set_a"}, {Name: "two", Action: "overwrite_b"}},
		[]EdgeDefinition{{From: "one", To: "two"}},
	)

	run, err := e.Execute(context.Background(), g, types.State{"b": 2})
	require.NoError(t, err)

	assert.Equal(t, types.State{"a": 1, "b": 3}, run.State)
	// Intermediate snapshot: after node one, b not yet overwritten.
	assert.Equal(t, types.State{"a": 1, "b": 2}, run.Logs[0].OutputState)
}

func TestExecute_LogSnapshotsAreIsolated(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r *actions.Registry) {
		r.Register("mutate", func(ctx context.Context, state types.State) (types.State, error) {
			return types.State{"list": []any{1}}, nil
		})
		r.Register("grow", func(ctx context.Context, state types.State) (types.State, error) {
			list := state["list"].([]any)
			return types.State{"list": append(list, 2)}, nil
		})
	})
	g := graphOf("a",
		[]NodeDefinition{{Name: "a", Action: "mutate"}, {Name: "b", Action: "grow"}},
		[]EdgeDefinition{{From: "a", To: "b"}},
	)

	run, err := e.Execute(context.Background(), g, types.State{})
	require.NoError(t, err)

	// The first entry's snapshot must not see the later append.
	assert.Equal(t, []any{1}, run.Logs[0].OutputState["list"])
	assert.Equal(t, []any{1}, run.Logs[1].InputState["list"])
	assert.Equal(t, []any{1, 2}, run.Logs[1].OutputState["list"])
}

// ---------------------------------------------------------------------------
// Failure modes
// ---------------------------------------------------------------------------

func TestExecute_ActionError(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk on fire")
	e := newTestEngine(t, func(r *actions.Registry) {
		r.Register("ok", noopAction)
		r.Register("explode", func(ctx context.Context, state types.State) (types.State, error) {
			return nil, boom
		})
	})
	g := graphOf("a",
		[]NodeDefinition{{Name: "a", Action: "ok"}, {Name: "b", Action: "explode"}},
		[]EdgeDefinition{{From: "a", To: "b"}},
	)

	run, err := e.Execute(context.Background(), g, types.State{"keep": true})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, run.Status)
	require.Len(t, run.Logs, 2)
	assert.True(t, run.Logs[0].Success)
	assert.False(t, run.Logs[1].Success)
	assert.Contains(t, run.Logs[1].Error, "disk on fire")
	// Failed node leaves the state unchanged.
	assert.Equal(t, true, run.State["keep"])
}

func TestExecute_ActionPanicIsCaptured(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r *actions.Registry) {
		r.Register("panic", func(ctx context.Context, state types.State) (types.State, error) {
			panic("nil map write")
		})
	})
	g := graphOf("p", []NodeDefinition{{Name: "p", Action: "panic"}}, nil)

	run, err := e.Execute(context.Background(), g, types.State{})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, run.Status)
	assert.Contains(t, run.Error, "panicked")
}

func TestExecute_UnknownEdgeDestination(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r *actions.Registry) {
		r.Register("noop", noopAction)
	})
	// Graph deliberately skips Validate: the dangling edge must surface
	// lazily during traversal as a failed run.
	g := graphOf("a",
		[]NodeDefinition{{Name: "a", Action: "noop"}},
		[]EdgeDefinition{{From: "a", To: "ghost"}},
	)

	run, err := e.Execute(context.Background(), g, types.State{})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, run.Status)
	assert.Contains(t, run.Error, "INVALID_GRAPH_REFERENCE")
	require.Len(t, run.Logs, 2)
	assert.Equal(t, "ghost", run.Logs[1].NodeName)
	assert.False(t, run.Logs[1].Success)
}

func TestExecute_MissingEntryPoint(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	g := graphOf("ghost", []NodeDefinition{{Name: "real", Action: "noop"}}, nil)

	run, err := e.Execute(context.Background(), g, types.State{})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Contains(t, run.Error, "INVALID_GRAPH_REFERENCE")
}

func TestExecute_NilGraph(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	_, err := e.Execute(context.Background(), nil, types.State{})
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Cancellation
// ---------------------------------------------------------------------------

func TestExecute_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	e := newTestEngine(t, func(r *actions.Registry) {
		r.Register("cancel_after_two", func(ctx context.Context, state types.State) (types.State, error) {
			n, _ := state["n"].(int)
			if n+1 >= 2 {
				cancel()
			}
			return types.State{"n": n + 1}, nil
		})
	})
	g := graphOf("loop",
		[]NodeDefinition{{Name: "loop", Action: "cancel_after_two"}},
		[]EdgeDefinition{{From: "loop", To: "loop"}},
	)

	run, err := e.Execute(ctx, g, types.State{}, WithRunMaxIterations(100))
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, run.Status)
	assert.Equal(t, 2, run.Iterations)
	assert.Contains(t, run.Error, "RUN_CANCELLED")
}

// ---------------------------------------------------------------------------
// Passthrough nodes and observers
// ---------------------------------------------------------------------------

func TestExecute_PassthroughNode(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r *actions.Registry) {
		r.Register("noop", noopAction)
	})
	g := graphOf("start",
		[]NodeDefinition{
			{Name: "start", Type: NodeTypePassthrough},
			{Name: "work", Action: "noop"},
		},
		[]EdgeDefinition{{From: "start", To: "work"}},
	)

	run, err := e.Execute(context.Background(), g, types.State{"v": 1})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, run.Status)
	require.Len(t, run.Logs, 2)
	assert.Equal(t, types.State{"v": 1}, run.Logs[0].OutputState)
}

func TestExecute_ObserverCallbacks(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	e := newTestEngine(t, func(r *actions.Registry) {
		r.Register("noop", noopAction)
	})
	g := graphOf("a",
		[]NodeDefinition{{Name: "a", Action: "noop"}, {Name: "b", Action: "noop"}},
		[]EdgeDefinition{{From: "a", To: "b"}},
	)

	run, err := e.Execute(context.Background(), g, types.State{}, WithObserver(obs))
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, []string{"a", "b"}, obs.nodes)
	assert.Equal(t, []RunStatus{StatusCompleted}, obs.finished)
}

// ---------------------------------------------------------------------------
// Determinism
// ---------------------------------------------------------------------------

func TestExecute_Deterministic(t *testing.T) {
	t.Parallel()

	build := func() (*Engine, *GraphDefinition) {
		e := newTestEngine(t, func(r *actions.Registry) {
			r.Register("step", func(ctx context.Context, state types.State) (types.State, error) {
				n, _ := state["n"].(int)
				return types.State{"n": n + 1}, nil
			})
		})
		g := graphOf("loop",
			[]NodeDefinition{{Name: "loop", Action: "step"}},
			[]EdgeDefinition{{From: "loop", To: "loop", Condition: "n < 5"}},
		)
		return e, g
	}

	e, g := build()
	first, err := e.Execute(context.Background(), g, types.State{"n": 0})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		again, err := e.Execute(context.Background(), g, types.State{"n": 0})
		require.NoError(t, err)
		assert.Equal(t, first.Status, again.Status)
		assert.Equal(t, first.State, again.State)
		require.Equal(t, len(first.Logs), len(again.Logs))
		for j := range first.Logs {
			assert.Equal(t, first.Logs[j].NodeName, again.Logs[j].NodeName)
			assert.Equal(t, first.Logs[j].InputState, again.Logs[j].InputState)
			assert.Equal(t, first.Logs[j].OutputState, again.Logs[j].OutputState)
		}
	}
}

func TestExecute_InitialStateNotAliased(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r *actions.Registry) {
		r.Register("set", func(ctx context.Context, state types.State) (types.State, error) {
			return types.State{"added": true}, nil
		})
	})
	g := graphOf("n", []NodeDefinition{{Name: "n", Action: "set"}}, nil)

	initial := types.State{"orig": 1}
	run, err := e.Execute(context.Background(), g, initial)
	require.NoError(t, err)

	assert.Equal(t, types.State{"orig": 1}, initial)
	assert.Equal(t, true, run.State["added"])
}

func TestExecute_DurationsRecorded(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, func(r *actions.Registry) {
		r.Register("slow", func(ctx context.Context, state types.State) (types.State, error) {
			time.Sleep(5 * time.Millisecond)
			return types.State{}, nil
		})
	})
	g := graphOf("n", []NodeDefinition{{Name: "n", Action: "slow"}}, nil)

	run, err := e.Execute(context.Background(), g, types.State{})
	require.NoError(t, err)
	require.Len(t, run.Logs, 1)
	assert.GreaterOrEqual(t, run.Logs[0].Duration, 5*time.Millisecond)
}
