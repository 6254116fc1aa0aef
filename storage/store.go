package storage

import (
	"context"

	"github.com/parth1006/workflow-engine/engine"
	"github.com/parth1006/workflow-engine/types"
)

// ErrNotFound is returned when a graph or run identifier does not
// exist in the backing store.
var ErrNotFound = types.NewError(types.ErrNotFound, "record not found")

// Store is the persistence contract shared by all backends. Runs are
// written once when started and updated in place as they progress;
// graphs are immutable after creation.
type Store interface {
	SaveGraph(ctx context.Context, graph *engine.GraphDefinition) error
	GetGraph(ctx context.Context, graphID string) (*engine.GraphDefinition, error)
	ListGraphs(ctx context.Context) ([]*engine.GraphDefinition, error)
	DeleteGraph(ctx context.Context, graphID string) error

	SaveRun(ctx context.Context, run *engine.Run) error
	UpdateRun(ctx context.Context, run *engine.Run) error
	GetRun(ctx context.Context, runID string) (*engine.Run, error)
	// ListRuns returns the most recent runs for a graph, newest first.
	// A non-positive limit applies the backend default.
	ListRuns(ctx context.Context, graphID string, limit int) ([]*engine.Run, error)

	Ping(ctx context.Context) error
	Close() error
}

// DefaultListLimit bounds ListRuns when the caller does not.
const DefaultListLimit = 50
