package api

import (
	"time"

	"github.com/parth1006/workflow-engine/engine"
	"github.com/parth1006/workflow-engine/types"
)

// CreateGraphRequest is the body of POST /api/v1/graphs. Node and edge
// definitions use the engine's wire format directly.
type CreateGraphRequest struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description,omitempty"`
	Nodes       []engine.NodeDefinition `json:"nodes"`
	Edges       []engine.EdgeDefinition `json:"edges"`
	EntryPoint  string                  `json:"entry_point"`
}

// GraphSummary is the list-view projection of a graph definition.
type GraphSummary struct {
	GraphID     string    `json:"graph_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	EntryPoint  string    `json:"entry_point"`
	NodeCount   int       `json:"node_count"`
	EdgeCount   int       `json:"edge_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewGraphSummary projects a graph definition into its list view.
func NewGraphSummary(g *engine.GraphDefinition) GraphSummary {
	return GraphSummary{
		GraphID:     g.ID,
		Name:        g.Name,
		Description: g.Description,
		EntryPoint:  g.EntryPoint,
		NodeCount:   len(g.Nodes),
		EdgeCount:   len(g.Edges),
		CreatedAt:   g.CreatedAt,
	}
}

// ListGraphsResponse is the body of GET /api/v1/graphs.
type ListGraphsResponse struct {
	Graphs []GraphSummary `json:"graphs"`
	Count  int            `json:"count"`
}

// RunGraphRequest is the body of POST /api/v1/graphs/run. MaxIterations
// overrides the engine's configured ceiling when positive.
type RunGraphRequest struct {
	GraphID       string      `json:"graph_id"`
	InitialState  types.State `json:"initial_state,omitempty"`
	MaxIterations int         `json:"max_iterations,omitempty"`
}

// RunSummary is the list-view projection of a run record. Execution
// logs and state are omitted; fetch the run by ID for the full record.
type RunSummary struct {
	RunID       string           `json:"run_id"`
	GraphID     string           `json:"graph_id"`
	Status      engine.RunStatus `json:"status"`
	Iterations  int              `json:"iteration_count"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// NewRunSummary projects a run into its list view.
func NewRunSummary(r *engine.Run) RunSummary {
	return RunSummary{
		RunID:       r.RunID,
		GraphID:     r.GraphID,
		Status:      r.Status,
		Iterations:  r.Iterations,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
}

// ListRunsResponse is the body of GET /api/v1/graphs/{id}/runs.
type ListRunsResponse struct {
	GraphID string       `json:"graph_id"`
	Runs    []RunSummary `json:"runs"`
	Count   int          `json:"count"`
}

// StreamMessage is one frame on the WebSocket execution log feed. Kind
// is "log" for node visits and "done" for the closing frame carrying
// the terminal run summary.
type StreamMessage struct {
	Kind  string               `json:"kind"`
	Log   *engine.ExecutionLog `json:"log,omitempty"`
	Run   *RunSummary          `json:"run,omitempty"`
	Error string               `json:"error,omitempty"`
}
