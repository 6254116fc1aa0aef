package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/parth1006/workflow-engine/types"
)

// RunStatus is the lifecycle state of a run. Transitions are monotonic:
// pending -> running -> one terminal status, never out of a terminal.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	// StatusIterationLimit signals the safety ceiling was hit. Distinct
	// from both completion and failure so callers can tell a runaway
	// loop from a normal stop.
	StatusIterationLimit RunStatus = "iteration_limit_exceeded"
	// StatusCancelled signals the caller's context was cancelled
	// between node executions.
	StatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusIterationLimit, StatusCancelled:
		return true
	}
	return false
}

// ExecutionLog records one node visit: the state before invocation, the
// state after the merge, wall-clock duration, and the error if the
// visit failed. Entries are append-only and ordered by visitation;
// node names repeat under looping.
type ExecutionLog struct {
	NodeName    string      `json:"node_name"`
	Timestamp   time.Time   `json:"timestamp"`
	InputState  types.State `json:"input_state"`
	OutputState types.State `json:"output_state"`
	Duration    time.Duration `json:"duration"`
	Success     bool        `json:"success"`
	Error       string      `json:"error,omitempty"`
}

// Run identifies one execution of a graph. It is created at run start,
// mutated only by the engine executing it, and frozen once the status
// reaches a terminal value.
type Run struct {
	RunID         string         `json:"run_id"`
	GraphID       string         `json:"graph_id"`
	Status        RunStatus      `json:"status"`
	CurrentNode   string         `json:"current_node,omitempty"`
	State         types.State    `json:"current_state"`
	Logs          []ExecutionLog `json:"execution_logs"`
	Iterations    int            `json:"iteration_count"`
	MaxIterations int            `json:"max_iterations"`
	Error         string         `json:"error,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// NewRun creates a pending run for the given graph.
func NewRun(graphID string, initial types.State, maxIterations int) *Run {
	return &Run{
		RunID:         uuid.NewString(),
		GraphID:       graphID,
		Status:        StatusPending,
		State:         initial.Clone(),
		MaxIterations: maxIterations,
		StartedAt:     time.Now().UTC(),
	}
}

// finish moves the run to a terminal status and stamps completion.
func (r *Run) finish(status RunStatus, err error) {
	r.Status = status
	if err != nil {
		r.Error = err.Error()
	}
	now := time.Now().UTC()
	r.CompletedAt = &now
}

// lastLog returns the most recent log entry, or nil when none exists.
func (r *Run) lastLog() *ExecutionLog {
	if len(r.Logs) == 0 {
		return nil
	}
	return &r.Logs[len(r.Logs)-1]
}
