// Package engine executes workflows expressed as directed graphs of
// named nodes connected by optionally-guarded edges.
//
// The engine walks a graph from its entry point, dispatches each node's
// registered action, shallow-merges the action's partial update into
// the shared workflow state, and picks the next node by evaluating
// outgoing edge guards in declared order (first match wins). Back-edges
// realize loops; a per-run iteration ceiling is the sole loop-safety
// mechanism. A run terminates when a node has no eligible outgoing edge
// (completed), when any action or guard fails (failed), when the
// ceiling is hit, or when the caller's context is cancelled.
//
// Each run executes as one sequential unit of work: nodes execute
// strictly one at a time, and concurrent runs share nothing but the
// action registry.
package engine
