// Package types defines the shared domain types of the workflow engine:
// the workflow state threaded through a run and the structured error
// model used across the engine, registry, evaluator, storage, and API
// layers.
//
// The package is intentionally leaf-level: it imports nothing from the
// rest of the module so that every other package can depend on it.
package types
