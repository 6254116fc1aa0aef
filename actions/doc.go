// Package actions provides the process-wide registry mapping action
// names to invocable units of work. The registry knows nothing about
// graphs; it only stores and returns handles. It is long-lived, shared
// across runs, and safe for concurrent lookup.
package actions
