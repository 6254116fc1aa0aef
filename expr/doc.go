// Package expr implements the guard-condition language for workflow
// edges. Conditions are parsed once into an expression tree and walked
// against the workflow state at traversal time.
//
// The grammar is deliberately small: comparisons between a state field
// path and a literal, combined with and/or/not and parentheses.
//
//	quality_passed == false && improvement_iteration < 5
//	metrics.score >= 8 || !needs_review
//	status != "failed"
//
// Evaluation is a pure function of (expression, state). It cannot
// mutate state, call functions, or reach outside the supplied snapshot,
// which closes the arbitrary-code-evaluation hole that free-form
// condition strings would open.
package expr
