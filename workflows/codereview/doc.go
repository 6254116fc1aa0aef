// Package codereview is a complete example workflow built on the
// engine: it statically analyzes Go source code held in run state and
// iterates on improvement suggestions until a quality threshold is met
// or the improvement rounds run out.
//
// The graph is five action nodes in a line with one loop edge:
//
//	extract -> complexity -> issues -> suggestions -> quality
//	                             ^_________________________|
//	        (quality_passed == false && improvement_iteration < 5)
//
// Each action is a pure function of state: extract_functions parses
// the source, check_complexity scores decision points, detect_issues
// flags smells, suggest_improvements groups them into advice, and
// calculate_quality produces the 0-10 score that drives the loop.
package codereview
