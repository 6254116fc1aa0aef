package codereview

import (
	"fmt"

	"github.com/parth1006/workflow-engine/actions"
	"github.com/parth1006/workflow-engine/engine"
)

// Registered action names.
const (
	ActionExtractFunctions    = "extract_functions"
	ActionCheckComplexity     = "check_complexity"
	ActionDetectIssues        = "detect_issues"
	ActionSuggestImprovements = "suggest_improvements"
	ActionCalculateQuality    = "calculate_quality"
)

// loopCondition keeps the run cycling through suggestions until the
// quality threshold is met or the improvement rounds are exhausted.
var loopCondition = fmt.Sprintf(
	"quality_passed == false && improvement_iteration < %d", maxImprovementRounds)

// Register installs the code review actions on the registry under
// their canonical names.
func Register(registry *actions.Registry) {
	registry.Register(ActionExtractFunctions, ExtractFunctions)
	registry.Register(ActionCheckComplexity, CheckComplexity)
	registry.Register(ActionDetectIssues, DetectIssues)
	registry.Register(ActionSuggestImprovements, SuggestImprovements)
	registry.Register(ActionCalculateQuality, CalculateQuality)
}

// Graph builds the code review workflow definition. Each call returns
// a fresh graph with its own identifier; the node and edge layout is
// fixed.
func Graph() *engine.GraphDefinition {
	nodes := []engine.NodeDefinition{
		{Name: "extract", Action: ActionExtractFunctions},
		{Name: "complexity", Action: ActionCheckComplexity},
		{Name: "issues", Action: ActionDetectIssues},
		{Name: "suggestions", Action: ActionSuggestImprovements},
		{Name: "quality", Action: ActionCalculateQuality},
	}
	edges := []engine.EdgeDefinition{
		{From: "extract", To: "complexity"},
		{From: "complexity", To: "issues"},
		{From: "issues", To: "suggestions"},
		{From: "suggestions", To: "quality"},
		{
			From:      "quality",
			To:        "suggestions",
			Condition: loopCondition,
			Label:     "continue improving",
		},
	}
	return engine.NewGraph(
		"Code Review",
		"analyzes Go source and iterates on improvement suggestions until the quality threshold is met",
		nodes, edges, "extract")
}
