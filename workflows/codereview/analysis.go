package codereview

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strings"

	"github.com/parth1006/workflow-engine/types"
)

// Analysis thresholds. A function is "long" past 50 lines and "very
// long" past 100; complexity above 10 is high and above 7 moderate;
// nesting past 4 levels is flagged. The quality loop stops once the
// score reaches 8 or after 5 improvement rounds.
const (
	longFunctionLines     = 50
	veryLongFunctionLines = 100
	highComplexity        = 10
	moderateComplexity    = 7
	deepNestingLevels     = 4
	qualityThreshold      = 8.0
	maxImprovementRounds  = 5
)

// ExtractFunctions parses the Go source under the "code" state key and
// records one entry per top-level function: name, position, length,
// parameter names, nesting depth, and whether it carries a doc comment.
// A source that does not parse yields an empty function list and a
// "parse_error" entry instead of failing the run.
func ExtractFunctions(_ context.Context, state types.State) (types.State, error) {
	code, _ := state["code"].(string)

	fset, file, offset, err := parseSource(code)
	if err != nil {
		return types.State{
			"functions":     []map[string]any{},
			"num_functions": 0,
			"parse_error":   err.Error(),
		}, nil
	}

	// Positions refer to the source that was actually parsed, which may
	// carry a synthetic package clause in front of a bare snippet.
	lines := strings.Split(parsedSource(code, offset), "\n")
	functions := make([]map[string]any, 0, len(file.Decls))
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		start := fset.Position(fn.Pos()).Line
		end := fset.Position(fn.End()).Line
		functions = append(functions, map[string]any{
			"name":        fn.Name.Name,
			"line":        start - offset,
			"num_lines":   end - start + 1,
			"code":        strings.Join(lines[start-1:end], "\n"),
			"params":      paramNames(fn),
			"has_doc":     fn.Doc != nil,
			"max_nesting": functionNesting(fn),
		})
	}

	return types.State{
		"functions":     functions,
		"num_functions": len(functions),
	}, nil
}

// CheckComplexity scores each extracted function by its decision
// points (if, for, range, switch cases, select cases, && and ||) plus
// a base of one, and records the average across functions.
func CheckComplexity(_ context.Context, state types.State) (types.State, error) {
	code, _ := state["code"].(string)
	functions := functionRecords(state)

	scores := make(map[string]int)
	if _, file, _, err := parseSource(code); err == nil {
		for _, decl := range file.Decls {
			if fn, ok := decl.(*ast.FuncDecl); ok {
				scores[fn.Name.Name] = functionComplexity(fn)
			}
		}
	}

	updated := make([]map[string]any, 0, len(functions))
	total := 0
	for _, fn := range functions {
		rec := cloneRecord(fn)
		score, ok := scores[stringField(rec, "name")]
		if !ok {
			score = 1
		}
		rec["complexity"] = score
		total += score
		updated = append(updated, rec)
	}

	avg := 0.0
	if len(updated) > 0 {
		avg = round2(float64(total) / float64(len(updated)))
	}

	return types.State{
		"functions":      updated,
		"avg_complexity": avg,
	}, nil
}

// DetectIssues flags code smells on the analyzed functions: length
// past the long-function thresholds, high or moderate complexity, deep
// nesting, and missing doc comments. Each issue carries a severity
// that the quality score later weighs.
func DetectIssues(_ context.Context, state types.State) (types.State, error) {
	functions := functionRecords(state)
	issues := make([]map[string]any, 0)

	for _, fn := range functions {
		name := stringField(fn, "name")
		numLines := intField(fn, "num_lines")
		complexity := intField(fn, "complexity")
		nesting := intField(fn, "max_nesting")
		hasDoc, _ := fn["has_doc"].(bool)

		if numLines > longFunctionLines {
			issues = append(issues, issue("long_function", name, "medium",
				fmt.Sprintf("function %q is too long (%d lines), consider breaking it up", name, numLines)))
		}

		switch {
		case complexity > highComplexity:
			issues = append(issues, issue("high_complexity", name, "high",
				fmt.Sprintf("function %q has high complexity (%d), simplify the logic", name, complexity)))
		case complexity > moderateComplexity:
			issues = append(issues, issue("moderate_complexity", name, "medium",
				fmt.Sprintf("function %q has moderate complexity (%d), could be simplified", name, complexity)))
		}

		if nesting > deepNestingLevels {
			issues = append(issues, issue("deep_nesting", name, "medium",
				fmt.Sprintf("function %q nests %d levels deep, flatten with early returns", name, nesting)))
		}

		if !hasDoc {
			issues = append(issues, issue("missing_doc", name, "low",
				fmt.Sprintf("function %q has no doc comment", name)))
		}
	}

	return types.State{
		"issues":      issues,
		"issue_count": len(issues),
	}, nil
}

// SuggestImprovements turns the detected issues into one suggestion
// per issue category and increments the improvement round counter that
// bounds the quality loop.
func SuggestImprovements(_ context.Context, state types.State) (types.State, error) {
	seen := make(map[string]bool)
	for _, is := range issueRecords(state) {
		seen[stringField(is, "type")] = true
	}

	suggestions := make([]map[string]any, 0, 4)
	if seen["long_function"] {
		suggestions = append(suggestions, suggestion("refactoring", "high",
			"break long functions into smaller single-responsibility functions"))
	}
	if seen["high_complexity"] || seen["moderate_complexity"] {
		suggestions = append(suggestions, suggestion("simplification", "high",
			"reduce complexity by extracting nested logic into helpers"))
	}
	if seen["deep_nesting"] {
		suggestions = append(suggestions, suggestion("structure", "medium",
			"flatten nested blocks with early returns or guard clauses"))
	}
	if seen["missing_doc"] {
		suggestions = append(suggestions, suggestion("documentation", "low",
			"add doc comments stating what each function does"))
	}

	return types.State{
		"suggestions":           suggestions,
		"suggestion_count":      len(suggestions),
		"improvement_iteration": intFrom(state, "improvement_iteration") + 1,
	}, nil
}

// CalculateQuality reduces the analysis to a 0-10 score: issues cost
// by severity, high average complexity and long functions cost extra,
// and the result is clamped. quality_passed reflects the threshold the
// loop edge checks.
func CalculateQuality(_ context.Context, state types.State) (types.State, error) {
	score := 10.0

	for _, is := range issueRecords(state) {
		switch stringField(is, "severity") {
		case "high":
			score -= 1.5
		case "medium":
			score -= 0.75
		default:
			score -= 0.25
		}
	}

	avg := floatFrom(state, "avg_complexity")
	switch {
	case avg > 10:
		score -= 2.0
	case avg > 7:
		score -= 1.0
	case avg > 5:
		score -= 0.5
	}

	for _, fn := range functionRecords(state) {
		switch lines := intField(fn, "num_lines"); {
		case lines > veryLongFunctionLines:
			score -= 1.0
		case lines > longFunctionLines:
			score -= 0.5
		}
	}

	score = math.Max(0, math.Min(10, score))

	return types.State{
		"quality_score":  round2(score),
		"quality_passed": score >= qualityThreshold,
	}, nil
}

// parseSource parses src as a Go file. Bare snippets without a package
// clause are retried with a synthetic one prepended; the returned
// offset is the number of lines added, so callers can map positions
// back to the original source.
func parseSource(src string) (*token.FileSet, *ast.File, int, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "src.go", src, parser.ParseComments)
	if err == nil {
		return fset, file, 0, nil
	}

	fset = token.NewFileSet()
	if file, retryErr := parser.ParseFile(fset, "src.go", "package snippet\n\n"+src, parser.ParseComments); retryErr == nil {
		return fset, file, 2, nil
	}
	return nil, nil, 0, err
}

func parsedSource(src string, offset int) string {
	if offset == 0 {
		return src
	}
	return "package snippet\n\n" + src
}

func paramNames(fn *ast.FuncDecl) []string {
	names := make([]string, 0)
	if fn.Type.Params == nil {
		return names
	}
	for _, field := range fn.Type.Params.List {
		for _, name := range field.Names {
			names = append(names, name.Name)
		}
	}
	return names
}

// functionComplexity is a simplified cyclomatic complexity: one plus
// the number of branching constructs and short-circuit operators.
func functionComplexity(fn *ast.FuncDecl) int {
	score := 1
	ast.Inspect(fn, func(n ast.Node) bool {
		switch t := n.(type) {
		case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt:
			score++
		case *ast.CaseClause:
			if t.List != nil {
				score++
			}
		case *ast.CommClause:
			if t.Comm != nil {
				score++
			}
		case *ast.BinaryExpr:
			if t.Op == token.LAND || t.Op == token.LOR {
				score++
			}
		}
		return true
	})
	return score
}

// functionNesting reports the deepest statement nesting in the body,
// counting each if/for/switch/select body as one level. Function
// literals start their own scope and are not descended into.
func functionNesting(fn *ast.FuncDecl) int {
	if fn.Body == nil {
		return 0
	}
	return listNesting(fn.Body.List)
}

func listNesting(list []ast.Stmt) int {
	deepest := 0
	for _, s := range list {
		if d := stmtNesting(s); d > deepest {
			deepest = d
		}
	}
	return deepest
}

func stmtNesting(s ast.Stmt) int {
	switch t := s.(type) {
	case *ast.IfStmt:
		d := 1 + listNesting(t.Body.List)
		if t.Else != nil {
			// else-if chains stay on the same level as the if.
			if e := stmtNesting(t.Else); e > d {
				d = e
			}
		}
		return d
	case *ast.ForStmt:
		return 1 + listNesting(t.Body.List)
	case *ast.RangeStmt:
		return 1 + listNesting(t.Body.List)
	case *ast.SwitchStmt:
		return 1 + listNesting(t.Body.List)
	case *ast.TypeSwitchStmt:
		return 1 + listNesting(t.Body.List)
	case *ast.SelectStmt:
		return 1 + listNesting(t.Body.List)
	case *ast.CaseClause:
		return listNesting(t.Body)
	case *ast.CommClause:
		return listNesting(t.Body)
	case *ast.BlockStmt:
		return 1 + listNesting(t.List)
	case *ast.LabeledStmt:
		return stmtNesting(t.Stmt)
	default:
		return 0
	}
}

func issue(kind, function, severity, message string) map[string]any {
	return map[string]any{
		"type":     kind,
		"function": function,
		"severity": severity,
		"message":  message,
	}
}

func suggestion(category, priority, text string) map[string]any {
	return map[string]any{
		"category":   category,
		"priority":   priority,
		"suggestion": text,
	}
}

func functionRecords(state types.State) []map[string]any {
	recs, _ := state["functions"].([]map[string]any)
	return recs
}

func issueRecords(state types.State) []map[string]any {
	recs, _ := state["issues"].([]map[string]any)
	return recs
}

func cloneRecord(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intField(m map[string]any, key string) int {
	switch t := m[key].(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}

// intFrom and floatFrom tolerate both native Go numbers and the
// float64 values JSON decoding produces for an externally supplied
// initial state.
func intFrom(state types.State, key string) int {
	switch t := state[key].(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}

func floatFrom(state types.State, key string) float64 {
	switch t := state[key].(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return 0
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
