package escalate

import (
	"context"
	"regexp"
	"strings"
)

// HeuristicAnalyzer is the built-in ComplexityAnalyzer. It scores a task
// description from surface signals only, so it runs synchronously with no
// model call. Deployments with a local scoring model plug their own
// implementation in instead.
type HeuristicAnalyzer struct{}

var (
	multiStepPattern  = regexp.MustCompile(`(?m)^\s*(?:\d+[.)]|[-*])\s+`)
	crossCutKeywords  = []string{"concurrency", "transaction", "distributed", "backward compatible", "schema", "protocol", "security", "performance"}
	simpleTaskPattern = regexp.MustCompile(`(?i)^\s*(fix typo|rename|bump|format|add comment)`)
)

// NewHeuristicAnalyzer creates the default surface-signal scorer.
func NewHeuristicAnalyzer() *HeuristicAnalyzer {
	return &HeuristicAnalyzer{}
}

// AnalyzeComplexity returns a score in [0,1] built from description
// length, file references, step structure, and cross-cutting keywords.
func (h *HeuristicAnalyzer) AnalyzeComplexity(_ context.Context, description string) (float64, error) {
	if simpleTaskPattern.MatchString(description) {
		return 0.1, nil
	}

	score := 0.0

	// Length contributes up to 0.3.
	length := float64(len(description))
	if length > 4000 {
		length = 4000
	}
	score += 0.3 * (length / 4000)

	// File references contribute up to 0.25.
	refs := float64(len(fileRefPattern.FindAllString(description, -1)))
	if refs > 5 {
		refs = 5
	}
	score += 0.25 * (refs / 5)

	// Enumerated steps contribute up to 0.2.
	steps := float64(len(multiStepPattern.FindAllString(description, -1)))
	if steps > 8 {
		steps = 8
	}
	score += 0.2 * (steps / 8)

	// Cross-cutting concern keywords contribute up to 0.25.
	lower := strings.ToLower(description)
	hits := 0.0
	for _, kw := range crossCutKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	if hits > 3 {
		hits = 3
	}
	score += 0.25 * (hits / 3)

	if score > 1 {
		score = 1
	}
	return score, nil
}
