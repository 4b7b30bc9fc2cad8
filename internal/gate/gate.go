// Package gate applies the confidence policy to classifier output.
package gate

import "github.com/tphakala/plantid/internal/plant"

// DefaultThreshold is the minimum top score for an accepted identification.
const DefaultThreshold = 0.5

// Result is the gate decision. Rejection is a normal outcome, not an error.
type Result struct {
	Accepted       bool
	Suggestions    []plant.RawSuggestion // set when accepted
	BestConfidence float64               // top score, zero for an empty list
}

// Evaluate accepts suggestions when the first (highest) score reaches
// threshold. An empty list is always rejected.
func Evaluate(suggestions []plant.RawSuggestion, threshold float64) Result {
	if len(suggestions) == 0 {
		return Result{}
	}

	best := suggestions[0].Score
	if best < threshold {
		return Result{BestConfidence: best}
	}
	return Result{Accepted: true, Suggestions: suggestions, BestConfidence: best}
}
