// Package complexity estimates how demanding a chat request is, on a [0,1]
// scale, so the router can pick an appropriately capable tier. The estimate
// is a cheap rule-based heuristic, not a classifier; callers that know
// better pass an explicit complexity instead.
package complexity

import "github.com/af-corp/tiergate/internal/types"

// Length alone caps out at this contribution; the rest comes from rules.
const maxLengthScore = 0.3

// Estimator scores request text against weighted heuristic rules.
type Estimator struct {
	rules []Rule
}

func NewEstimator() *Estimator {
	return &Estimator{rules: DefaultRules()}
}

// Estimate returns the complexity score for a message list.
func (e *Estimator) Estimate(messages []types.Message) float64 {
	total := 0
	score := 0.0
	matched := make(map[string]bool, len(e.rules))

	for _, m := range messages {
		total += len(m.Content)
		for _, r := range e.rules {
			if matched[r.Name] {
				continue
			}
			if r.Regex.MatchString(m.Content) {
				matched[r.Name] = true
				score += r.Weight
			}
		}
	}

	lengthScore := float64(total) / 8000 * maxLengthScore
	if lengthScore > maxLengthScore {
		lengthScore = maxLengthScore
	}
	score += lengthScore

	if score > 1 {
		score = 1
	}
	return score
}
