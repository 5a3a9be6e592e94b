package complexity

import "regexp"

// Rule contributes weight to the complexity score when its pattern matches
// the request text.
type Rule struct {
	Name   string
	Regex  *regexp.Regexp
	Weight float64
}

// DefaultRules covers the signals that separate quick lookups from work that
// wants a capable model: code, math, multi-step reasoning, long-form output.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:   "code_block",
			Regex:  regexp.MustCompile("(?s)```.+?```"),
			Weight: 0.20,
		},
		{
			Name:   "code_keywords",
			Regex:  regexp.MustCompile(`(?i)\b(refactor|debug|stack trace|compile|unit test|implement|algorithm)\b`),
			Weight: 0.15,
		},
		{
			Name:   "math_reasoning",
			Regex:  regexp.MustCompile(`(?i)\b(prove|theorem|derivative|integral|equation|optimi[sz]e)\b`),
			Weight: 0.20,
		},
		{
			Name:   "multi_step",
			Regex:  regexp.MustCompile(`(?i)\b(step[- ]by[- ]step|first.{0,40}then|plan|break (this|it) down)\b`),
			Weight: 0.15,
		},
		{
			Name:   "analysis",
			Regex:  regexp.MustCompile(`(?i)\b(analy[sz]e|compare|trade[- ]?offs?|evaluate|critique|summari[sz]e .{0,20}(report|paper|document))\b`),
			Weight: 0.15,
		},
		{
			Name:   "long_form",
			Regex:  regexp.MustCompile(`(?i)\b(essay|detailed|comprehensive|in[- ]depth|thorough)\b`),
			Weight: 0.10,
		},
	}
}
