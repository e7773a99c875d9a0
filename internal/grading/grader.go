// Package grading scores free-text responses against weighted keyword rubrics
// with partial credit. Grading is stateless: concurrent calls over independent
// response/rubric pairs are safe without locking, and grading never fails:
// empty input is a defined zero result.
package grading

import (
	"math"
	"strings"
)

// Manual-review band bounds, in percent. Mid-range scores are the ones most
// likely to be matcher false positives or missed paraphrases, so they route to
// a human instead of auto-finalizing.
const (
	reviewLow  = 40
	reviewHigh = 60
)

// Rubric is a per-question grading key: expected keywords and their point
// weights. Weights absent from the map (or not positive) count as 1.
type Rubric struct {
	Keywords []string           `json:"keywords"`
	Weights  map[string]float64 `json:"weights,omitempty"`
}

// Weight returns the effective weight for a keyword.
func (r Rubric) Weight(keyword string) float64 {
	if w, ok := r.Weights[keyword]; ok && w > 0 {
		return w
	}
	return 1
}

// KeywordMatch records one keyword's outcome, in rubric order.
type KeywordMatch struct {
	Keyword string  `json:"keyword"`
	Found   bool    `json:"found"`
	Weight  float64 `json:"weight"`
}

// Result is the outcome of grading one response.
type Result struct {
	Score      float64        `json:"score"`       // rounded to 2 decimals, 0..MaxScore
	MaxScore   float64        `json:"max_score"`   // the question's total points
	Percentage float64        `json:"percentage"`  // 0..100, may be fractional
	Matches    []KeywordMatch `json:"matches,omitempty"`
}

// Grade scores a response against a rubric, scaled to totalPoints. An empty
// response or an empty rubric yields the zero result. Negative or zero
// totalPoints simply scale to zero; validating them is the caller's job.
func Grade(response string, rubric Rubric, totalPoints float64) Result {
	res := Result{MaxScore: totalPoints}
	if strings.TrimSpace(response) == "" || len(rubric.Keywords) == 0 {
		return res
	}

	var earned, possible float64
	for _, k := range rubric.Keywords {
		w := rubric.Weight(k)
		found := Matches(response, k)
		if found {
			earned += w
		}
		possible += w
		res.Matches = append(res.Matches, KeywordMatch{Keyword: k, Found: found, Weight: w})
	}
	if possible > 0 {
		res.Score = round2(earned / possible * totalPoints)
		res.Percentage = earned / possible * 100
	}
	return res
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// NeedsReview reports whether a result falls in the manual-review band.
func NeedsReview(r Result) bool {
	return r.Percentage >= reviewLow && r.Percentage <= reviewHigh
}

// IsCorrect reports partial-or-full credit. Keyword grading is a
// partial-credit scheme, so any positive score counts as correct.
func IsCorrect(r Result) bool {
	return r.Score > 0
}
