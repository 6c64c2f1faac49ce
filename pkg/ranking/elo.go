package ranking

import (
	"math"

	"github.com/intelligence-arena/arena/pkg/models"
)

// expectedScore is the standard ELO expectation for a player rated ra
// against an opponent rated rb.
func expectedScore(ra, rb float64) float64 {
	return 1 / (1 + math.Pow(10, (rb-ra)/400))
}

// actualScore maps a result to the ELO S term.
func actualScore(result models.MatchResult) float64 {
	switch result {
	case models.ResultWin:
		return 1
	case models.ResultLoss:
		return 0
	default:
		return 0.5
	}
}

// updatedRatings computes both post-match ratings. Both agents share the
// match division's K-factor so the deltas cancel; new ratings are rounded
// to the nearest integer and floored at zero.
func updatedRatings(r1, r2, k float64, result models.MatchResult) (float64, float64) {
	s1 := actualScore(result)
	s2 := actualScore(result.Invert())
	n1 := math.Round(r1 + k*(s1-expectedScore(r1, r2)))
	n2 := math.Round(r2 + k*(s2-expectedScore(r2, r1)))
	return math.Max(n1, 0), math.Max(n2, 0)
}
