package judge

import (
	"math"

	"github.com/intelligence-arena/arena/pkg/models"
)

// Outcome tags the panel's decision.
type Outcome int

const (
	// OutcomeDraw means neither agent won
	OutcomeDraw Outcome = iota
	// OutcomeAgent1Wins favors the match's agent1
	OutcomeAgent1Wins
	// OutcomeAgent2Wins favors the match's agent2
	OutcomeAgent2Wins
)

// String renders the outcome for logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeAgent1Wins:
		return "agent1_wins"
	case OutcomeAgent2Wins:
		return "agent2_wins"
	default:
		return "draw"
	}
}

// Result converts the outcome to a match result from agent1's perspective.
func (o Outcome) Result() models.MatchResult {
	switch o {
	case OutcomeAgent1Wins:
		return models.ResultWin
	case OutcomeAgent2Wins:
		return models.ResultLoss
	default:
		return models.ResultDraw
	}
}

// Verdict is the aggregated panel decision the ranking engine applies.
type Verdict struct {
	Outcome Outcome
	// WinnerID is the winning agent's id, nil on draw.
	WinnerID *string
	// Scores holds the weighted score totals keyed by agent id.
	Scores map[string]float64
	// Evaluations are the individual judge evaluations that produced the
	// verdict, in completion order.
	Evaluations []models.JudgeEvaluation
	// Aligned records per judge whether its recommendation matched the
	// outcome; consumed by the reliability update.
	Aligned map[string]bool
}

// Unanimous reports whether every evaluation recommended the same winner.
func (v *Verdict) Unanimous() bool {
	if len(v.Evaluations) == 0 {
		return false
	}
	first := v.Evaluations[0].RecommendedWinner
	for _, e := range v.Evaluations[1:] {
		if e.RecommendedWinner != first {
			return false
		}
	}
	return true
}

// aggregate folds the evaluations into a Verdict.
//
// Each judge weighs in at reliability × evaluationQuality. The higher
// weighted score total wins outright when the totals differ by at least
// drawEpsilon; closer totals fall back to the majority recommendation, and
// only a null or tied majority makes the match a draw.
func (p *Panel) aggregate(m *models.Match, reliability map[string]float64, evaluations []models.JudgeEvaluation) *Verdict {
	var total1, total2 float64
	votes := make(map[models.Recommendation]int, 3)
	for i := range evaluations {
		e := &evaluations[i]
		w := reliability[e.JudgeID] * e.EvaluationQuality
		total1 += w * e.Agent1TotalScore
		total2 += w * e.Agent2TotalScore
		votes[e.RecommendedWinner]++
	}

	var outcome Outcome
	if diff := total1 - total2; math.Abs(diff) >= p.cfg.DrawEpsilon {
		if diff > 0 {
			outcome = OutcomeAgent1Wins
		} else {
			outcome = OutcomeAgent2Wins
		}
	} else {
		outcome = majorityOutcome(votes)
	}

	verdict := &Verdict{
		Outcome: outcome,
		Scores: map[string]float64{
			m.Agent1ID: total1,
			m.Agent2ID: total2,
		},
		Evaluations: evaluations,
		Aligned:     make(map[string]bool, len(evaluations)),
	}
	switch outcome {
	case OutcomeAgent1Wins:
		id := m.Agent1ID
		verdict.WinnerID = &id
	case OutcomeAgent2Wins:
		id := m.Agent2ID
		verdict.WinnerID = &id
	}
	for i := range evaluations {
		e := &evaluations[i]
		verdict.Aligned[e.JudgeID] = aligned(outcome, e.RecommendedWinner)
	}
	return verdict
}

// majorityOutcome resolves near-tied score totals by vote count. A draw
// majority or a tied top vote keeps the match a draw.
func majorityOutcome(votes map[models.Recommendation]int) Outcome {
	v1 := votes[models.RecommendAgent1]
	v2 := votes[models.RecommendAgent2]
	v0 := votes[models.RecommendNone]
	switch {
	case v1 > v2 && v1 > v0:
		return OutcomeAgent1Wins
	case v2 > v1 && v2 > v0:
		return OutcomeAgent2Wins
	default:
		return OutcomeDraw
	}
}

func aligned(outcome Outcome, rec models.Recommendation) bool {
	switch outcome {
	case OutcomeAgent1Wins:
		return rec == models.RecommendAgent1
	case OutcomeAgent2Wins:
		return rec == models.RecommendAgent2
	default:
		return rec == models.RecommendNone
	}
}
