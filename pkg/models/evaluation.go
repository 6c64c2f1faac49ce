package models

import (
	"encoding/json"
	"fmt"
)

// EvaluationCriteria is the fixed score vector every judge fills in.
var EvaluationCriteria = []string{
	"correctness",
	"completeness",
	"logical_consistency",
	"clarity",
	"creativity",
	"depth",
}

// Recommendation is a judge's pick, kept as a tagged value internally and
// serialized as "agent1", "agent2" or null.
type Recommendation int

const (
	// RecommendNone means the judge called the match a draw
	RecommendNone Recommendation = iota
	// RecommendAgent1 favors agent1
	RecommendAgent1
	// RecommendAgent2 favors agent2
	RecommendAgent2
)

// MarshalJSON serializes the recommendation to the wire strings.
func (r Recommendation) MarshalJSON() ([]byte, error) {
	switch r {
	case RecommendAgent1:
		return []byte(`"agent1"`), nil
	case RecommendAgent2:
		return []byte(`"agent2"`), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts "agent1", "agent2", "draw" or null.
func (r *Recommendation) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil {
		*r = RecommendNone
		return nil
	}
	switch *s {
	case "agent1":
		*r = RecommendAgent1
	case "agent2":
		*r = RecommendAgent2
	case "draw", "":
		*r = RecommendNone
	default:
		return fmt.Errorf("invalid recommendation %q", *s)
	}
	return nil
}

// CriterionScores maps criterion name to a 0-10 score.
type CriterionScores map[string]float64

// Mean returns the average over the known criteria, clamped to [0,10].
// Unknown keys are ignored, missing criteria score 0.
func (c CriterionScores) Mean() float64 {
	if len(EvaluationCriteria) == 0 {
		return 0
	}
	var sum float64
	for _, name := range EvaluationCriteria {
		sum += clamp(c[name], 0, 10)
	}
	return sum / float64(len(EvaluationCriteria))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// JudgeEvaluation is one judge's complete scoring of a match.
type JudgeEvaluation struct {
	JudgeID string `json:"judgeId"`

	Agent1Scores CriterionScores `json:"agent1Scores"`
	Agent2Scores CriterionScores `json:"agent2Scores"`

	// Totals are the per-agent criterion means on the 0-10 scale.
	Agent1TotalScore float64 `json:"agent1TotalScore"`
	Agent2TotalScore float64 `json:"agent2TotalScore"`

	RecommendedWinner Recommendation `json:"recommendedWinner"`

	OverallReasoning    string   `json:"overallReasoning"`
	ComparativeAnalysis string   `json:"comparativeAnalysis,omitempty"`
	KeyDifferentiators  []string `json:"keyDifferentiators,omitempty"`

	// EvaluationQuality is the judge's self-reported confidence in [0,1].
	EvaluationQuality float64 `json:"evaluationQuality"`
}

// Clone returns a deep copy.
func (e *JudgeEvaluation) Clone() *JudgeEvaluation {
	if e == nil {
		return nil
	}
	out := *e
	if e.Agent1Scores != nil {
		out.Agent1Scores = make(CriterionScores, len(e.Agent1Scores))
		for k, v := range e.Agent1Scores {
			out.Agent1Scores[k] = v
		}
	}
	if e.Agent2Scores != nil {
		out.Agent2Scores = make(CriterionScores, len(e.Agent2Scores))
		for k, v := range e.Agent2Scores {
			out.Agent2Scores[k] = v
		}
	}
	out.KeyDifferentiators = append([]string(nil), e.KeyDifferentiators...)
	return &out
}
