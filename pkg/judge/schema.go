package judge

import (
	"encoding/json"
	"fmt"

	"github.com/intelligence-arena/arena/pkg/gateway"
	"github.com/intelligence-arena/arena/pkg/models"
)

// evaluationSchema is the structured-output contract every judge completion
// must satisfy. The gateway validates completions against it before they
// reach parseEvaluation.
const evaluationSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["agent1Scores", "agent2Scores", "recommendedWinner", "overallReasoning", "confidence"],
  "properties": {
    "agent1Scores": {"$ref": "#/definitions/criterionScores"},
    "agent2Scores": {"$ref": "#/definitions/criterionScores"},
    "recommendedWinner": {"enum": ["agent1", "agent2", "draw", null]},
    "overallReasoning": {"type": "string"},
    "comparativeAnalysis": {"type": "string"},
    "keyDifferentiators": {"type": "array", "items": {"type": "string"}},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  },
  "definitions": {
    "criterionScores": {
      "type": "object",
      "required": ["correctness", "completeness", "logical_consistency", "clarity", "creativity", "depth"],
      "properties": {
        "correctness": {"type": "number", "minimum": 0, "maximum": 10},
        "completeness": {"type": "number", "minimum": 0, "maximum": 10},
        "logical_consistency": {"type": "number", "minimum": 0, "maximum": 10},
        "clarity": {"type": "number", "minimum": 0, "maximum": 10},
        "creativity": {"type": "number", "minimum": 0, "maximum": 10},
        "depth": {"type": "number", "minimum": 0, "maximum": 10}
      }
    }
  }
}`

// evaluationDocument is the wire shape of a judge completion.
type evaluationDocument struct {
	Agent1Scores        models.CriterionScores `json:"agent1Scores"`
	Agent2Scores        models.CriterionScores `json:"agent2Scores"`
	RecommendedWinner   models.Recommendation  `json:"recommendedWinner"`
	OverallReasoning    string                 `json:"overallReasoning"`
	ComparativeAnalysis string                 `json:"comparativeAnalysis"`
	KeyDifferentiators  []string               `json:"keyDifferentiators"`
	Confidence          float64                `json:"confidence"`
}

// parseEvaluation decodes a validated judge completion into the model
// shape, computing the per-agent criterion means.
func parseEvaluation(judgeID, text string) (*models.JudgeEvaluation, error) {
	var doc evaluationDocument
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, gateway.NewModelError(gateway.KindInvalid,
			fmt.Sprintf("judge %s returned malformed evaluation", judgeID), err)
	}
	return &models.JudgeEvaluation{
		JudgeID:             judgeID,
		Agent1Scores:        doc.Agent1Scores,
		Agent2Scores:        doc.Agent2Scores,
		Agent1TotalScore:    doc.Agent1Scores.Mean(),
		Agent2TotalScore:    doc.Agent2Scores.Mean(),
		RecommendedWinner:   doc.RecommendedWinner,
		OverallReasoning:    doc.OverallReasoning,
		ComparativeAnalysis: doc.ComparativeAnalysis,
		KeyDifferentiators:  doc.KeyDifferentiators,
		EvaluationQuality:   clampUnit(doc.Confidence),
	}, nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
