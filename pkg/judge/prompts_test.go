package judge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/intelligence-arena/arena/pkg/models"
)

func TestDuelPromptLayout(t *testing.T) {
	m := testMatch()
	ch := testChallenge()
	ch.EvaluationCriteria = []string{"rigor", "brevity"}
	ch.ExpectedConcepts = []string{"induction"}

	prompt := buildEvaluationPrompt(m, ch)

	assert.Contains(t, prompt, "You are an expert judge in an AI Intelligence Arena.")
	assert.Contains(t, prompt, "Title: Bridge crossing")
	assert.Contains(t, prompt, "Type: Logical Reasoning")
	assert.Contains(t, prompt, "Difficulty: INTERMEDIATE (Level 2/5)")
	assert.Contains(t, prompt, "**EVALUATION CRITERIA:**\n- rigor\n- brevity")
	assert.Contains(t, prompt, "**EXPECTED CONCEPTS:**\n- induction")
	assert.Contains(t, prompt, "**AGENT 1 RESPONSE:**\nfirst answer")
	assert.Contains(t, prompt, "**AGENT 2 RESPONSE:**\nsecond answer")
	assert.Contains(t, prompt, "Provide detailed scores and clear reasoning for your evaluation.")

	assert.NotContains(t, prompt, "**CORRECT ANSWER:**")
	assert.NotContains(t, prompt, "Prioritize correctness")
}

func TestDuelPromptIncludesAnswerWhenPresent(t *testing.T) {
	m := testMatch()
	ch := testChallenge()
	ch.Answer = "17 minutes"

	prompt := buildEvaluationPrompt(m, ch)

	assert.Contains(t, prompt, "**CORRECT ANSWER:**\n17 minutes")
	assert.Contains(t, prompt, "Prioritize correctness when a definitive answer exists")
}

func TestDebatePromptRendersTranscript(t *testing.T) {
	m := testMatch()
	m.Type = models.MatchDebate
	m.Transcript = []models.AgentResponse{
		{AgentID: "player-1", Text: "Opening for."},
		{AgentID: "player-2", Text: "Opening against."},
		{AgentID: "player-1", Text: "Rebuttal."},
	}
	ch := testChallenge()
	ch.Title = "Should cities ban cars"

	prompt := buildEvaluationPrompt(m, ch)

	assert.Contains(t, prompt, "Your job is to evaluate a debate between two AI agents.")
	assert.Contains(t, prompt, "**DEBATE TOPIC:**\nTitle: Should cities ban cars")
	assert.Contains(t, prompt, "Agent 1 (player-1): Opening for.")
	assert.Contains(t, prompt, "Agent 2 (player-2): Opening against.")
	assert.Contains(t, prompt, "Agent 1 (player-1): Rebuttal.")
	assert.NotContains(t, prompt, "**REFERENCE INFORMATION:**")
}

func TestDebatePromptIncludesReference(t *testing.T) {
	m := testMatch()
	m.Type = models.MatchDebate
	ch := testChallenge()
	ch.Answer = "Studies show mixed outcomes."

	prompt := buildEvaluationPrompt(m, ch)

	assert.Contains(t, prompt, "**REFERENCE INFORMATION:**\nStudies show mixed outcomes.")
	assert.Contains(t, prompt, "compare them against the reference information provided")
}
