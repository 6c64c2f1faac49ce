package judge

import (
	"fmt"
	"strings"

	"github.com/intelligence-arena/arena/pkg/models"
)

// buildEvaluationPrompt renders the judge prompt for a match. Debates are
// judged over the full transcript, everything else over the two standalone
// responses.
func buildEvaluationPrompt(m *models.Match, ch *models.Challenge) string {
	if m.Type == models.MatchDebate {
		return buildDebatePrompt(m, ch)
	}
	return buildDuelPrompt(m, ch)
}

func buildDuelPrompt(m *models.Match, ch *models.Challenge) string {
	var b strings.Builder
	b.WriteString("You are an expert judge in an AI Intelligence Arena. Your job is to fairly and objectively evaluate two AI agents' responses to a challenge.\n\n")

	fmt.Fprintf(&b, "**CHALLENGE:**\nTitle: %s\nType: %s\nDifficulty: %s (Level %d/5)\n\nDescription:\n%s\n",
		ch.Title, ch.Type.Title(), strings.ToUpper(string(ch.Difficulty)), ch.Difficulty.Level(), ch.Description)

	if len(ch.EvaluationCriteria) > 0 {
		b.WriteString("\n**EVALUATION CRITERIA:**\n")
		writeBullets(&b, ch.EvaluationCriteria)
	}
	if len(ch.ExpectedConcepts) > 0 {
		b.WriteString("\n**EXPECTED CONCEPTS:**\n")
		writeBullets(&b, ch.ExpectedConcepts)
	}
	if ch.Answer != "" {
		fmt.Fprintf(&b, "\n**CORRECT ANSWER:**\n%s\n", ch.Answer)
	}

	fmt.Fprintf(&b, "\n**AGENT 1 RESPONSE:**\n%s\n\n**AGENT 2 RESPONSE:**\n%s\n",
		responseText(m.Agent1Response), responseText(m.Agent2Response))

	b.WriteString(`
**EVALUATION INSTRUCTIONS:**
1. Evaluate both responses objectively and fairly
2. Score each response on these criteria (0-10 scale):
   - correctness: Factual accuracy and problem-solving correctness
   - completeness: How thoroughly the response addresses the challenge
   - logical_consistency: Internal logical coherence and reasoning quality
   - clarity: Communication effectiveness and organization
   - creativity: Originality and innovative thinking (where applicable)
   - depth: Sophistication and depth of analysis

3. Consider the specific challenge type and difficulty level
4. Provide your overall reasoning for the evaluation
5. Recommend a winner: 'agent1', 'agent2', or 'draw' (if very close)
6. Rate your confidence in this evaluation (0.0-1.0)

**EVALUATION GUIDELINES:**
- Be objective and consistent
- Consider both strengths and weaknesses
- Factor in the challenge's specific requirements
- A 'draw' is appropriate when responses are very close in quality
- Explain your reasoning clearly
- Scores should reflect the challenge difficulty level
`)
	if ch.Answer != "" {
		b.WriteString(`
- Compare responses against the provided correct answer
- Prioritize correctness when a definitive answer exists
`)
	}
	b.WriteString("\nProvide detailed scores and clear reasoning for your evaluation.")
	return b.String()
}

func buildDebatePrompt(m *models.Match, ch *models.Challenge) string {
	var b strings.Builder
	b.WriteString("You are an expert judge in an AI Intelligence Arena. Your job is to evaluate a debate between two AI agents.\n\n")

	fmt.Fprintf(&b, "**DEBATE TOPIC:**\nTitle: %s\nDescription:\n%s\n", ch.Title, ch.Description)

	if ch.Answer != "" {
		fmt.Fprintf(&b, "\n**REFERENCE INFORMATION:**\n%s\n", ch.Answer)
	}

	b.WriteString("\n**DEBATE TRANSCRIPT:**\n")
	for i := range m.Transcript {
		turn := &m.Transcript[i]
		label := 2
		if turn.AgentID == m.Agent1ID {
			label = 1
		}
		fmt.Fprintf(&b, "Agent %d (%s): %s\n", label, turn.AgentID, turn.Text)
	}

	b.WriteString(`
**EVALUATION INSTRUCTIONS:**
1. Evaluate the entire debate based on the quality of arguments, rebuttals, and overall persuasiveness.
2. Score each agent on these criteria (0-10 scale):
   - logical_consistency: Coherence and logical soundness of arguments.
   - creativity: Originality and depth of thought.
   - clarity: How clearly and effectively each agent communicated their points.
   - depth: The level of detail and sophistication in the arguments.
   - completeness: How well they stayed on topic and addressed the core issues.
   - correctness: Factual accuracy of claims made.
3. Provide your overall reasoning for the evaluation, explaining who you thought won the debate and why.
4. Recommend a winner: 'agent1', 'agent2', or 'draw'.
5. Rate your confidence in this evaluation (0.0-1.0).
`)
	if ch.Answer != "" {
		b.WriteString("\nWhen evaluating factual claims, compare them against the reference information provided.\n")
	}
	b.WriteString("\nProvide detailed scores and clear reasoning for your evaluation.")
	return b.String()
}

func writeBullets(b *strings.Builder, items []string) {
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
}

func responseText(r *models.AgentResponse) string {
	if r == nil {
		return "(no response)"
	}
	return r.Text
}
