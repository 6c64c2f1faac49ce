package events

import (
	"time"

	"github.com/intelligence-arena/arena/pkg/models"
)

// Publisher wraps the bus with one method per event kind, so callers
// never assemble Event values by hand. Per-match events go to the match
// topic; lifecycle summaries additionally go to arena/matches.
type Publisher struct {
	bus *Bus
}

// NewPublisher creates a Publisher on top of bus.
func NewPublisher(bus *Bus) *Publisher {
	return &Publisher{bus: bus}
}

// Status publishes a lifecycle transition on the match topic.
func (p *Publisher) Status(matchID string, status models.MatchStatus) {
	p.bus.Publish(MatchTopic(matchID), EventTypeStatus, StatusPayload{
		MatchID:   matchID,
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// ResponseDelta publishes one streamed text chunk on the match topic.
func (p *Publisher) ResponseDelta(matchID, agentID, delta string) {
	p.bus.Publish(MatchTopic(matchID), EventTypeResponseDelta, ResponseDeltaPayload{
		AgentID:     agentID,
		TextDelta:   delta,
		IsStreaming: true,
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// ResponseComplete publishes an agent's finished response on the match topic.
func (p *Publisher) ResponseComplete(matchID string, response *models.AgentResponse) {
	p.bus.Publish(MatchTopic(matchID), EventTypeResponseComplete, ResponseCompletePayload{
		AgentID:  response.AgentID,
		Response: response,
	})
}

// DebateTurn publishes one completed debate turn on the match topic.
func (p *Publisher) DebateTurn(matchID string, turnIndex int, response *models.AgentResponse) {
	p.bus.Publish(MatchTopic(matchID), EventTypeDebateTurn, DebateTurnPayload{
		TurnIndex: turnIndex,
		Response:  response,
	})
}

// Evaluation publishes one judge's evaluation on the match topic.
func (p *Publisher) Evaluation(matchID string, eval *models.JudgeEvaluation) {
	p.bus.Publish(MatchTopic(matchID), EventTypeEvaluation, EvaluationPayload{
		Evaluation: eval,
	})
}

// Final publishes the applied verdict on the match topic.
func (p *Publisher) Final(matchID string, winnerID *string, finalScores map[string]float64, result *models.MatchResult) {
	p.bus.Publish(MatchTopic(matchID), EventTypeFinal, FinalPayload{
		WinnerID:    winnerID,
		FinalScores: finalScores,
		Result:      result,
	})
}

// MatchCreated publishes the admission of a new match on arena/matches.
func (p *Publisher) MatchCreated(m *models.Match) {
	p.bus.Publish(TopicArenaMatches, EventTypeMatchCreated, m.Summary())
}

// MatchUpdated publishes a non-terminal state change on arena/matches.
func (p *Publisher) MatchUpdated(m *models.Match) {
	p.bus.Publish(TopicArenaMatches, EventTypeMatchUpdated, m.Summary())
}

// MatchCompleted publishes a terminal state on arena/matches.
func (p *Publisher) MatchCompleted(m *models.Match) {
	p.bus.Publish(TopicArenaMatches, EventTypeMatchCompleted, m.Summary())
}
