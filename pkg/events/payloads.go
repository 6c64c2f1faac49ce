package events

import (
	"github.com/intelligence-arena/arena/pkg/models"
)

// StatusPayload is the payload for status events. Published on every
// lifecycle transition of the match.
type StatusPayload struct {
	MatchID   string             `json:"matchId"`
	Status    models.MatchStatus `json:"status"`
	Timestamp string             `json:"timestamp"` // RFC3339Nano
}

// ResponseDeltaPayload is the payload for responseDelta transient events.
// Published for each streamed token — high frequency, ephemeral: a client
// that misses deltas recovers the full text from responseComplete or a
// snapshot.
type ResponseDeltaPayload struct {
	AgentID     string `json:"agentId"`
	TextDelta   string `json:"textDelta"`
	IsStreaming bool   `json:"isStreaming"` // always true
	Timestamp   string `json:"timestamp"`   // RFC3339Nano
}

// ResponseCompletePayload is the payload for responseComplete events.
// Published when one agent's full response has been assembled.
type ResponseCompletePayload struct {
	AgentID  string                `json:"agentId"`
	Response *models.AgentResponse `json:"response"`
}

// DebateTurnPayload is the payload for debateTurn events. Published after
// each completed turn with the turn's position in the transcript.
type DebateTurnPayload struct {
	TurnIndex int                   `json:"turnIndex"` // 0-based transcript position
	Response  *models.AgentResponse `json:"response"`
}

// EvaluationPayload is the payload for evaluation events. Published once
// per judge as panel results arrive.
type EvaluationPayload struct {
	Evaluation *models.JudgeEvaluation `json:"evaluation"`
}

// FinalPayload is the payload for final events. Published exactly once,
// after the ranking engine has applied the verdict.
type FinalPayload struct {
	WinnerID    *string             `json:"winnerId"` // null on draw
	FinalScores map[string]float64  `json:"finalScores"`
	Result      *models.MatchResult `json:"result"`
}

// LaggedPayload replaces events dropped for a slow consumer. The SSE layer
// reacts by emitting a fresh snapshot.
type LaggedPayload struct {
	Dropped int `json:"dropped"` // events lost since the last delivery
}

// NewSnapshotEvent builds the full-match snapshot event. Snapshots are
// delivered directly to a single subscriber on subscribe and after a lag
// resync; they never travel through the bus.
func NewSnapshotEvent(m *models.Match) Event {
	return Event{
		Topic:   MatchTopic(m.ID),
		Type:    EventTypeSnapshot,
		Payload: m,
	}
}
