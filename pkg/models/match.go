package models

import (
	"time"
)

// MatchType distinguishes the three contest formats.
type MatchType string

const (
	// MatchRegularDuel is a single-prompt head-to-head
	MatchRegularDuel MatchType = "regular_duel"
	// MatchDebate alternates turns over a debate topic
	MatchDebate MatchType = "debate"
	// MatchKingChallenge is a Master's attempt to take the crown
	MatchKingChallenge MatchType = "king_challenge"
)

// IsValid checks if the match type is valid
func (t MatchType) IsValid() bool {
	return t == MatchRegularDuel || t == MatchDebate || t == MatchKingChallenge
}

// MatchStatus is the persisted state of a match.
type MatchStatus string

const (
	// MatchPending is set at admission, before the runner starts
	MatchPending MatchStatus = "pending"
	// MatchInProgress means agent responses are being generated
	MatchInProgress MatchStatus = "in_progress"
	// MatchJudging means the judge panel is evaluating
	MatchJudging MatchStatus = "judging"
	// MatchFinalizing means the ranking engine is applying the verdict
	MatchFinalizing MatchStatus = "finalizing"
	// MatchCompleted is terminal success
	MatchCompleted MatchStatus = "completed"
	// MatchCancelled is terminal after context cancellation
	MatchCancelled MatchStatus = "cancelled"
	// MatchFailed is terminal after an unrecoverable error
	MatchFailed MatchStatus = "failed"
)

// IsValid checks if the match status is valid
func (s MatchStatus) IsValid() bool {
	switch s {
	case MatchPending, MatchInProgress, MatchJudging, MatchFinalizing,
		MatchCompleted, MatchCancelled, MatchFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is final. Terminal matches never
// mutate again.
func (s MatchStatus) IsTerminal() bool {
	return s == MatchCompleted || s == MatchCancelled || s == MatchFailed
}

// MatchResult is the outcome from agent1's perspective.
type MatchResult string

const (
	// ResultWin means agent1 won
	ResultWin MatchResult = "win"
	// ResultLoss means agent1 lost
	ResultLoss MatchResult = "loss"
	// ResultDraw means neither won
	ResultDraw MatchResult = "draw"
)

// IsValid checks if the match result is valid
func (r MatchResult) IsValid() bool {
	return r == ResultWin || r == ResultLoss || r == ResultDraw
}

// Invert flips the result to the opponent's perspective.
func (r MatchResult) Invert() MatchResult {
	switch r {
	case ResultWin:
		return ResultLoss
	case ResultLoss:
		return ResultWin
	default:
		return ResultDraw
	}
}

// AgentResponse is one agent's answer within a match, either a duel
// response or a single debate turn.
type AgentResponse struct {
	AgentID string `json:"agentId"`
	Text    string `json:"text"`
	// ResponseTime is the wall-clock seconds the agent took.
	ResponseTime float64   `json:"responseTime"`
	Timestamp    time.Time `json:"timestamp"`
	Score        *float64  `json:"score,omitempty"`
	// IsStreaming is true while deltas are still arriving.
	IsStreaming    bool           `json:"isStreaming"`
	StructuredData map[string]any `json:"structuredData,omitempty"`
}

// Clone returns a deep copy.
func (r *AgentResponse) Clone() *AgentResponse {
	if r == nil {
		return nil
	}
	out := *r
	if r.Score != nil {
		s := *r.Score
		out.Score = &s
	}
	if r.StructuredData != nil {
		out.StructuredData = make(map[string]any, len(r.StructuredData))
		for k, v := range r.StructuredData {
			out.StructuredData[k] = v
		}
	}
	return &out
}

// Match is a contest of two agents over one challenge.
type Match struct {
	ID          string      `json:"id"`
	Agent1ID    string      `json:"agent1Id"`
	Agent2ID    string      `json:"agent2Id"`
	ChallengeID string      `json:"challengeId"`
	Division    Division    `json:"division"`
	Type        MatchType   `json:"type"`
	Status      MatchStatus `json:"status"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	Agent1Response *AgentResponse  `json:"agent1Response,omitempty"`
	Agent2Response *AgentResponse  `json:"agent2Response,omitempty"`
	Transcript     []AgentResponse `json:"transcript,omitempty"`

	Evaluations []JudgeEvaluation `json:"evaluations,omitempty"`

	WinnerID    *string            `json:"winnerId"`
	FinalScores map[string]float64 `json:"finalScores,omitempty"`
	Result      *MatchResult       `json:"result,omitempty"`
	// FailureReason explains a failed status for post-mortems.
	FailureReason string `json:"failureReason,omitempty"`

	Version int64 `json:"version"`
}

// OpponentOf returns the other competitor's id, empty if agentID is not a
// competitor.
func (m *Match) OpponentOf(agentID string) string {
	switch agentID {
	case m.Agent1ID:
		return m.Agent2ID
	case m.Agent2ID:
		return m.Agent1ID
	default:
		return ""
	}
}

// HasCompetitor reports whether agentID plays in this match.
func (m *Match) HasCompetitor(agentID string) bool {
	return agentID == m.Agent1ID || agentID == m.Agent2ID
}

// Clone returns a deep copy.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	out := *m
	if m.StartedAt != nil {
		t := *m.StartedAt
		out.StartedAt = &t
	}
	if m.CompletedAt != nil {
		t := *m.CompletedAt
		out.CompletedAt = &t
	}
	out.Agent1Response = m.Agent1Response.Clone()
	out.Agent2Response = m.Agent2Response.Clone()
	if m.Transcript != nil {
		out.Transcript = make([]AgentResponse, len(m.Transcript))
		for i := range m.Transcript {
			out.Transcript[i] = *m.Transcript[i].Clone()
		}
	}
	if m.Evaluations != nil {
		out.Evaluations = make([]JudgeEvaluation, len(m.Evaluations))
		for i := range m.Evaluations {
			out.Evaluations[i] = *m.Evaluations[i].Clone()
		}
	}
	if m.WinnerID != nil {
		w := *m.WinnerID
		out.WinnerID = &w
	}
	if m.FinalScores != nil {
		out.FinalScores = make(map[string]float64, len(m.FinalScores))
		for k, v := range m.FinalScores {
			out.FinalScores[k] = v
		}
	}
	if m.Result != nil {
		r := *m.Result
		out.Result = &r
	}
	return &out
}

// MatchSummary is the condensed match shape broadcast on arena/matches.
type MatchSummary struct {
	ID          string       `json:"id"`
	Type        MatchType    `json:"type"`
	Division    Division     `json:"division"`
	Status      MatchStatus  `json:"status"`
	Agent1ID    string       `json:"agent1Id"`
	Agent2ID    string       `json:"agent2Id"`
	ChallengeID string       `json:"challengeId"`
	WinnerID    *string      `json:"winnerId"`
	Result      *MatchResult `json:"result,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	StartedAt   *time.Time   `json:"startedAt,omitempty"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

// Summary condenses the match for the arena-wide topic.
func (m *Match) Summary() *MatchSummary {
	c := m.Clone()
	return &MatchSummary{
		ID:          c.ID,
		Type:        c.Type,
		Division:    c.Division,
		Status:      c.Status,
		Agent1ID:    c.Agent1ID,
		Agent2ID:    c.Agent2ID,
		ChallengeID: c.ChallengeID,
		WinnerID:    c.WinnerID,
		Result:      c.Result,
		CreatedAt:   c.CreatedAt,
		StartedAt:   c.StartedAt,
		CompletedAt: c.CompletedAt,
	}
}
