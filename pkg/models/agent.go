package models

import (
	"time"
)

// Division is the rank bucket an agent competes in.
type Division string

const (
	// DivisionNovice is the entry division for new agents
	DivisionNovice Division = "novice"
	// DivisionExpert is the second division
	DivisionExpert Division = "expert"
	// DivisionMaster is the highest regular division
	DivisionMaster Division = "master"
	// DivisionKing is held by exactly one reigning champion
	DivisionKing Division = "king"
)

// IsValid checks if the division is valid
func (d Division) IsValid() bool {
	switch d {
	case DivisionNovice, DivisionExpert, DivisionMaster, DivisionKing:
		return true
	default:
		return false
	}
}

// Rank returns the ordinal position of the division, novice lowest.
func (d Division) Rank() int {
	switch d {
	case DivisionNovice:
		return 1
	case DivisionExpert:
		return 2
	case DivisionMaster:
		return 3
	case DivisionKing:
		return 4
	default:
		return 0
	}
}

// KFactor returns the ELO K-factor applied to matches played in this division.
func (d Division) KFactor() float64 {
	switch d {
	case DivisionNovice:
		return 32
	case DivisionExpert:
		return 24
	case DivisionMaster:
		return 16
	case DivisionKing:
		return 12
	default:
		return 32
	}
}

// DifficultyBand returns the challenge difficulties served to this division.
func (d Division) DifficultyBand() []Difficulty {
	switch d {
	case DivisionNovice:
		return []Difficulty{DifficultyBeginner, DifficultyIntermediate}
	case DivisionExpert:
		return []Difficulty{DifficultyIntermediate, DifficultyAdvanced}
	case DivisionMaster:
		return []Difficulty{DifficultyAdvanced, DifficultyExpert}
	case DivisionKing:
		return []Difficulty{DifficultyExpert, DifficultyMaster}
	default:
		return nil
	}
}

// DivisionChangeKind distinguishes promotions from demotions.
type DivisionChangeKind string

const (
	// DivisionChangePromotion records movement to a higher division
	DivisionChangePromotion DivisionChangeKind = "promotion"
	// DivisionChangeDemotion records movement to a lower division
	DivisionChangeDemotion DivisionChangeKind = "demotion"
)

// Division-change reasons used by the ranking engine for king transitions.
const (
	ReasonCrowning       = "crowning"
	ReasonDethroned      = "dethroned"
	ReasonAutoSuccession = "automatic_succession"
)

// DivisionChange is one entry in an agent's division history.
type DivisionChange struct {
	From      Division           `json:"from"`
	To        Division           `json:"to"`
	Timestamp time.Time          `json:"timestamp"`
	Reason    string             `json:"reason"`
	Kind      DivisionChangeKind `json:"kind"`
}

// Stats accumulates match outcomes. The same shape serves both the agent's
// career (globalStats) and its current division (divisionStats, reset on
// every division change).
type Stats struct {
	Matches       int `json:"matches"`
	Wins          int `json:"wins"`
	Losses        int `json:"losses"`
	Draws         int `json:"draws"`
	CurrentStreak int `json:"currentStreak"`
	BestStreak    int `json:"bestStreak"`
}

// WinRate returns wins/matches, 0 when no matches were played.
func (s *Stats) WinRate() float64 {
	if s.Matches == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Matches)
}

// Record applies one match result from the owning agent's perspective.
// A win extends a positive streak or starts one at +1, a loss extends a
// negative streak or starts one at -1, a draw resets the streak.
func (s *Stats) Record(result MatchResult) {
	s.Matches++
	switch result {
	case ResultWin:
		s.Wins++
		if s.CurrentStreak >= 0 {
			s.CurrentStreak++
		} else {
			s.CurrentStreak = 1
		}
	case ResultLoss:
		s.Losses++
		if s.CurrentStreak <= 0 {
			s.CurrentStreak--
		} else {
			s.CurrentStreak = -1
		}
	case ResultDraw:
		s.Draws++
		s.CurrentStreak = 0
	}
	if abs := s.CurrentStreak; abs < 0 {
		if -abs > s.BestStreak {
			s.BestStreak = -abs
		}
	} else if abs > s.BestStreak {
		s.BestStreak = abs
	}
}

// Reset zeroes everything except nothing: division stats start over on a
// division change. BestStreak is part of the divisional record and resets
// with it.
func (s *Stats) Reset() {
	*s = Stats{}
}

// JudgeStats tracks an agent's performance as a panel judge.
type JudgeStats struct {
	// Evaluations is the number of panel verdicts the judge took part in.
	Evaluations int `json:"evaluations"`
	// Aligned counts evaluations whose recommendation matched the panel verdict.
	Aligned int `json:"aligned"`
	// Accuracy is Aligned/Evaluations, maintained by the ranking engine.
	Accuracy float64 `json:"accuracy"`
	// Reliability weights the judge's future selections and scores, in [0,1].
	Reliability float64 `json:"reliability"`
}

// EloHistoryEntry is one rating change in an agent's ELO history.
type EloHistoryEntry struct {
	Timestamp      time.Time   `json:"timestamp"`
	Rating         float64     `json:"rating"`
	MatchID        string      `json:"matchId"`
	OpponentID     string      `json:"opponentId"`
	OpponentRating float64     `json:"opponentRatingAtMatch"`
	Result         MatchResult `json:"result"`
	Delta          float64     `json:"delta"`
}

// Agent is a language-model competitor. Every agent can also be drafted as
// a judge for matches it does not play in.
type Agent struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"displayName"`
	Description     string   `json:"description,omitempty"`
	Specializations []string `json:"specializations,omitempty"`
	// ModelID names the provider model the gateway invokes for this agent.
	ModelID  string   `json:"modelId"`
	Division Division `json:"division"`

	EloRating float64 `json:"eloRating"`

	GlobalStats   Stats      `json:"globalStats"`
	DivisionStats Stats      `json:"divisionStats"`
	JudgeStats    JudgeStats `json:"judgeStats"`

	// KingChallengeLosses counts crown defenses lost while King; reset on
	// any division change.
	KingChallengeLosses int `json:"kingChallengeLosses"`

	EloHistory            []EloHistoryEntry `json:"eloHistory"`
	DivisionChangeHistory []DivisionChange  `json:"divisionChangeHistory"`

	Active      bool       `json:"active"`
	LastMatchAt *time.Time `json:"lastMatchAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`

	// Version is the optimistic-concurrency token checked by the repository.
	Version int64 `json:"version"`
}

// NewAgent creates an active novice agent with the starting rating.
func NewAgent(id, displayName, modelID string) *Agent {
	now := Now()
	return &Agent{
		ID:          id,
		DisplayName: displayName,
		ModelID:     modelID,
		Division:    DivisionNovice,
		EloRating:   StartingElo,
		JudgeStats:  JudgeStats{Reliability: 1.0},
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// StartingElo is the rating assigned to newly created agents.
const StartingElo = 1000.0

// HasPlayed reports whether matchID already appears in the agent's ELO
// history. The ranking engine uses this to reject double application.
func (a *Agent) HasPlayed(matchID string) bool {
	for i := range a.EloHistory {
		if a.EloHistory[i].MatchID == matchID {
			return true
		}
	}
	return false
}

// ChangeDivision moves the agent to a new division, resets the divisional
// record, and appends to the division-change history.
func (a *Agent) ChangeDivision(to Division, reason string, kind DivisionChangeKind, at time.Time) {
	a.DivisionChangeHistory = append(a.DivisionChangeHistory, DivisionChange{
		From:      a.Division,
		To:        to,
		Timestamp: at,
		Reason:    reason,
		Kind:      kind,
	})
	a.Division = to
	a.DivisionStats.Reset()
	a.KingChallengeLosses = 0
}

// Clone returns a deep copy.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	out := *a
	out.Specializations = append([]string(nil), a.Specializations...)
	out.EloHistory = append([]EloHistoryEntry(nil), a.EloHistory...)
	out.DivisionChangeHistory = append([]DivisionChange(nil), a.DivisionChangeHistory...)
	if a.LastMatchAt != nil {
		t := *a.LastMatchAt
		out.LastMatchAt = &t
	}
	return &out
}

// Now returns the current UTC instant truncated to millisecond precision,
// the resolution all persisted timestamps use.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
