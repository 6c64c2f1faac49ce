package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDivisionKFactor(t *testing.T) {
	tests := []struct {
		division Division
		k        float64
	}{
		{DivisionNovice, 32},
		{DivisionExpert, 24},
		{DivisionMaster, 16},
		{DivisionKing, 12},
	}

	for _, tt := range tests {
		t.Run(string(tt.division), func(t *testing.T) {
			assert.Equal(t, tt.k, tt.division.KFactor())
		})
	}
}

func TestDivisionDifficultyBand(t *testing.T) {
	tests := []struct {
		division Division
		band     []Difficulty
	}{
		{DivisionNovice, []Difficulty{DifficultyBeginner, DifficultyIntermediate}},
		{DivisionExpert, []Difficulty{DifficultyIntermediate, DifficultyAdvanced}},
		{DivisionMaster, []Difficulty{DifficultyAdvanced, DifficultyExpert}},
		{DivisionKing, []Difficulty{DifficultyExpert, DifficultyMaster}},
	}

	for _, tt := range tests {
		t.Run(string(tt.division), func(t *testing.T) {
			assert.Equal(t, tt.band, tt.division.DifficultyBand())
		})
	}
}

func TestDivisionRankOrdering(t *testing.T) {
	assert.Less(t, DivisionNovice.Rank(), DivisionExpert.Rank())
	assert.Less(t, DivisionExpert.Rank(), DivisionMaster.Rank())
	assert.Less(t, DivisionMaster.Rank(), DivisionKing.Rank())
}

func TestStatsRecordStreaks(t *testing.T) {
	tests := []struct {
		name       string
		results    []MatchResult
		wantStreak int
		wantBest   int
	}{
		{"three wins", []MatchResult{ResultWin, ResultWin, ResultWin}, 3, 3},
		{"win then loss", []MatchResult{ResultWin, ResultLoss}, -1, 1},
		{"loss run", []MatchResult{ResultLoss, ResultLoss, ResultLoss}, -3, 3},
		{"draw resets", []MatchResult{ResultWin, ResultWin, ResultDraw}, 0, 2},
		{"loss after draw", []MatchResult{ResultDraw, ResultLoss}, -1, 1},
		{"win after losses", []MatchResult{ResultLoss, ResultLoss, ResultWin}, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Stats
			for _, r := range tt.results {
				s.Record(r)
			}
			assert.Equal(t, tt.wantStreak, s.CurrentStreak)
			assert.Equal(t, tt.wantBest, s.BestStreak)
			assert.Equal(t, len(tt.results), s.Matches)
			assert.Equal(t, s.Matches, s.Wins+s.Losses+s.Draws)
			assert.GreaterOrEqual(t, s.BestStreak, abs(s.CurrentStreak))
		})
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestStatsWinRate(t *testing.T) {
	var s Stats
	assert.Zero(t, s.WinRate())

	s.Record(ResultWin)
	s.Record(ResultWin)
	s.Record(ResultLoss)
	s.Record(ResultDraw)
	assert.InDelta(t, 0.5, s.WinRate(), 1e-9)
}

func TestNewAgentDefaults(t *testing.T) {
	a := NewAgent("a-1", "Atlas", "test/model-a")

	assert.Equal(t, DivisionNovice, a.Division)
	assert.Equal(t, StartingElo, a.EloRating)
	assert.Equal(t, 1.0, a.JudgeStats.Reliability)
	assert.True(t, a.Active)
	assert.Zero(t, a.GlobalStats.Matches)
}

func TestAgentChangeDivision(t *testing.T) {
	a := NewAgent("a-1", "Atlas", "test/model-a")
	a.DivisionStats.Record(ResultWin)
	a.DivisionStats.Record(ResultWin)
	a.KingChallengeLosses = 2

	at := Now()
	a.ChangeDivision(DivisionExpert, "win rate 1.00 over 2 division matches", DivisionChangePromotion, at)

	assert.Equal(t, DivisionExpert, a.Division)
	assert.Zero(t, a.DivisionStats.Matches)
	assert.Zero(t, a.KingChallengeLosses)
	require.Len(t, a.DivisionChangeHistory, 1)
	rec := a.DivisionChangeHistory[0]
	assert.Equal(t, DivisionNovice, rec.From)
	assert.Equal(t, DivisionExpert, rec.To)
	assert.Equal(t, DivisionChangePromotion, rec.Kind)
	assert.Equal(t, at, rec.Timestamp)
}

func TestAgentHasPlayed(t *testing.T) {
	a := NewAgent("a-1", "Atlas", "test/model-a")
	assert.False(t, a.HasPlayed("m-1"))

	a.EloHistory = append(a.EloHistory, EloHistoryEntry{MatchID: "m-1", Rating: 1016})
	assert.True(t, a.HasPlayed("m-1"))
	assert.False(t, a.HasPlayed("m-2"))
}

func TestAgentCloneIsDeep(t *testing.T) {
	a := NewAgent("a-1", "Atlas", "test/model-a")
	a.Specializations = []string{"math"}
	a.EloHistory = []EloHistoryEntry{{MatchID: "m-1"}}
	last := Now()
	a.LastMatchAt = &last

	b := a.Clone()
	b.Specializations[0] = "logic"
	b.EloHistory[0].MatchID = "m-2"
	*b.LastMatchAt = last.Add(time.Hour)

	assert.Equal(t, "math", a.Specializations[0])
	assert.Equal(t, "m-1", a.EloHistory[0].MatchID)
	assert.Equal(t, last, *a.LastMatchAt)
}

func TestNowMillisecondPrecision(t *testing.T) {
	now := Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.Zero(t, now.Nanosecond()%int(time.Millisecond))
}
