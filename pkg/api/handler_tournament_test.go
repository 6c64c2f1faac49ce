package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelligence-arena/arena/pkg/config"
	"github.com/intelligence-arena/arena/pkg/models"
	"github.com/intelligence-arena/arena/pkg/scheduler"
)

func TestStartTournamentValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name   string
		target string
	}{
		{name: "zero rounds", target: "/tournament/start?numRounds=0"},
		{name: "negative rounds", target: "/tournament/start?numRounds=-2"},
		{name: "non-numeric rounds", target: "/tournament/start?numRounds=abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tt.target, nil, adminHeader())
			require.Equal(t, http.StatusBadRequest, rec.Code)
			var body errorBody
			decode(t, rec, &body)
			assert.Contains(t, body.Message, "numRounds")
		})
	}

	t.Run("requires admin key", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/tournament/start", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

// TestStartTournamentEmptyArena runs a tournament with nobody enrolled: every
// round pairs nothing, the crown shot is ineligible, and the driver finishes
// on its own.
func TestStartTournamentEmptyArena(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/tournament/start?numRounds=3", nil, adminHeader())
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var status scheduler.TournamentStatus
	decode(t, rec, &status)
	assert.Equal(t, 3, status.TotalRounds)
	assert.NotNil(t, status.StartedAt)

	require.Eventually(t, func() bool {
		rec := ts.do(t, http.MethodGet, "/tournament/status", nil, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		var status scheduler.TournamentStatus
		decode(t, rec, &status)
		return !status.Running && status.CompletedAt != nil
	}, 5*time.Second, 20*time.Millisecond, "tournament never finished")

	rec = ts.do(t, http.MethodGet, "/tournament/status", nil, nil)
	var final scheduler.TournamentStatus
	decode(t, rec, &final)
	assert.Equal(t, 3, final.CurrentRound)
	assert.Zero(t, final.MatchesPlayed)
}

// TestStartTournamentConflict wedges round two behind the live cap so the
// driver stays running long enough to reject a second start.
func TestStartTournamentConflict(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Arena.MaxLiveMatches = 1
	})
	ts.seedChallenge(t, "ch-1", models.ChallengeLogicalReasoning, models.DifficultyBeginner)
	ts.seedChallenge(t, "ch-2", models.ChallengeLogicalReasoning, models.DifficultyBeginner)
	a := ts.seedAgent(t, "a", models.DivisionNovice, 1000)
	b := ts.seedAgent(t, "b", models.DivisionNovice, 1010)
	ts.gw.script(a.ModelID, stubReply{hang: true})
	ts.gw.script(b.ModelID, stubReply{hang: true})

	rec := ts.do(t, http.MethodPost, "/tournament/start?numRounds=2", nil, adminHeader())
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/tournament/start", nil, adminHeader())
	require.Equal(t, http.StatusConflict, rec.Code)
	var body errorBody
	decode(t, rec, &body)
	assert.Equal(t, "tournament_running", body.Error)

	rec = ts.do(t, http.MethodGet, "/tournament/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status scheduler.TournamentStatus
	decode(t, rec, &status)
	assert.True(t, status.Running)
	assert.Equal(t, 2, status.TotalRounds)
}
