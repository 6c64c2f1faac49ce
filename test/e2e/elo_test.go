package e2e

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelligence-arena/arena/pkg/api"
	"github.com/intelligence-arena/arena/pkg/models"
)

// TestE2E_EloSymmetry runs one decisive novice duel between equally rated
// agents and checks the rating exchange end to end: under the novice
// K-factor of 32, 1200/1200 becomes exactly 1216/1184.
func TestE2E_EloSymmetry(t *testing.T) {
	app := NewTestApp(t)

	ch := app.SeedChallenge(t, "Sum of the first hundred integers", models.ChallengeMathematical, models.DifficultyBeginner)
	castor := app.SeedAgent(t, "castor", models.DivisionNovice, 1200)
	pollux := app.SeedAgent(t, "pollux", models.DivisionNovice, 1200)
	app.Gateway.Script(castor.ModelID, GatewayScriptEntry{Text: "Pair the ends: 101 times 50 is 5050."})
	app.Gateway.Script(pollux.ModelID, GatewayScriptEntry{Text: "Adding them one by one gives 5049."})
	app.SeedJudges(t, 3, EvaluationJSON(t, 9, 4, "agent1"))

	created := app.StartQuickMatch(t, api.QuickMatchRequest{
		Agent1ID: "castor", Agent2ID: "pollux", ChallengeID: ch.ID,
	})
	require.Equal(t, "castor", created.Agent1ID, "explicit pairs keep their order")
	require.Equal(t, models.MatchRegularDuel, created.Type)

	done := app.WaitForMatch(t, created.ID, models.MatchCompleted)
	require.NotNil(t, done.WinnerID)
	assert.Equal(t, "castor", *done.WinnerID)
	require.NotNil(t, done.Result)
	assert.Equal(t, models.ResultWin, *done.Result)

	// From equal ratings the winner gains exactly what the loser gives up.
	winner := app.GetAgent(t, "castor")
	loser := app.GetAgent(t, "pollux")
	assert.Equal(t, 1216.0, winner.EloRating)
	assert.Equal(t, 1184.0, loser.EloRating)

	// Both histories carry the mirrored exchange.
	require.Len(t, winner.EloHistory, 1)
	require.Len(t, loser.EloHistory, 1)
	assert.Equal(t, 16.0, winner.EloHistory[0].Delta)
	assert.Equal(t, -16.0, loser.EloHistory[0].Delta)
	assert.Equal(t, models.ResultWin, winner.EloHistory[0].Result)
	assert.Equal(t, models.ResultLoss, loser.EloHistory[0].Result)
	assert.Equal(t, "pollux", winner.EloHistory[0].OpponentID)
	assert.Equal(t, 1200.0, winner.EloHistory[0].OpponentRating, "deltas are computed from pre-match ratings")

	// One win, one loss, and both streaks moved.
	assert.Equal(t, 1, winner.GlobalStats.Wins)
	assert.Equal(t, 1, loser.GlobalStats.Losses)
	assert.Equal(t, 1, winner.GlobalStats.CurrentStreak)
	assert.Equal(t, -1, loser.GlobalStats.CurrentStreak)
}
