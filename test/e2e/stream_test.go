package e2e

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelligence-arena/arena/pkg/api"
	"github.com/intelligence-arena/arena/pkg/events"
	"github.com/intelligence-arena/arena/pkg/models"
)

// TestE2E_MatchStreamOrdering subscribes to a match stream over real SSE
// while the duel is held at the gateway, then releases it and checks the
// full delivery contract:
//
//  1. The stream opens with a snapshot taken before any delta
//  2. Per-agent deltas arrive in generation order and assemble into
//     exactly the responseComplete text
//  3. Status transitions bracket the phases and evaluations arrive
//     inside judging
//  4. The verdict is the last frame of the stream
func TestE2E_MatchStreamOrdering(t *testing.T) {
	app := NewTestApp(t)

	ch := app.SeedChallenge(t, "Design a fair cake cut", models.ChallengeCreativeProblemSolving, models.DifficultyBeginner)

	releaseCh := make(chan struct{})
	blockedCh := make(chan struct{}, 2)

	north := app.SeedAgent(t, "north", models.DivisionNovice, 1000)
	south := app.SeedAgent(t, "south", models.DivisionNovice, 1000)
	app.Gateway.Script(north.ModelID, GatewayScriptEntry{
		Chunks:  []string{"One cuts, ", "the other ", "chooses."},
		WaitCh:  releaseCh,
		OnBlock: blockedCh,
	})
	app.Gateway.Script(south.ModelID, GatewayScriptEntry{
		Chunks:  []string{"Split it ", "by weight."},
		WaitCh:  releaseCh,
		OnBlock: blockedCh,
	})
	app.SeedJudges(t, 3, EvaluationJSON(t, 8, 6, "agent1"))

	// ═══════════════════════════════════════════════════
	// Phase 1: subscribe while the duel is parked
	// ═══════════════════════════════════════════════════

	created := app.StartQuickMatch(t, api.QuickMatchRequest{
		Agent1ID: "north", Agent2ID: "south", ChallengeID: ch.ID,
	})

	// Both competitor calls are held at the gateway, so the match is
	// in_progress with nothing streamed yet.
	<-blockedCh
	<-blockedCh

	stream := app.OpenStream(t, "/matches/"+created.ID+"/stream")
	defer stream.Close()

	first := stream.Next(t, 5*time.Second)
	require.Equal(t, events.EventTypeSnapshot, string(first.Event))
	var snap models.Match
	require.NoError(t, json.Unmarshal(first.Data, &snap))
	require.Equal(t, created.ID, snap.ID)
	require.Equal(t, models.MatchInProgress, snap.Status)
	assert.Nil(t, snap.Agent1Response, "nothing had streamed when the snapshot was taken")
	assert.Nil(t, snap.Agent2Response)

	// ═══════════════════════════════════════════════════
	// Phase 2: release the duel and replay the stream
	// ═══════════════════════════════════════════════════

	close(releaseCh)

	assembled := map[string]string{}
	completed := map[string]string{}
	var statuses []models.MatchStatus
	evaluations := 0
	var final events.FinalPayload

	for {
		ev := stream.Next(t, 10*time.Second)
		eventType := string(ev.Event)
		switch eventType {
		case events.EventTypeResponseDelta:
			var p events.ResponseDeltaPayload
			require.NoError(t, json.Unmarshal(ev.Data, &p))
			require.Empty(t, statuses, "all deltas precede the judging transition")
			require.Empty(t, completed[p.AgentID], "no delta after the agent's responseComplete")
			assembled[p.AgentID] += p.TextDelta
		case events.EventTypeResponseComplete:
			var p events.ResponseCompletePayload
			require.NoError(t, json.Unmarshal(ev.Data, &p))
			require.NotNil(t, p.Response)
			assert.False(t, p.Response.IsStreaming)
			completed[p.AgentID] = p.Response.Text
		case events.EventTypeStatus:
			var p events.StatusPayload
			require.NoError(t, json.Unmarshal(ev.Data, &p))
			statuses = append(statuses, p.Status)
		case events.EventTypeEvaluation:
			require.Equal(t, models.MatchJudging, statuses[len(statuses)-1], "evaluations arrive inside the judging phase")
			evaluations++
		case events.EventTypeFinal:
			require.NoError(t, json.Unmarshal(ev.Data, &final))
		}
		if eventType == events.EventTypeFinal {
			break
		}
	}

	// Deltas assemble into exactly the completed responses.
	assert.Equal(t, "One cuts, the other chooses.", assembled["north"])
	assert.Equal(t, "Split it by weight.", assembled["south"])
	assert.Equal(t, assembled, completed)

	// Lifecycle order from the subscription point onward.
	assert.Equal(t, []models.MatchStatus{
		models.MatchJudging, models.MatchFinalizing, models.MatchCompleted,
	}, statuses)
	assert.Equal(t, 3, evaluations)

	require.NotNil(t, final.WinnerID)
	assert.Equal(t, "north", *final.WinnerID)
	require.NotNil(t, final.Result)
	assert.Equal(t, models.ResultWin, *final.Result)
	assert.InDelta(t, 8.0, final.FinalScores["north"], 0.001)
	assert.InDelta(t, 6.0, final.FinalScores["south"], 0.001)
}
