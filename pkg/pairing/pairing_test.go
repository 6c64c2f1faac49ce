package pairing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelligence-arena/arena/pkg/models"
	"github.com/intelligence-arena/arena/pkg/repository"
)

func seedAgent(t *testing.T, repo repository.Repository, id string, division models.Division, elo float64) *models.Agent {
	t.Helper()
	a := models.NewAgent(id, id, "test/model-"+id)
	a.Division = division
	a.EloRating = elo
	require.NoError(t, repo.PutAgent(context.Background(), a))
	return a
}

func seedMeeting(t *testing.T, repo repository.Repository, id, agent1ID, agent2ID string) {
	t.Helper()
	require.NoError(t, repo.PutMatch(context.Background(), &models.Match{
		ID:          id,
		Agent1ID:    agent1ID,
		Agent2ID:    agent2ID,
		ChallengeID: "ch-1",
		Division:    models.DivisionNovice,
		Type:        models.MatchRegularDuel,
		Status:      models.MatchCompleted,
		CreatedAt:   models.Now(),
	}))
}

func TestPickRequiresTwoRestedAgents(t *testing.T) {
	repo := repository.NewMemoryStore()
	picker := NewPicker(repo, 10*time.Second, 0)

	_, _, err := picker.Pick(context.Background(), models.DivisionNovice)
	assert.ErrorIs(t, err, ErrNoOpponent, "empty division")

	seedAgent(t, repo, "solo", models.DivisionNovice, 1000)
	_, _, err = picker.Pick(context.Background(), models.DivisionNovice)
	assert.ErrorIs(t, err, ErrNoOpponent, "single agent")
}

func TestPickCooldownGatesTiredAgents(t *testing.T) {
	repo := repository.NewMemoryStore()
	picker := NewPicker(repo, 10*time.Second, 0)

	rested := seedAgent(t, repo, "rested", models.DivisionNovice, 1000)
	justPlayed := models.Now()
	rested.LastMatchAt = &justPlayed
	require.NoError(t, repo.PutAgent(context.Background(), rested))

	seedAgent(t, repo, "other", models.DivisionNovice, 1010)

	_, _, err := picker.Pick(context.Background(), models.DivisionNovice)
	assert.ErrorIs(t, err, ErrNoOpponent, "agent inside cooldown must not be paired")

	// Once the cooldown has elapsed the pair becomes available.
	longAgo := models.Now().Add(-time.Minute)
	rested, err = repo.GetAgent(context.Background(), "rested")
	require.NoError(t, err)
	rested.LastMatchAt = &longAgo
	require.NoError(t, repo.PutAgent(context.Background(), rested))

	a, b, err := picker.Pick(context.Background(), models.DivisionNovice)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"rested", "other"}, []string{a.ID, b.ID})
}

func TestPickSkipsExcludedAgents(t *testing.T) {
	repo := repository.NewMemoryStore()
	picker := NewPicker(repo, 0, 0)

	seedAgent(t, repo, "a", models.DivisionNovice, 1000)
	seedAgent(t, repo, "b", models.DivisionNovice, 1010)
	seedAgent(t, repo, "c", models.DivisionNovice, 1020)

	for i := 0; i < 25; i++ {
		got1, got2, err := picker.Pick(context.Background(), models.DivisionNovice, "b")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "c"}, []string{got1.ID, got2.ID})
	}

	// Excluding all but one leaves no pair.
	_, _, err := picker.Pick(context.Background(), models.DivisionNovice, "b", "c")
	assert.ErrorIs(t, err, ErrNoOpponent)
}

func TestPickPrefersNearestRating(t *testing.T) {
	repo := repository.NewMemoryStore()
	picker := NewPicker(repo, 0, 0)

	// Whatever the anchor draw, the nearest-rating rule can never pair the
	// two extremes when a middle agent sits between them.
	seedAgent(t, repo, "low", models.DivisionExpert, 1000)
	seedAgent(t, repo, "mid", models.DivisionExpert, 1010)
	seedAgent(t, repo, "high", models.DivisionExpert, 2000)

	for i := 0; i < 50; i++ {
		a, b, err := picker.Pick(context.Background(), models.DivisionExpert)
		require.NoError(t, err)
		got := []string{a.ID, b.ID}
		assert.NotElementsMatch(t, []string{"low", "high"}, got, "extremes paired despite a nearer candidate")
	}
}

func TestPickFairnessExcludesFrequentRematch(t *testing.T) {
	repo := repository.NewMemoryStore()

	seedAgent(t, repo, "a", models.DivisionNovice, 1000)
	seedAgent(t, repo, "b", models.DivisionNovice, 1001)
	for i := 0; i < maxMeetings+1; i++ {
		seedMeeting(t, repo, fmt.Sprintf("m-%d", i), "a", "b")
	}

	// With only the overexposed pair available no fair opponent exists.
	picker := NewPicker(repo, 0, 0)
	_, _, err := picker.Pick(context.Background(), models.DivisionNovice)
	assert.ErrorIs(t, err, ErrNoOpponent)

	// A fresh third agent is always part of the chosen pair, under both
	// the greedy and the exploratory policy.
	seedAgent(t, repo, "c", models.DivisionNovice, 1002)
	for _, epsilon := range []float64{0, 1} {
		picker := NewPicker(repo, 0, epsilon)
		for i := 0; i < 25; i++ {
			a, b, err := picker.Pick(context.Background(), models.DivisionNovice)
			require.NoError(t, err)
			assert.Contains(t, []string{a.ID, b.ID}, "c", "epsilon=%v", epsilon)
		}
	}
}

func TestPickFairnessAllowsOccasionalRematch(t *testing.T) {
	repo := repository.NewMemoryStore()
	picker := NewPicker(repo, 0, 0)

	seedAgent(t, repo, "a", models.DivisionNovice, 1000)
	seedAgent(t, repo, "b", models.DivisionNovice, 1001)
	for i := 0; i < maxMeetings; i++ {
		seedMeeting(t, repo, fmt.Sprintf("m-%d", i), "a", "b")
	}

	a, b, err := picker.Pick(context.Background(), models.DivisionNovice)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, []string{a.ID, b.ID})
}

func TestPickPairValidations(t *testing.T) {
	repo := repository.NewMemoryStore()
	picker := NewPicker(repo, 10*time.Second, 0.1)

	seedAgent(t, repo, "a", models.DivisionExpert, 1100)
	seedAgent(t, repo, "b", models.DivisionExpert, 1200)
	inactive := seedAgent(t, repo, "dormant", models.DivisionExpert, 1150)
	inactive.Active = false
	require.NoError(t, repo.PutAgent(context.Background(), inactive))
	seedAgent(t, repo, "novice", models.DivisionNovice, 1000)

	t.Run("happy path ignores cooldown", func(t *testing.T) {
		a, err := repo.GetAgent(context.Background(), "a")
		require.NoError(t, err)
		now := models.Now()
		a.LastMatchAt = &now
		require.NoError(t, repo.PutAgent(context.Background(), a))

		got1, got2, err := picker.PickPair(context.Background(), models.DivisionExpert, "a", "b")
		require.NoError(t, err)
		assert.Equal(t, "a", got1.ID)
		assert.Equal(t, "b", got2.ID)
	})

	t.Run("unknown agent", func(t *testing.T) {
		_, _, err := picker.PickPair(context.Background(), models.DivisionExpert, "a", "ghost")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("self play", func(t *testing.T) {
		_, _, err := picker.PickPair(context.Background(), models.DivisionExpert, "a", "a")
		assert.ErrorIs(t, err, ErrNoOpponent)
	})

	t.Run("inactive agent", func(t *testing.T) {
		_, _, err := picker.PickPair(context.Background(), models.DivisionExpert, "a", "dormant")
		assert.ErrorIs(t, err, ErrNoOpponent)
	})

	t.Run("division mismatch", func(t *testing.T) {
		_, _, err := picker.PickPair(context.Background(), models.DivisionExpert, "a", "novice")
		assert.ErrorIs(t, err, ErrNoOpponent)
	})
}
