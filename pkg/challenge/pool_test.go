package challenge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelligence-arena/arena/pkg/models"
	"github.com/intelligence-arena/arena/pkg/repository"
)

func seedChallenge(t *testing.T, repo *repository.MemoryStore, id string, difficulty models.Difficulty, mutate func(*models.Challenge)) *models.Challenge {
	t.Helper()
	now := models.Now()
	c := &models.Challenge{
		ID:           id,
		Title:        "Challenge " + id,
		Description:  "description",
		Type:         models.ChallengeLogicalReasoning,
		Difficulty:   difficulty,
		Source:       models.SourceSeed,
		QualityScore: models.DefaultQualityScore,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if mutate != nil {
		mutate(c)
	}
	require.NoError(t, repo.PutChallenge(context.Background(), c))
	return c
}

func seedMatchUsing(t *testing.T, repo *repository.MemoryStore, id, agentID, challengeID string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, repo.PutMatch(context.Background(), &models.Match{
		ID:          id,
		Agent1ID:    agentID,
		Agent2ID:    "sparring-partner",
		ChallengeID: challengeID,
		Division:    models.DivisionNovice,
		Type:        models.MatchRegularDuel,
		Status:      models.MatchCompleted,
		CreatedAt:   createdAt,
	}))
}

func TestPoolPickRespectsBandAndServability(t *testing.T) {
	repo := repository.NewMemoryStore()
	pool := NewPool(repo)
	ctx := context.Background()

	seedChallenge(t, repo, "beginner", models.DifficultyBeginner, nil)
	seedChallenge(t, repo, "intermediate", models.DifficultyIntermediate, nil)
	seedChallenge(t, repo, "advanced", models.DifficultyAdvanced, nil)
	seedChallenge(t, repo, "retired", models.DifficultyBeginner, func(c *models.Challenge) { c.Retired = true })
	seedChallenge(t, repo, "probation", models.DifficultyBeginner, func(c *models.Challenge) { c.Probation = true })

	allowed := map[string]bool{"beginner": true, "intermediate": true}
	for i := 0; i < 20; i++ {
		picked, err := pool.Pick(ctx, models.DivisionNovice, "")
		require.NoError(t, err)
		assert.True(t, allowed[picked.ID], "picked %s outside the novice band", picked.ID)
	}

	// Master band excludes everything seeded above except "advanced".
	picked, err := pool.Pick(ctx, models.DivisionMaster, "")
	require.NoError(t, err)
	assert.Equal(t, "advanced", picked.ID)
}

func TestPoolPickFiltersByType(t *testing.T) {
	repo := repository.NewMemoryStore()
	pool := NewPool(repo)
	ctx := context.Background()

	seedChallenge(t, repo, "logic", models.DifficultyBeginner, nil)
	seedChallenge(t, repo, "math", models.DifficultyBeginner, func(c *models.Challenge) {
		c.Type = models.ChallengeMathematical
	})

	for i := 0; i < 10; i++ {
		picked, err := pool.Pick(ctx, models.DivisionNovice, models.ChallengeMathematical)
		require.NoError(t, err)
		assert.Equal(t, "math", picked.ID)
	}
}

func TestPoolPickExcludesRecentlyUsed(t *testing.T) {
	repo := repository.NewMemoryStore()
	pool := NewPool(repo)
	ctx := context.Background()

	seedChallenge(t, repo, "worn", models.DifficultyBeginner, nil)
	seedChallenge(t, repo, "aged", models.DifficultyBeginner, nil)

	// The agent's 10 newest matches reuse "worn"; an 11th, older match
	// used "aged", which therefore falls outside the exclusion window.
	base := models.Now().Add(-time.Hour)
	seedMatchUsing(t, repo, "m-old", "agent-1", "aged", base)
	for i := 0; i < 10; i++ {
		seedMatchUsing(t, repo, "m-"+string(rune('a'+i)), "agent-1", "worn", base.Add(time.Duration(i+1)*time.Minute))
	}

	for i := 0; i < 10; i++ {
		picked, err := pool.Pick(ctx, models.DivisionNovice, "", "agent-1")
		require.NoError(t, err)
		assert.Equal(t, "aged", picked.ID)
	}

	// Without the competitor exclusion both are eligible again.
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		picked, err := pool.Pick(ctx, models.DivisionNovice, "")
		require.NoError(t, err)
		seen[picked.ID] = true
	}
	assert.True(t, seen["worn"] && seen["aged"], "expected both challenges over 50 unfiltered picks, saw %v", seen)
}

func TestPoolPickEmpty(t *testing.T) {
	repo := repository.NewMemoryStore()
	pool := NewPool(repo)

	_, err := pool.Pick(context.Background(), models.DivisionKing, "")
	assert.ErrorIs(t, err, ErrNoChallenge)
}

func TestPoolPickByID(t *testing.T) {
	repo := repository.NewMemoryStore()
	pool := NewPool(repo)
	ctx := context.Background()

	seedChallenge(t, repo, "probation", models.DifficultyBeginner, func(c *models.Challenge) { c.Probation = true })
	seedChallenge(t, repo, "retired", models.DifficultyBeginner, func(c *models.Challenge) { c.Retired = true })

	// Probation challenges are reachable by id (probation trials).
	picked, err := pool.PickByID(ctx, "probation")
	require.NoError(t, err)
	assert.Equal(t, "probation", picked.ID)

	_, err = pool.PickByID(ctx, "retired")
	assert.ErrorIs(t, err, ErrNoChallenge)

	_, err = pool.PickByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPoolContribute(t *testing.T) {
	repo := repository.NewMemoryStore()
	pool := NewPool(repo)
	ctx := context.Background()

	draft := Draft{
		Title:       "The Bridge Crossing Puzzle",
		Description: "Four people must cross a bridge at night with one torch.",
		Type:        models.ChallengeLogicalReasoning,
		Difficulty:  models.DifficultyIntermediate,
	}

	c, err := pool.Contribute(ctx, draft)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, models.SourceCommunity, c.Source)
	assert.True(t, c.Probation)
	assert.Equal(t, models.DefaultQualityScore, c.QualityScore)

	stored, err := repo.GetChallenge(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.Title, stored.Title)

	t.Run("duplicate titles rejected case-insensitively", func(t *testing.T) {
		dup := draft
		dup.Title = "  the   BRIDGE crossing\tpuzzle "
		_, err := pool.Contribute(ctx, dup)
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		for name, mutate := range map[string]func(*Draft){
			"title":       func(d *Draft) { d.Title = "  " },
			"description": func(d *Draft) { d.Description = "" },
			"type":        func(d *Draft) { d.Type = "interpretive_dance" },
			"difficulty":  func(d *Draft) { d.Difficulty = "impossible" },
		} {
			bad := draft
			bad.Title = "A fresh title for " + name
			mutate(&bad)
			_, err := pool.Contribute(ctx, bad)
			assert.ErrorIs(t, err, ErrInvalidDraft, "field %s", name)
		}
	})
}

func TestPoolSeed(t *testing.T) {
	repo := repository.NewMemoryStore()
	pool := NewPool(repo)
	ctx := context.Background()

	c, err := pool.Seed(ctx, Draft{
		Title:       "Weighing Twelve Coins",
		Description: "Find the odd coin in three weighings.",
		Type:        models.ChallengeLogicalReasoning,
		Difficulty:  models.DifficultyAdvanced,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SourceSeed, c.Source)
	assert.False(t, c.Probation, "seeded challenges enter rotation immediately")

	// Seeded and contributed titles share one duplicate namespace.
	_, err = pool.Contribute(ctx, Draft{
		Title:       "weighing twelve COINS",
		Description: "Find the odd coin in three weighings.",
		Type:        models.ChallengeLogicalReasoning,
		Difficulty:  models.DifficultyAdvanced,
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestPoolRetireBelow(t *testing.T) {
	repo := repository.NewMemoryStore()
	pool := NewPool(repo)
	ctx := context.Background()

	seedChallenge(t, repo, "healthy", models.DifficultyBeginner, func(c *models.Challenge) { c.QualityScore = 0.6 })
	seedChallenge(t, repo, "decayed", models.DifficultyBeginner, func(c *models.Challenge) { c.QualityScore = 0.1 })
	seedChallenge(t, repo, "already-retired", models.DifficultyBeginner, func(c *models.Challenge) {
		c.QualityScore = 0.05
		c.Retired = true
	})

	retired, err := pool.RetireBelow(ctx, 0.2)
	require.NoError(t, err)
	assert.Equal(t, 1, retired)

	decayed, err := repo.GetChallenge(ctx, "decayed")
	require.NoError(t, err)
	assert.True(t, decayed.Retired)

	healthy, err := repo.GetChallenge(ctx, "healthy")
	require.NoError(t, err)
	assert.False(t, healthy.Retired)
}

func TestWeightedSampleZeroWeights(t *testing.T) {
	challenges := []*models.Challenge{
		{ID: "a", QualityScore: 0},
		{ID: "b", QualityScore: 0},
	}
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		seen[weightedSample(challenges).ID] = true
	}
	// Zero total weight degrades to a uniform draw over the pool.
	assert.True(t, seen["a"] && seen["b"], "expected both ids, saw %v", seen)
}

func TestNormalizedTitleHash(t *testing.T) {
	assert.Equal(t, normalizedTitleHash("Hello World"), normalizedTitleHash("  hello\t\tWORLD  "))
	assert.NotEqual(t, normalizedTitleHash("Hello World"), normalizedTitleHash("Hello, World"))
}
