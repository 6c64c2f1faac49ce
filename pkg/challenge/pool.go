// Package challenge selects and curates the challenge corpus: difficulty
// band mapping per division, quality-weighted sampling with recent-use
// exclusion, and community contributions held in probation.
package challenge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/google/uuid"

	"github.com/intelligence-arena/arena/pkg/models"
	"github.com/intelligence-arena/arena/pkg/repository"
)

var (
	// ErrNoChallenge means no eligible challenge survived the filters.
	ErrNoChallenge = errors.New("no eligible challenge")

	// ErrDuplicate means a contribution collides with an existing title.
	ErrDuplicate = errors.New("duplicate challenge")

	// ErrInvalidDraft means a contribution is missing required fields.
	ErrInvalidDraft = errors.New("invalid challenge draft")
)

// recentUseDepth is how many of each competitor's latest matches are
// checked when excluding recently served challenges.
const recentUseDepth = 10

// Pool picks challenges for matches and accepts community contributions.
type Pool struct {
	repo repository.Repository
}

// NewPool creates a Pool backed by repo.
func NewPool(repo repository.Repository) *Pool {
	return &Pool{repo: repo}
}

// Pick selects a challenge for a match in the given division.
// challengeType narrows the type when non-empty; excludeAgents are the
// prospective competitors whose recent matches veto challenge reuse.
//
// Selection is a weighted sample over the servable corpus in the
// division's difficulty band, weight qualityScore × (1 + 1/(1+uses)), so
// higher-quality and less-worn challenges surface more often.
func (p *Pool) Pick(ctx context.Context, division models.Division, challengeType models.ChallengeType, excludeAgents ...string) (*models.Challenge, error) {
	candidates, err := p.repo.ListChallenges(ctx, repository.ChallengeFilter{
		Type:         challengeType,
		Difficulties: division.DifficultyBand(),
		Servable:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}

	recent, err := p.recentlyUsed(ctx, excludeAgents)
	if err != nil {
		return nil, err
	}

	eligible := candidates[:0]
	for _, c := range candidates {
		if _, used := recent[c.ID]; !used {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("division %s type %q: %w", division, challengeType, ErrNoChallenge)
	}

	picked := weightedSample(eligible)
	slog.Debug("Picked challenge",
		"challenge_id", picked.ID,
		"division", division,
		"difficulty", picked.Difficulty,
		"quality_score", picked.QualityScore,
		"uses", picked.Uses)
	return picked, nil
}

// PickByID fetches a specific challenge for probation trials and manual
// starts. Retired challenges are never served.
func (p *Pool) PickByID(ctx context.Context, id string) (*models.Challenge, error) {
	c, err := p.repo.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Retired {
		return nil, fmt.Errorf("challenge %s is retired: %w", id, ErrNoChallenge)
	}
	return c, nil
}

// Draft is a community challenge submission.
type Draft struct {
	Title              string               `json:"title"`
	Description        string               `json:"description"`
	Type               models.ChallengeType `json:"type"`
	Difficulty         models.Difficulty    `json:"difficulty"`
	Context            string               `json:"context,omitempty"`
	Constraints        []string             `json:"constraints,omitempty"`
	Examples           []models.Example     `json:"examples,omitempty"`
	EvaluationCriteria []string             `json:"evaluationCriteria,omitempty"`
	ExpectedConcepts   []string             `json:"expectedConcepts,omitempty"`
	Answer             string               `json:"answer,omitempty"`
	Tags               []string             `json:"tags,omitempty"`
}

// Contribute validates and stores a community challenge. The challenge
// enters probation and stays out of regular rotation until the ranking
// engine clears it on its first completed match with a non-null result.
func (p *Pool) Contribute(ctx context.Context, draft Draft) (*models.Challenge, error) {
	return p.insert(ctx, draft, models.SourceCommunity, true)
}

// Seed validates and stores an operator-provided challenge. Seeded
// challenges skip probation and enter rotation immediately.
func (p *Pool) Seed(ctx context.Context, draft Draft) (*models.Challenge, error) {
	return p.insert(ctx, draft, models.SourceSeed, false)
}

func (p *Pool) insert(ctx context.Context, draft Draft, source models.ChallengeSource, probation bool) (*models.Challenge, error) {
	if err := draft.validate(); err != nil {
		return nil, err
	}

	hash := normalizedTitleHash(draft.Title)
	existing, err := p.repo.ListChallenges(ctx, repository.ChallengeFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	for _, c := range existing {
		if normalizedTitleHash(c.Title) == hash {
			return nil, fmt.Errorf("title %q collides with challenge %s: %w", draft.Title, c.ID, ErrDuplicate)
		}
	}

	now := models.Now()
	c := &models.Challenge{
		ID:                 uuid.NewString(),
		Title:              strings.TrimSpace(draft.Title),
		Description:        draft.Description,
		Type:               draft.Type,
		Difficulty:         draft.Difficulty,
		Context:            draft.Context,
		Constraints:        draft.Constraints,
		Examples:           draft.Examples,
		EvaluationCriteria: draft.EvaluationCriteria,
		ExpectedConcepts:   draft.ExpectedConcepts,
		Answer:             draft.Answer,
		Tags:               draft.Tags,
		Source:             source,
		QualityScore:       models.DefaultQualityScore,
		Probation:          probation,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := p.repo.PutChallenge(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	slog.Info("Accepted challenge",
		"challenge_id", c.ID,
		"title", c.Title,
		"type", c.Type,
		"difficulty", c.Difficulty,
		"source", c.Source,
		"probation", c.Probation)
	return c, nil
}

// RetireBelow retires every challenge whose quality has decayed under
// floor. Returns the number of challenges retired. The retention sweeper
// calls this periodically.
func (p *Pool) RetireBelow(ctx context.Context, floor float64) (int, error) {
	challenges, err := p.repo.ListChallenges(ctx, repository.ChallengeFilter{})
	if err != nil {
		return 0, fmt.Errorf("failed to list challenges: %w", err)
	}
	retired := 0
	for _, c := range challenges {
		if c.Retired || c.QualityScore >= floor {
			continue
		}
		c.Retired = true
		c.UpdatedAt = models.Now()
		if err := p.repo.PutChallenge(ctx, c); err != nil {
			// Concurrent update; the next sweep retries.
			if errors.Is(err, repository.ErrStale) {
				continue
			}
			return retired, fmt.Errorf("failed to retire challenge %s: %w", c.ID, err)
		}
		retired++
		slog.Info("Retired challenge",
			"challenge_id", c.ID,
			"quality_score", c.QualityScore,
			"floor", floor)
	}
	return retired, nil
}

func (d Draft) validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("title is required: %w", ErrInvalidDraft)
	}
	if strings.TrimSpace(d.Description) == "" {
		return fmt.Errorf("description is required: %w", ErrInvalidDraft)
	}
	if !d.Type.IsValid() {
		return fmt.Errorf("type %q is not a challenge type: %w", d.Type, ErrInvalidDraft)
	}
	if !d.Difficulty.IsValid() {
		return fmt.Errorf("difficulty %q is not a difficulty: %w", d.Difficulty, ErrInvalidDraft)
	}
	return nil
}

// recentlyUsed collects the challenge ids served in each agent's latest
// matches.
func (p *Pool) recentlyUsed(ctx context.Context, agentIDs []string) (map[string]struct{}, error) {
	recent := make(map[string]struct{})
	for _, agentID := range agentIDs {
		if agentID == "" {
			continue
		}
		matches, err := p.repo.ListMatches(ctx, repository.MatchFilter{
			AgentID: agentID,
			Limit:   recentUseDepth,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list matches for %s: %w", agentID, err)
		}
		for _, m := range matches {
			recent[m.ChallengeID] = struct{}{}
		}
	}
	return recent, nil
}

// weightedSample draws one challenge with probability proportional to
// qualityScore × (1 + 1/(1+uses)). An all-zero-weight pool degrades to a
// uniform draw.
func weightedSample(challenges []*models.Challenge) *models.Challenge {
	var total float64
	weights := make([]float64, len(challenges))
	for i, c := range challenges {
		w := c.QualityScore * (1 + 1/(1+float64(c.Uses)))
		if w < 0 {
			w = 0
		}
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return challenges[rand.Intn(len(challenges))]
	}
	target := rand.Float64() * total
	for i, w := range weights {
		target -= w
		if target < 0 {
			return challenges[i]
		}
	}
	return challenges[len(challenges)-1]
}

// normalizedTitleHash fingerprints a title for duplicate detection:
// lowercased, whitespace collapsed, SHA-256 hex.
func normalizedTitleHash(title string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(title)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
