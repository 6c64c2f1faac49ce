// Package pairing selects opponents for automatic matches: cooldown
// gating, epsilon-greedy nearest-rating matchmaking, and a fairness rule
// that keeps the same two agents from meeting over and over.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/intelligence-arena/arena/pkg/models"
	"github.com/intelligence-arena/arena/pkg/repository"
)

// ErrNoOpponent means no eligible pair exists in the division right now.
var ErrNoOpponent = errors.New("no eligible opponent")

const (
	// fairnessWindow is how many of the anchor's latest matches are
	// inspected for repeat pairings.
	fairnessWindow = 20

	// maxMeetings is the most often a pair may appear inside the
	// fairness window and still be matched again.
	maxMeetings = 3
)

// Picker chooses match pairs from the agent population.
type Picker struct {
	repo     repository.Repository
	cooldown time.Duration
	epsilon  float64
}

// NewPicker creates a Picker. cooldown is the minimum rest between an
// agent's matches; epsilon is the probability of picking a random fair
// opponent instead of the nearest-rated one.
func NewPicker(repo repository.Repository, cooldown time.Duration, epsilon float64) *Picker {
	return &Picker{repo: repo, cooldown: cooldown, epsilon: epsilon}
}

// Pick selects two agents from the division for an automatic match.
//
// Candidates are the division's active agents that have rested at least
// the cooldown and are not in the exclude list (agents already playing).
// One is chosen uniformly as the anchor; the opponent is the fair
// candidate with the nearest rating, or with probability epsilon a
// uniformly random fair candidate. A candidate is fair when it met the
// anchor at most maxMeetings times in the anchor's last fairnessWindow
// matches.
func (p *Picker) Pick(ctx context.Context, division models.Division, exclude ...string) (*models.Agent, *models.Agent, error) {
	agents, err := p.repo.ListAgents(ctx, repository.AgentFilter{
		Division:   division,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("listing agents: %w", err)
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	now := models.Now()
	candidates := make([]*models.Agent, 0, len(agents))
	for _, a := range agents {
		if _, excluded := skip[a.ID]; excluded {
			continue
		}
		if p.rested(a, now) {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) < 2 {
		return nil, nil, fmt.Errorf("%w: %d rested agents in %s division", ErrNoOpponent, len(candidates), division)
	}

	anchor := candidates[rand.Intn(len(candidates))]

	meetings, err := p.recentMeetings(ctx, anchor.ID)
	if err != nil {
		return nil, nil, err
	}

	fair := make([]*models.Agent, 0, len(candidates)-1)
	for _, c := range candidates {
		if c.ID == anchor.ID {
			continue
		}
		if meetings[c.ID] > maxMeetings {
			continue
		}
		fair = append(fair, c)
	}
	if len(fair) == 0 {
		return nil, nil, fmt.Errorf("%w: no fair opponent for %s", ErrNoOpponent, anchor.ID)
	}

	var opponent *models.Agent
	if rand.Float64() < p.epsilon {
		opponent = fair[rand.Intn(len(fair))]
	} else {
		opponent = nearestRated(anchor, fair)
	}
	return anchor, opponent, nil
}

// PickPair resolves a manually requested pairing. Both agents must exist,
// be active, and compete in the given division; cooldown and fairness do
// not apply to explicit requests.
func (p *Picker) PickPair(ctx context.Context, division models.Division, agent1ID, agent2ID string) (*models.Agent, *models.Agent, error) {
	if agent1ID == agent2ID {
		return nil, nil, fmt.Errorf("%w: an agent cannot play itself", ErrNoOpponent)
	}
	a, err := p.repo.GetAgent(ctx, agent1ID)
	if err != nil {
		return nil, nil, fmt.Errorf("agent %s: %w", agent1ID, err)
	}
	b, err := p.repo.GetAgent(ctx, agent2ID)
	if err != nil {
		return nil, nil, fmt.Errorf("agent %s: %w", agent2ID, err)
	}
	for _, agent := range []*models.Agent{a, b} {
		if !agent.Active {
			return nil, nil, fmt.Errorf("%w: agent %s is inactive", ErrNoOpponent, agent.ID)
		}
		if agent.Division != division {
			return nil, nil, fmt.Errorf("%w: agent %s competes in %s, not %s", ErrNoOpponent, agent.ID, agent.Division, division)
		}
	}
	return a, b, nil
}

func (p *Picker) rested(a *models.Agent, now time.Time) bool {
	return a.LastMatchAt == nil || now.Sub(*a.LastMatchAt) >= p.cooldown
}

// recentMeetings counts how often the anchor met each opponent in its
// last fairnessWindow matches.
func (p *Picker) recentMeetings(ctx context.Context, anchorID string) (map[string]int, error) {
	recent, err := p.repo.ListMatches(ctx, repository.MatchFilter{
		AgentID: anchorID,
		Limit:   fairnessWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("listing recent matches: %w", err)
	}
	meetings := make(map[string]int, len(recent))
	for _, m := range recent {
		if opp := m.OpponentOf(anchorID); opp != "" {
			meetings[opp]++
		}
	}
	return meetings, nil
}

// nearestRated returns the candidate with the smallest rating gap to the
// anchor. Candidates arrive rating-sorted from the repository, so ties
// resolve to the higher-rated one deterministically.
func nearestRated(anchor *models.Agent, candidates []*models.Agent) *models.Agent {
	best := candidates[0]
	bestGap := math.Abs(anchor.EloRating - best.EloRating)
	for _, c := range candidates[1:] {
		if gap := math.Abs(anchor.EloRating - c.EloRating); gap < bestGap {
			best, bestGap = c, gap
		}
	}
	return best
}
