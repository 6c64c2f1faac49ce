// Package repository persists arena state: agents, challenges, matches and
// their append-only audit trails.
//
// Two implementations exist. The in-memory store is the default and backs
// the test suites; the PostgreSQL store is selected when REPOSITORY_URL is
// set. Both enforce versioned optimistic concurrency: a Put must carry the
// version the caller read (0 for new records) and the store increments it
// on success, returning ErrStale on any mismatch.
package repository

import (
	"context"

	"github.com/intelligence-arena/arena/pkg/models"
)

// AgentFilter narrows ListAgents. Zero value lists everything.
type AgentFilter struct {
	// Division restricts to a single division when non-empty.
	Division models.Division
	// ActiveOnly drops deactivated agents.
	ActiveOnly bool
}

// ChallengeFilter narrows ListChallenges. Zero value lists everything.
type ChallengeFilter struct {
	// Type restricts to a single challenge type when non-empty.
	Type models.ChallengeType
	// Difficulties restricts to the given difficulty levels when non-empty.
	Difficulties []models.Difficulty
	// Servable drops retired and probation challenges.
	Servable bool
}

// MatchFilter narrows ListMatches. Zero value lists everything.
type MatchFilter struct {
	// Status restricts to a single status when non-empty.
	Status models.MatchStatus
	// AgentID restricts to matches the agent competed in.
	AgentID string
	// Limit caps the result, newest first by creation time. 0 means no cap.
	Limit int
}

// Repository is the persistence boundary. Implementations return deep
// copies and never retain what callers pass in, so entities can be mutated
// freely on both sides of the boundary.
type Repository interface {
	// PutAgent inserts or updates an agent under optimistic concurrency.
	// On success the agent's Version is incremented in place.
	PutAgent(ctx context.Context, agent *models.Agent) error
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	ListAgents(ctx context.Context, filter AgentFilter) ([]*models.Agent, error)

	PutChallenge(ctx context.Context, challenge *models.Challenge) error
	GetChallenge(ctx context.Context, id string) (*models.Challenge, error)
	ListChallenges(ctx context.Context, filter ChallengeFilter) ([]*models.Challenge, error)

	PutMatch(ctx context.Context, match *models.Match) error
	GetMatch(ctx context.Context, id string) (*models.Match, error)
	ListMatches(ctx context.Context, filter MatchFilter) ([]*models.Match, error)

	// DeleteMatch removes a match and its evaluation trail. The retention
	// sweeper is the only production caller.
	DeleteMatch(ctx context.Context, id string) error

	// AppendEvaluation records one judge evaluation in the match audit
	// trail. The trail is append-only and survives match-document rewrites.
	AppendEvaluation(ctx context.Context, matchID string, eval *models.JudgeEvaluation) error

	// AppendDivisionChange records one division transition in the agent
	// audit trail.
	AppendDivisionChange(ctx context.Context, agentID string, change *models.DivisionChange) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

func (f AgentFilter) matches(a *models.Agent) bool {
	if f.Division != "" && a.Division != f.Division {
		return false
	}
	if f.ActiveOnly && !a.Active {
		return false
	}
	return true
}

func (f ChallengeFilter) matches(c *models.Challenge) bool {
	if f.Type != "" && c.Type != f.Type {
		return false
	}
	if len(f.Difficulties) > 0 {
		found := false
		for _, d := range f.Difficulties {
			if c.Difficulty == d {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Servable && (c.Retired || c.Probation) {
		return false
	}
	return true
}

func (f MatchFilter) matches(m *models.Match) bool {
	if f.Status != "" && m.Status != f.Status {
		return false
	}
	if f.AgentID != "" && !m.HasCompetitor(f.AgentID) {
		return false
	}
	return true
}
