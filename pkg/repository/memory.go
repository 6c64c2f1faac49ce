package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/intelligence-arena/arena/pkg/models"
)

// MemoryStore is the in-process Repository used by default and in tests.
// All entities are deep-copied on the way in and out.
type MemoryStore struct {
	mu         sync.RWMutex
	agents     map[string]*models.Agent
	challenges map[string]*models.Challenge
	matches    map[string]*models.Match

	// Append-only audit trails, keyed by owning entity id.
	evaluations     map[string][]models.JudgeEvaluation
	divisionChanges map[string][]models.DivisionChange
}

// NewMemoryStore creates an empty in-memory repository.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:          make(map[string]*models.Agent),
		challenges:      make(map[string]*models.Challenge),
		matches:         make(map[string]*models.Match),
		evaluations:     make(map[string][]models.JudgeEvaluation),
		divisionChanges: make(map[string][]models.DivisionChange),
	}
}

// checkVersion enforces the optimistic-concurrency contract: the supplied
// version must equal the stored version, 0 for new records.
func checkVersion(kind, id string, supplied, stored int64) error {
	if supplied != stored {
		return fmt.Errorf("%s %s: supplied version %d, stored %d: %w",
			kind, id, supplied, stored, ErrStale)
	}
	return nil
}

// PutAgent inserts or updates an agent, incrementing its version.
func (s *MemoryStore) PutAgent(_ context.Context, agent *models.Agent) error {
	if agent == nil || agent.ID == "" {
		return fmt.Errorf("agent id is required: %w", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int64
	if existing, ok := s.agents[agent.ID]; ok {
		stored = existing.Version
	}
	if err := checkVersion("agent", agent.ID, agent.Version, stored); err != nil {
		return err
	}
	agent.Version++
	s.agents[agent.ID] = agent.Clone()
	return nil
}

// GetAgent returns a deep copy of the agent or ErrNotFound.
func (s *MemoryStore) GetAgent(_ context.Context, id string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return agent.Clone(), nil
}

// ListAgents returns matching agents ordered by descending ELO rating.
func (s *MemoryStore) ListAgents(_ context.Context, filter AgentFilter) ([]*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		if filter.matches(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EloRating != out[j].EloRating {
			return out[i].EloRating > out[j].EloRating
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// PutChallenge inserts or updates a challenge, incrementing its version.
func (s *MemoryStore) PutChallenge(_ context.Context, challenge *models.Challenge) error {
	if challenge == nil || challenge.ID == "" {
		return fmt.Errorf("challenge id is required: %w", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int64
	if existing, ok := s.challenges[challenge.ID]; ok {
		stored = existing.Version
	}
	if err := checkVersion("challenge", challenge.ID, challenge.Version, stored); err != nil {
		return err
	}
	challenge.Version++
	s.challenges[challenge.ID] = challenge.Clone()
	return nil
}

// GetChallenge returns a deep copy of the challenge or ErrNotFound.
func (s *MemoryStore) GetChallenge(_ context.Context, id string) (*models.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	challenge, ok := s.challenges[id]
	if !ok {
		return nil, fmt.Errorf("challenge %s: %w", id, ErrNotFound)
	}
	return challenge.Clone(), nil
}

// ListChallenges returns matching challenges ordered by id for determinism.
func (s *MemoryStore) ListChallenges(_ context.Context, filter ChallengeFilter) ([]*models.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Challenge, 0, len(s.challenges))
	for _, c := range s.challenges {
		if filter.matches(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutMatch inserts or updates a match, incrementing its version.
func (s *MemoryStore) PutMatch(_ context.Context, match *models.Match) error {
	if match == nil || match.ID == "" {
		return fmt.Errorf("match id is required: %w", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int64
	if existing, ok := s.matches[match.ID]; ok {
		stored = existing.Version
	}
	if err := checkVersion("match", match.ID, match.Version, stored); err != nil {
		return err
	}
	match.Version++
	s.matches[match.ID] = match.Clone()
	return nil
}

// GetMatch returns a deep copy of the match or ErrNotFound.
func (s *MemoryStore) GetMatch(_ context.Context, id string) (*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	match, ok := s.matches[id]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	return match.Clone(), nil
}

// ListMatches returns matching matches newest first, capped by filter.Limit.
func (s *MemoryStore) ListMatches(_ context.Context, filter MatchFilter) ([]*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Match, 0, len(s.matches))
	for _, m := range s.matches {
		if filter.matches(m) {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// DeleteMatch removes a match and its evaluation trail.
func (s *MemoryStore) DeleteMatch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[id]; !ok {
		return fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	delete(s.matches, id)
	delete(s.evaluations, id)
	return nil
}

// AppendEvaluation records one judge evaluation against the match.
func (s *MemoryStore) AppendEvaluation(_ context.Context, matchID string, eval *models.JudgeEvaluation) error {
	if eval == nil {
		return fmt.Errorf("evaluation is required: %w", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[matchID]; !ok {
		return fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	s.evaluations[matchID] = append(s.evaluations[matchID], *eval.Clone())
	return nil
}

// AppendDivisionChange records one division transition against the agent.
func (s *MemoryStore) AppendDivisionChange(_ context.Context, agentID string, change *models.DivisionChange) error {
	if change == nil {
		return fmt.Errorf("division change is required: %w", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[agentID]; !ok {
		return fmt.Errorf("agent %s: %w", agentID, ErrNotFound)
	}
	s.divisionChanges[agentID] = append(s.divisionChanges[agentID], *change)
	return nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Evaluations returns the recorded audit trail for a match. Test helper.
func (s *MemoryStore) Evaluations(matchID string) []models.JudgeEvaluation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.JudgeEvaluation, 0, len(s.evaluations[matchID]))
	for i := range s.evaluations[matchID] {
		out = append(out, *s.evaluations[matchID][i].Clone())
	}
	return out
}

// DivisionChanges returns the recorded audit trail for an agent. Test helper.
func (s *MemoryStore) DivisionChanges(agentID string) []models.DivisionChange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.DivisionChange(nil), s.divisionChanges[agentID]...)
}
