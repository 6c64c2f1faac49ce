package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/intelligence-arena/arena/pkg/models"
	"github.com/intelligence-arena/arena/pkg/repository"
)

const (
	// slotPollInterval is the base wait between attempts to start a
	// tournament match while the arena is full; slotPollJitter spreads the
	// retries so rounds do not thunder against the cap.
	slotPollInterval = 500 * time.Millisecond
	slotPollJitter   = time.Second
)

// TournamentStatus is the public view of the round driver.
type TournamentStatus struct {
	Running       bool       `json:"running"`
	CurrentRound  int        `json:"current_round"`
	TotalRounds   int        `json:"total_rounds"`
	MatchesPlayed int        `json:"matches_played"`
	CurrentKing   string     `json:"current_king,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// StartTournament launches a background tournament of the given rounds.
// Only one tournament runs at a time.
func (s *Scheduler) StartTournament(rounds int) error {
	if rounds < 1 {
		return fmt.Errorf("tournament needs at least one round, got %d", rounds)
	}
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}
	ctx := s.baseCtx
	s.mu.Unlock()

	s.tmu.Lock()
	if s.tournament.Running {
		s.tmu.Unlock()
		return ErrTournamentRunning
	}
	now := time.Now().UTC()
	s.tournament = TournamentStatus{
		Running:     true,
		TotalRounds: rounds,
		StartedAt:   &now,
	}
	s.tmu.Unlock()

	s.logger.Info("Tournament starting", "rounds", rounds)
	s.wg.Add(1)
	go s.runTournament(ctx, rounds)
	return nil
}

// TournamentStatus reports the driver's current state. The sitting King
// is resolved from the repository on every call, so a succession outside
// a running tournament shows up immediately.
func (s *Scheduler) TournamentStatus() TournamentStatus {
	s.tmu.Lock()
	status := s.tournament
	s.tmu.Unlock()
	status.CurrentKing = s.currentKing(context.Background())
	return status
}

// runTournament drives the rounds: every division shuffles its active
// agents into pairs, each pair plays when a slot frees up, and after each
// round the strongest eligible Master gets a crown shot.
func (s *Scheduler) runTournament(ctx context.Context, rounds int) {
	defer s.wg.Done()
	defer func() {
		now := time.Now().UTC()
		s.tmu.Lock()
		s.tournament.Running = false
		s.tournament.CompletedAt = &now
		played := s.tournament.MatchesPlayed
		s.tmu.Unlock()
		s.logger.Info("Tournament finished", "matches_played", played)
	}()

	divisions := []models.Division{
		models.DivisionNovice,
		models.DivisionExpert,
		models.DivisionMaster,
	}
	for round := 1; round <= rounds; round++ {
		if ctx.Err() != nil {
			return
		}
		s.tmu.Lock()
		s.tournament.CurrentRound = round
		s.tmu.Unlock()
		s.logger.Info("Tournament round starting", "round", round, "total_rounds", rounds)

		for _, division := range divisions {
			pairs, err := s.roundPairs(ctx, division)
			if err != nil {
				s.logger.Warn("Tournament could not pair division", "division", division, "error", err)
				continue
			}
			for _, pair := range pairs {
				req := StartRequest{
					Division: division,
					Agent1ID: pair[0],
					Agent2ID: pair[1],
				}
				if !s.startWhenFree(ctx, req) {
					return
				}
			}
		}

		if !s.startWhenFree(ctx, StartRequest{Type: models.MatchKingChallenge}) {
			return
		}
	}
}

// roundPairs shuffles a division's active agents into disjoint pairs. An
// odd agent sits the round out.
func (s *Scheduler) roundPairs(ctx context.Context, division models.Division) ([][2]string, error) {
	agents, err := s.repo.ListAgents(ctx, repository.AgentFilter{Division: division, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(agents))
	for _, a := range agents {
		ids = append(ids, a.ID)
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	pairs := make([][2]string, 0, len(ids)/2)
	for i := 0; i+1 < len(ids); i += 2 {
		pairs = append(pairs, [2]string{ids[i], ids[i+1]})
	}
	return pairs, nil
}

// startWhenFree starts one tournament match, polling with jitter while
// the cap or the competitors are busy. It returns false only when the
// scheduler is shutting down.
func (s *Scheduler) startWhenFree(ctx context.Context, req StartRequest) bool {
	for {
		_, err := s.StartMatch(ctx, req)
		var tooMany *TooManyMatchesError
		switch {
		case err == nil:
			s.tmu.Lock()
			s.tournament.MatchesPlayed++
			s.tmu.Unlock()
			return true
		case errors.As(err, &tooMany), errors.Is(err, ErrAgentBusy):
			// Wait for a slot or for the competitors to finish.
		case errors.Is(err, ErrNotEligible):
			return true
		case errors.Is(err, ErrNotStarted):
			return false
		default:
			s.logger.Warn("Tournament match skipped",
				"division", req.Division, "type", req.Type, "error", err)
			return true
		}

		wait := slotPollInterval + time.Duration(rand.Int63n(int64(slotPollJitter)))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

// currentKing looks up the active King's id, empty when the throne is
// vacant or the lookup fails.
func (s *Scheduler) currentKing(ctx context.Context) string {
	kings, err := s.repo.ListAgents(ctx, repository.AgentFilter{Division: models.DivisionKing, ActiveOnly: true})
	if err != nil {
		s.logger.Debug("Could not resolve current king", "error", err)
		return ""
	}
	if len(kings) == 0 {
		return ""
	}
	return kings[0].ID
}
