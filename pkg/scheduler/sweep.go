package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/intelligence-arena/arena/pkg/models"
	"github.com/intelligence-arena/arena/pkg/repository"
)

// sweep is the cron entry point. It prunes stale rate buckets, gives
// unserved probation challenges their trial matches, and starts an
// autonomous match when the arena sits idle.
func (s *Scheduler) sweep() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	ctx := s.baseCtx
	s.mu.Unlock()

	s.pruneBuckets(time.Now())
	s.runProbationTrials(ctx)
	s.autoPlay(ctx)
}

// runProbationTrials starts a trial match for each probation challenge,
// stopping as soon as capacity runs out. The trial pins the challenge via
// ChallengeID; finalization clears probation when the verdict lands.
func (s *Scheduler) runProbationTrials(ctx context.Context) {
	challenges, err := s.repo.ListChallenges(ctx, repository.ChallengeFilter{})
	if err != nil {
		s.logger.Warn("Probation sweep could not list challenges", "error", err)
		return
	}
	for _, ch := range challenges {
		if !ch.Probation || ch.Retired {
			continue
		}
		req := StartRequest{
			Division:    divisionForDifficulty(ch.Difficulty),
			ChallengeID: ch.ID,
		}
		if _, err := s.StartMatch(ctx, req); err != nil {
			var tooMany *TooManyMatchesError
			if errors.As(err, &tooMany) {
				return
			}
			s.logger.Debug("Probation trial not started", "challenge_id", ch.ID, "error", err)
			continue
		}
		s.logger.Info("Probation trial started", "challenge_id", ch.ID, "difficulty", ch.Difficulty)
	}
}

// autoPlay starts one automatic match when nothing is live, trying the
// competitive divisions in random order until a pair forms.
func (s *Scheduler) autoPlay(ctx context.Context) {
	if len(s.Snapshot()) > 0 {
		return
	}
	divisions := []models.Division{models.DivisionNovice, models.DivisionExpert, models.DivisionMaster}
	rand.Shuffle(len(divisions), func(i, j int) { divisions[i], divisions[j] = divisions[j], divisions[i] })
	for _, division := range divisions {
		if _, err := s.StartMatch(ctx, StartRequest{Division: division}); err != nil {
			s.logger.Debug("Autonomous match not started", "division", division, "error", err)
			continue
		}
		s.logger.Info("Autonomous match started", "division", division)
		return
	}
}

// divisionForDifficulty maps a challenge difficulty back onto the lowest
// division whose band serves it.
func divisionForDifficulty(d models.Difficulty) models.Division {
	ladder := []models.Division{
		models.DivisionNovice,
		models.DivisionExpert,
		models.DivisionMaster,
		models.DivisionKing,
	}
	for _, division := range ladder {
		for _, served := range division.DifficultyBand() {
			if served == d {
				return division
			}
		}
	}
	return models.DivisionNovice
}
