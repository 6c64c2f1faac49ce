// Package cleanup enforces the arena's retention policies in the
// background: low-quality challenges leave the rotation and old terminal
// matches are pruned from the repository.
package cleanup

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/intelligence-arena/arena/pkg/challenge"
	"github.com/intelligence-arena/arena/pkg/config"
	"github.com/intelligence-arena/arena/pkg/repository"
)

// Service periodically enforces retention:
//   - Retires challenges whose quality score fell below the floor
//   - Deletes terminal matches older than the retention window
//
// All sweeps are idempotent; a stale write loses to the concurrent writer
// and the next sweep retries.
type Service struct {
	cfg          config.RetentionConfig
	qualityFloor float64
	repo         repository.Repository
	pool         *challenge.Pool
	logger       *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service. qualityFloor is the retirement
// threshold for challenge quality scores.
func NewService(cfg config.RetentionConfig, qualityFloor float64, repo repository.Repository, pool *challenge.Pool) *Service {
	return &Service{
		cfg:          cfg,
		qualityFloor: qualityFloor,
		repo:         repo,
		pool:         pool,
		logger:       slog.Default().With("component", "cleanup"),
	}
}

// Start launches the background sweep loop. The first sweep runs
// immediately.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("Cleanup service started",
		"interval", s.cfg.Interval,
		"match_retention", s.cfg.MatchRetention,
		"quality_floor", s.qualityFloor)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.retireChallenges(ctx)
	s.pruneMatches(ctx)
}

func (s *Service) retireChallenges(ctx context.Context) {
	count, err := s.pool.RetireBelow(ctx, s.qualityFloor)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("Retention: challenge retirement failed", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("Retention: retired low-quality challenges", "count", count)
	}
}

// pruneMatches deletes terminal matches that finished before the retention
// window. A zero window keeps match history forever.
func (s *Service) pruneMatches(ctx context.Context) {
	if s.cfg.MatchRetention <= 0 {
		return
	}
	matches, err := s.repo.ListMatches(ctx, repository.MatchFilter{})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Error("Retention: match listing failed", "error", err)
		return
	}

	cutoff := time.Now().UTC().Add(-s.cfg.MatchRetention)
	pruned := 0
	for _, m := range matches {
		if !m.Status.IsTerminal() {
			continue
		}
		finished := m.CreatedAt
		if m.CompletedAt != nil {
			finished = *m.CompletedAt
		}
		if !finished.Before(cutoff) {
			continue
		}
		if err := s.repo.DeleteMatch(ctx, m.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			s.logger.Error("Retention: match prune failed", "match_id", m.ID, "error", err)
			return
		}
		pruned++
	}
	if pruned > 0 {
		s.logger.Info("Retention: pruned old matches", "count", pruned)
	}
}
