// Package match drives a single match through its life-cycle: streaming
// both competitors' responses, alternating debate turns, invoking the
// judge panel, and handing the verdict to the ranking engine.
//
// The runner exclusively owns the Match record from start to terminal
// state. All mutations and their events are serialized under one mutex, so
// subscribers on the per-match topic observe a linearizable sequence.
package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/intelligence-arena/arena/pkg/config"
	"github.com/intelligence-arena/arena/pkg/events"
	"github.com/intelligence-arena/arena/pkg/gateway"
	"github.com/intelligence-arena/arena/pkg/judge"
	"github.com/intelligence-arena/arena/pkg/models"
	"github.com/intelligence-arena/arena/pkg/ranking"
	"github.com/intelligence-arena/arena/pkg/repository"
)

// Runner executes matches. One Runner serves the whole process; per-match
// state lives in the run created by Run.
type Runner struct {
	repo      repository.Repository
	gateway   gateway.Gateway
	panel     *judge.Panel
	engine    *ranking.Engine
	publisher *events.Publisher
	cfg       config.ArenaConfig
	logger    *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(repo repository.Repository, gw gateway.Gateway, panel *judge.Panel, engine *ranking.Engine, publisher *events.Publisher, cfg config.ArenaConfig) *Runner {
	return &Runner{
		repo:      repo,
		gateway:   gw,
		panel:     panel,
		engine:    engine,
		publisher: publisher,
		cfg:       cfg,
		logger:    slog.With("component", "match"),
	}
}

// Run drives m from pending to a terminal state, persisting every
// transition and publishing it on the match topic. The returned error
// reports only a failure to reach or persist a terminal state; completed,
// cancelled and failed matches all return nil.
func (r *Runner) Run(ctx context.Context, m *models.Match) (err error) {
	u := &run{r: r, m: m, log: r.logger.With("match_id", m.ID, "match_type", m.Type)}
	defer func() {
		if p := recover(); p != nil {
			u.log.Error("Match runner panicked", "panic", p)
			err = u.fail(fmt.Sprintf("runner panic: %v", p))
		}
	}()

	if ctx.Err() != nil {
		return u.cancel()
	}

	// 1. Load the fixed inputs.
	ch, err := r.repo.GetChallenge(ctx, m.ChallengeID)
	if err != nil {
		return u.finish(ctx, err, "loading challenge")
	}
	a1, err := r.repo.GetAgent(ctx, m.Agent1ID)
	if err != nil {
		return u.finish(ctx, err, "loading agent1")
	}
	a2, err := r.repo.GetAgent(ctx, m.Agent2ID)
	if err != nil {
		return u.finish(ctx, err, "loading agent2")
	}

	// 2. Generate responses.
	now := models.Now()
	u.m.StartedAt = &now
	if err := u.transition(ctx, models.MatchInProgress); err != nil {
		return u.finish(ctx, err, "starting match")
	}
	u.log.Info("Match started",
		"agent1_id", a1.ID, "agent2_id", a2.ID, "challenge_id", ch.ID)

	switch m.Type {
	case models.MatchDebate:
		err = u.runDebate(ctx, ch, a1, a2)
	default:
		err = u.runDuel(ctx, ch, a1, a2)
	}
	if err != nil {
		return u.finish(ctx, err, "generating responses")
	}

	// 3. Judge.
	if err := u.transition(ctx, models.MatchJudging); err != nil {
		return u.finish(ctx, err, "entering judging")
	}
	verdict, err := r.panel.Judge(ctx, m, ch, func(eval *models.JudgeEvaluation) {
		u.mu.Lock()
		u.m.Evaluations = append(u.m.Evaluations, *eval)
		u.mu.Unlock()
		if err := r.repo.AppendEvaluation(ctx, m.ID, eval); err != nil {
			u.log.Warn("Evaluation trail append failed", "judge_id", eval.JudgeID, "error", err)
		}
		r.publisher.Evaluation(m.ID, eval)
	})
	if err != nil {
		return u.finish(ctx, err, "judging")
	}

	// 4. Apply the verdict.
	if err := u.transition(ctx, models.MatchFinalizing); err != nil {
		return u.finish(ctx, err, "entering finalizing")
	}
	if _, err := r.engine.Finalize(ctx, m, verdict); err != nil {
		if !errors.Is(err, ranking.ErrAlreadyApplied) {
			return u.finish(ctx, err, "applying verdict")
		}
		u.log.Warn("Verdict was already applied, completing match", "error", err)
	}

	// 5. Complete.
	return u.complete(verdict)
}

// run is the per-match execution state. mu serializes every mutation of m
// and the publication of its event, including the deltas arriving from the
// two parallel duel streams.
type run struct {
	r   *Runner
	m   *models.Match
	log *slog.Logger
	mu  sync.Mutex
}

// transition moves the match to a non-terminal status, persists it, and
// publishes the status on the match topic.
func (u *run) transition(ctx context.Context, status models.MatchStatus) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.m.Status = status
	if err := u.r.repo.PutMatch(ctx, u.m); err != nil {
		return fmt.Errorf("persisting %s: %w", status, err)
	}
	u.r.publisher.Status(u.m.ID, status)
	u.r.publisher.MatchUpdated(u.m)
	return nil
}

// finish maps an execution error to the right terminal state. The match
// context is authoritative: its cancellation means the match was cancelled,
// its expired deadline means the wall-clock budget ran out.
func (u *run) finish(ctx context.Context, err error, stage string) error {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return u.cancel()
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return u.fail("match deadline exceeded")
	default:
		return u.fail(fmt.Sprintf("%s: %v", stage, err))
	}
}

// complete records the verdict and closes the match as completed.
func (u *run) complete(verdict *judge.Verdict) error {
	result := verdict.Outcome.Result()
	u.mu.Lock()
	u.m.WinnerID = verdict.WinnerID
	u.m.FinalScores = verdict.Scores
	u.m.Result = &result
	u.mu.Unlock()
	if err := u.terminal(models.MatchCompleted); err != nil {
		return err
	}
	u.log.Info("Match completed", "result", result)
	return nil
}

// cancel closes the match as cancelled, keeping whatever partial
// transcript was generated.
func (u *run) cancel() error {
	if err := u.terminal(models.MatchCancelled); err != nil {
		return err
	}
	u.log.Info("Match cancelled")
	return nil
}

// fail closes the match as failed with the reason recorded. The winner
// stays null.
func (u *run) fail(reason string) error {
	u.mu.Lock()
	u.m.FailureReason = reason
	u.mu.Unlock()
	if err := u.terminal(models.MatchFailed); err != nil {
		return err
	}
	u.log.Warn("Match failed", "reason", reason)
	return nil
}

// terminal persists and publishes a terminal state. The match context may
// already be dead here, so the write uses a background context; partial
// transcripts and evaluations ride along. The final event is the last on
// the match topic.
func (u *run) terminal(status models.MatchStatus) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.m.Status.IsTerminal() {
		return nil
	}
	u.m.Status = status
	now := models.Now()
	u.m.CompletedAt = &now
	if err := u.r.repo.PutMatch(context.Background(), u.m); err != nil {
		return fmt.Errorf("persisting terminal state %s: %w", status, err)
	}
	u.r.publisher.Status(u.m.ID, status)
	u.r.publisher.Final(u.m.ID, u.m.WinnerID, u.m.FinalScores, u.m.Result)
	u.r.publisher.MatchCompleted(u.m)
	return nil
}

// persist writes the current match state mid-flight (debate turns).
func (u *run) persist(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.r.repo.PutMatch(ctx, u.m); err != nil {
		return fmt.Errorf("persisting match: %w", err)
	}
	return nil
}
