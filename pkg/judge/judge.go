// Package judge drafts evaluation panels and turns their scores into a
// match verdict.
//
// Panels are drawn from the agent population itself: any active agent that
// is not competing in the match can be drafted, weighted toward
// higher-rated and historically reliable judges. All drafted judges
// evaluate in parallel through the model gateway with a structured-output
// schema; a minority of failures is tolerated.
package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/intelligence-arena/arena/pkg/config"
	"github.com/intelligence-arena/arena/pkg/gateway"
	"github.com/intelligence-arena/arena/pkg/models"
	"github.com/intelligence-arena/arena/pkg/repository"
)

// ErrInsufficientJudges means a panel could not be drafted or too many
// drafted judges failed to return an evaluation.
var ErrInsufficientJudges = errors.New("insufficient judges")

// judgeTemperature keeps evaluations reproducible without making them
// fully deterministic across judges.
const judgeTemperature = 0.3

// EvalFunc observes each completed evaluation as it arrives, in completion
// order. Used by the match runner to publish evaluation events.
type EvalFunc func(*models.JudgeEvaluation)

// Panel drafts judges and produces verdicts.
type Panel struct {
	repo    repository.Repository
	gateway gateway.Gateway
	cfg     config.JudgingConfig
	logger  *slog.Logger
}

// NewPanel creates a Panel.
func NewPanel(repo repository.Repository, gw gateway.Gateway, cfg config.JudgingConfig) *Panel {
	return &Panel{
		repo:    repo,
		gateway: gw,
		cfg:     cfg,
		logger:  slog.With("component", "judge"),
	}
}

// Judge drafts a panel for the match, runs all judges in parallel, and
// aggregates their evaluations into a Verdict. onEvaluation, when non-nil,
// is called once per completed evaluation.
//
// Up to ⌈k/2⌉−1 of the k drafted judges may fail, and never so many that
// fewer than minJudges evaluations remain; beyond either bound the panel
// fails with ErrInsufficientJudges.
func (p *Panel) Judge(ctx context.Context, m *models.Match, ch *models.Challenge, onEvaluation EvalFunc) (*Verdict, error) {
	judges, err := p.selectJudges(ctx, m)
	if err != nil {
		return nil, err
	}
	k := len(judges)
	p.logger.Info("Judge panel drafted",
		"match_id", m.ID,
		"panel_size", k)

	prompt := buildEvaluationPrompt(m, ch)

	type judgeResult struct {
		judgeID string
		eval    *models.JudgeEvaluation
		err     error
	}
	results := make(chan judgeResult, k)
	for _, j := range judges {
		j := j
		go func() {
			eval, err := p.invokeJudge(ctx, j, prompt)
			results <- judgeResult{judgeID: j.ID, eval: eval, err: err}
		}()
	}

	evaluations := make([]models.JudgeEvaluation, 0, k)
	failures := 0
	for i := 0; i < k; i++ {
		res := <-results
		if res.err != nil {
			failures++
			p.logger.Warn("Judge evaluation failed",
				"match_id", m.ID,
				"judge_id", res.judgeID,
				"error", res.err)
			continue
		}
		evaluations = append(evaluations, *res.eval)
		if onEvaluation != nil {
			onEvaluation(res.eval)
		}
	}

	tolerated := (k+1)/2 - 1
	if failures > tolerated {
		return nil, fmt.Errorf("%w: %d of %d judges failed (tolerated %d)",
			ErrInsufficientJudges, failures, k, tolerated)
	}
	// A completed match must carry at least minJudges evaluations, so the
	// failure tolerance never shrinks the panel below that floor.
	if len(evaluations) < p.cfg.MinJudges {
		return nil, fmt.Errorf("%w: %d evaluations, need %d",
			ErrInsufficientJudges, len(evaluations), p.cfg.MinJudges)
	}

	reliability := make(map[string]float64, k)
	for _, j := range judges {
		reliability[j.ID] = j.JudgeStats.Reliability
	}
	verdict := p.aggregate(m, reliability, evaluations)

	p.logger.Info("Panel verdict reached",
		"match_id", m.ID,
		"evaluations", len(evaluations),
		"failures", failures,
		"outcome", verdict.Outcome)
	return verdict, nil
}

// selectJudges drafts min(maxJudges, available) judges. Candidates are
// active non-competitors with reliability at or above the floor, preferring
// divisions at or above the match's and stepping down one division at a
// time only when the preferred tiers cannot field a minimum panel.
// Sampling is weighted by eloRating × reliability, without replacement.
func (p *Panel) selectJudges(ctx context.Context, m *models.Match) ([]*models.Agent, error) {
	agents, err := p.repo.ListAgents(ctx, repository.AgentFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("listing judge candidates: %w", err)
	}

	candidates := make([]*models.Agent, 0, len(agents))
	for _, a := range agents {
		if m.HasCompetitor(a.ID) {
			continue
		}
		if a.JudgeStats.Reliability < p.cfg.ReliabilityFloor {
			continue
		}
		candidates = append(candidates, a)
	}

	matchRank := m.Division.Rank()
	pool := make([]*models.Agent, 0, len(candidates))
	for _, c := range candidates {
		if c.Division.Rank() >= matchRank {
			pool = append(pool, c)
		}
	}
	for rank := matchRank - 1; rank >= 1 && len(pool) < p.cfg.MinJudges; rank-- {
		for _, c := range candidates {
			if c.Division.Rank() == rank {
				pool = append(pool, c)
			}
		}
	}

	if len(pool) < p.cfg.MinJudges {
		return nil, fmt.Errorf("%w: %d eligible, need %d",
			ErrInsufficientJudges, len(pool), p.cfg.MinJudges)
	}

	k := p.cfg.MaxJudges
	if len(pool) < k {
		k = len(pool)
	}
	return sampleWeighted(pool, k), nil
}

// invokeJudge runs one judge's structured evaluation under the per-judge
// timeout.
func (p *Panel) invokeJudge(ctx context.Context, j *models.Agent, prompt string) (*models.JudgeEvaluation, error) {
	jctx, cancel := context.WithTimeout(ctx, p.cfg.JudgeTimeout)
	defer cancel()

	started := time.Now()
	completion, err := p.gateway.Invoke(jctx, j.ModelID, prompt, gateway.Options{
		Temperature: judgeTemperature,
		Deadline:    p.cfg.JudgeTimeout,
		Structured:  true,
		Schema:      evaluationSchema,
	})
	if err != nil {
		return nil, err
	}

	eval, err := parseEvaluation(j.ID, completion.Text)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("Judge evaluation complete",
		"judge_id", j.ID,
		"duration", time.Since(started),
		"recommendation", eval.RecommendedWinner)
	return eval, nil
}

// sampleWeighted draws k agents without replacement, each draw weighted by
// eloRating × reliability.
func sampleWeighted(pool []*models.Agent, k int) []*models.Agent {
	remaining := append([]*models.Agent(nil), pool...)
	selected := make([]*models.Agent, 0, k)
	for len(selected) < k && len(remaining) > 0 {
		var total float64
		for _, c := range remaining {
			total += judgeWeight(c)
		}
		r := rand.Float64() * total
		idx := len(remaining) - 1
		for i, c := range remaining {
			r -= judgeWeight(c)
			if r < 0 {
				idx = i
				break
			}
		}
		selected = append(selected, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return selected
}

// judgeWeight floors at 1 so zero-rated candidates stay sampleable.
func judgeWeight(a *models.Agent) float64 {
	if w := a.EloRating * a.JudgeStats.Reliability; w > 1 {
		return w
	}
	return 1
}
