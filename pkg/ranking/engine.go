// Package ranking applies match verdicts to the persistent competitive
// state: ELO ratings, career and division records, promotions and
// demotions, King succession, judge reliability, and challenge quality.
//
// The engine is the only writer of existing agent records. Competitor
// updates run under per-agent locks (sorted acquisition) and every
// division transition additionally serializes on an engine-wide mutex so
// the single-King invariant cannot be broken by interleaved finalizations.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/intelligence-arena/arena/pkg/config"
	"github.com/intelligence-arena/arena/pkg/judge"
	"github.com/intelligence-arena/arena/pkg/models"
	"github.com/intelligence-arena/arena/pkg/repository"
)

// ErrAlreadyApplied means the match outcome is already reflected in both
// competitors' histories.
var ErrAlreadyApplied = errors.New("match outcome already applied")

// staleRetries bounds optimistic-concurrency retries per record.
const staleRetries = 3

// Challenge quality nudges applied after every judged match.
const (
	qualityUnanimousGain = 0.02
	qualitySplitLoss     = 0.02
)

// RatingChange reports one agent's rating movement.
type RatingChange struct {
	AgentID string  `json:"agentId"`
	Before  float64 `json:"before"`
	After   float64 `json:"after"`
}

// Transition reports one division movement applied during finalization.
type Transition struct {
	AgentID string                    `json:"agentId"`
	From    models.Division           `json:"from"`
	To      models.Division           `json:"to"`
	Reason  string                    `json:"reason"`
	Kind    models.DivisionChangeKind `json:"kind"`
}

// Outcome summarizes everything Finalize changed.
type Outcome struct {
	MatchID     string             `json:"matchId"`
	Result      models.MatchResult `json:"result"`
	WinnerID    *string            `json:"winnerId"`
	Ratings     []RatingChange     `json:"ratings"`
	Transitions []Transition       `json:"transitions,omitempty"`
}

// Engine folds verdicts into agent, judge and challenge state.
type Engine struct {
	repo   repository.Repository
	cfg    config.JudgingConfig
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// divisionMu serializes all division transitions engine-wide.
	divisionMu sync.Mutex
}

// NewEngine creates an Engine. cfg supplies the judge-reliability alpha.
func NewEngine(repo repository.Repository, cfg config.JudgingConfig) *Engine {
	return &Engine{
		repo:   repo,
		cfg:    cfg,
		logger: slog.With("component", "ranking"),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Finalize applies a verdict to both competitors, then to the judges and
// the challenge. It is idempotent per match: once the match id appears in
// both competitors' ELO histories the call fails with ErrAlreadyApplied.
func (e *Engine) Finalize(ctx context.Context, m *models.Match, verdict *judge.Verdict) (*Outcome, error) {
	result := verdict.Outcome.Result()

	unlock := e.lockPair(m.Agent1ID, m.Agent2ID)
	ratings, transitions, err := e.applyCompetitors(ctx, m, verdict, result)
	unlock()
	if err != nil {
		return nil, err
	}

	// Judge and challenge updates are best-effort bookkeeping: a failure
	// here must not unwind an applied result.
	for _, eval := range verdict.Evaluations {
		if err := e.applyJudge(ctx, eval.JudgeID, verdict.Aligned[eval.JudgeID]); err != nil {
			e.logger.Warn("Judge reliability update failed",
				"match_id", m.ID, "judge_id", eval.JudgeID, "error", err)
		}
	}
	if err := e.applyChallenge(ctx, m.ChallengeID, verdict); err != nil {
		e.logger.Warn("Challenge quality update failed",
			"match_id", m.ID, "challenge_id", m.ChallengeID, "error", err)
	}

	outcome := &Outcome{
		MatchID:     m.ID,
		Result:      result,
		WinnerID:    verdict.WinnerID,
		Ratings:     ratings,
		Transitions: transitions,
	}
	e.logger.Info("Match finalized",
		"match_id", m.ID,
		"result", result,
		"transitions", len(transitions))
	return outcome, nil
}

// applyCompetitors updates ratings, records and divisions for both agents.
// Caller holds the pair locks.
func (e *Engine) applyCompetitors(ctx context.Context, m *models.Match, verdict *judge.Verdict, result models.MatchResult) ([]RatingChange, []Transition, error) {
	a1, err := e.repo.GetAgent(ctx, m.Agent1ID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading agent %s: %w", m.Agent1ID, err)
	}
	a2, err := e.repo.GetAgent(ctx, m.Agent2ID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading agent %s: %w", m.Agent2ID, err)
	}
	if a1.HasPlayed(m.ID) && a2.HasPlayed(m.ID) {
		return nil, nil, fmt.Errorf("match %s: %w", m.ID, ErrAlreadyApplied)
	}

	// Pre-match ratings are the basis for both updates. When one side was
	// already applied, its basis comes from the recorded history entry so a
	// repair run yields the same numbers.
	basis1 := prematchRating(a1, m.ID)
	basis2 := prematchRating(a2, m.ID)
	new1, new2 := updatedRatings(basis1, basis2, m.Division.KFactor(), result)
	now := models.Now()

	e.divisionMu.Lock()
	defer e.divisionMu.Unlock()

	var transitions []Transition
	record := func(t Transition) { transitions = append(transitions, t) }

	a1, err = e.applyAgent(ctx, m.Agent1ID, func(a *models.Agent) bool {
		if a.HasPlayed(m.ID) {
			return false
		}
		priorStreak := a.DivisionStats.CurrentStreak
		applyResult(a, m.ID, result, new1, m.Agent2ID, basis2, now)
		if m.Type == models.MatchKingChallenge {
			e.applyKingSide(a, verdict, priorStreak, now, record)
		} else {
			e.applyMovement(a, result, now, record)
		}
		return true
	})
	if err != nil {
		return nil, nil, err
	}
	a2, err = e.applyAgent(ctx, m.Agent2ID, func(a *models.Agent) bool {
		if a.HasPlayed(m.ID) {
			return false
		}
		applyResult(a, m.ID, result.Invert(), new2, m.Agent1ID, basis1, now)
		if m.Type == models.MatchKingChallenge {
			e.applyChallengerSide(a, verdict, now, record)
		} else {
			e.applyMovement(a, result.Invert(), now, record)
		}
		return true
	})
	if err != nil {
		return nil, nil, err
	}

	// Automatic succession leaves the crown to the strongest Master other
	// than the agent just dethroned. A challenger win crowns the challenger
	// instead, so only the retained-but-failing path reaches here.
	if m.Type == models.MatchKingChallenge &&
		a1.Division != models.DivisionKing &&
		verdict.Outcome != judge.OutcomeAgent2Wins {
		if err := e.crownHighestMaster(ctx, a1.ID, now, record); err != nil {
			return nil, nil, err
		}
	}

	for _, t := range transitions {
		change := &models.DivisionChange{
			From:      t.From,
			To:        t.To,
			Timestamp: now,
			Reason:    t.Reason,
			Kind:      t.Kind,
		}
		if err := e.repo.AppendDivisionChange(ctx, t.AgentID, change); err != nil {
			e.logger.Warn("Division change trail append failed",
				"agent_id", t.AgentID, "error", err)
		}
	}

	ratings := []RatingChange{
		{AgentID: a1.ID, Before: basis1, After: a1.EloRating},
		{AgentID: a2.ID, Before: basis2, After: a2.EloRating},
	}
	return ratings, transitions, nil
}

// prematchRating returns the agent's rating before the given match was
// applied, which is the current rating unless the match is already in the
// agent's history.
func prematchRating(a *models.Agent, matchID string) float64 {
	for i := range a.EloHistory {
		if a.EloHistory[i].MatchID == matchID {
			return a.EloHistory[i].Rating - a.EloHistory[i].Delta
		}
	}
	return a.EloRating
}

// applyResult folds one match result into an agent's rating and records.
func applyResult(a *models.Agent, matchID string, result models.MatchResult, newRating float64, opponentID string, opponentRating float64, now time.Time) {
	before := a.EloRating
	a.EloRating = newRating
	a.GlobalStats.Record(result)
	a.DivisionStats.Record(result)
	a.EloHistory = append(a.EloHistory, models.EloHistoryEntry{
		Timestamp:      now,
		Rating:         newRating,
		MatchID:        matchID,
		OpponentID:     opponentID,
		OpponentRating: opponentRating,
		Result:         result,
		Delta:          newRating - before,
	})
	t := now
	a.LastMatchAt = &t
	a.UpdatedAt = now
}

// applyMovement runs the regular promotion/demotion rules: winners may
// rise, losers may fall, draws move nobody.
func (e *Engine) applyMovement(a *models.Agent, result models.MatchResult, now time.Time, record func(Transition)) {
	switch result {
	case models.ResultWin:
		if to := promotionTarget(a); to != "" {
			from := a.Division
			reason := movementReason(to, a)
			a.ChangeDivision(to, reason, models.DivisionChangePromotion, now)
			record(Transition{AgentID: a.ID, From: from, To: to, Reason: reason, Kind: models.DivisionChangePromotion})
		}
	case models.ResultLoss:
		if to := demotionTarget(a); to != "" {
			from := a.Division
			reason := movementReason(to, a)
			a.ChangeDivision(to, reason, models.DivisionChangeDemotion, now)
			record(Transition{AgentID: a.ID, From: from, To: to, Reason: reason, Kind: models.DivisionChangeDemotion})
		}
	}
}

// applyKingSide handles the defending King (agent1 of a king-challenge).
// A challenger win dethrones immediately; a retained crown is still
// checked against the automatic-succession rule on the pre-defense
// record.
func (e *Engine) applyKingSide(king *models.Agent, verdict *judge.Verdict, priorStreak int, now time.Time, record func(Transition)) {
	if king.Division != models.DivisionKing {
		return
	}
	switch verdict.Outcome {
	case judge.OutcomeAgent2Wins:
		king.KingChallengeLosses++
		e.dethrone(king, models.ReasonDethroned, now, record)
	default:
		if successionDue(king, priorStreak) {
			e.dethrone(king, models.ReasonDethroned, now, record)
		}
	}
}

// applyChallengerSide crowns a winning challenger (agent2 of a
// king-challenge). The King side runs first, so the crown is already free.
// A losing challenger is still subject to the regular demotion rules.
func (e *Engine) applyChallengerSide(challenger *models.Agent, verdict *judge.Verdict, now time.Time, record func(Transition)) {
	switch verdict.Outcome {
	case judge.OutcomeAgent2Wins:
		from := challenger.Division
		challenger.ChangeDivision(models.DivisionKing, models.ReasonCrowning, models.DivisionChangePromotion, now)
		record(Transition{
			AgentID: challenger.ID,
			From:    from,
			To:      models.DivisionKing,
			Reason:  models.ReasonCrowning,
			Kind:    models.DivisionChangePromotion,
		})
	case judge.OutcomeAgent1Wins:
		e.applyMovement(challenger, models.ResultLoss, now, record)
	}
}

func (e *Engine) dethrone(king *models.Agent, reason string, now time.Time, record func(Transition)) {
	from := king.Division
	king.ChangeDivision(models.DivisionMaster, reason, models.DivisionChangeDemotion, now)
	record(Transition{
		AgentID: king.ID,
		From:    from,
		To:      models.DivisionMaster,
		Reason:  reason,
		Kind:    models.DivisionChangeDemotion,
	})
}

// crownHighestMaster promotes the highest-rated active Master after an
// automatic succession. The agent just dethroned is not a candidate, and
// with no other Master the arena stays kingless until one earns the crown.
// Caller holds divisionMu.
func (e *Engine) crownHighestMaster(ctx context.Context, dethronedID string, now time.Time, record func(Transition)) error {
	kings, err := e.repo.ListAgents(ctx, repository.AgentFilter{Division: models.DivisionKing})
	if err != nil {
		return fmt.Errorf("listing kings for succession: %w", err)
	}
	if len(kings) > 0 {
		return nil
	}
	masters, err := e.repo.ListAgents(ctx, repository.AgentFilter{
		Division:   models.DivisionMaster,
		ActiveOnly: true,
	})
	if err != nil {
		return fmt.Errorf("listing masters for succession: %w", err)
	}
	var best *models.Agent
	for _, a := range masters {
		if a.ID == dethronedID {
			continue
		}
		if best == nil || a.EloRating > best.EloRating {
			best = a
		}
	}
	if best == nil {
		return nil
	}
	_, err = e.applyAgent(ctx, best.ID, func(a *models.Agent) bool {
		if a.Division != models.DivisionMaster {
			return false
		}
		from := a.Division
		a.ChangeDivision(models.DivisionKing, models.ReasonAutoSuccession, models.DivisionChangePromotion, now)
		a.UpdatedAt = now
		record(Transition{
			AgentID: a.ID,
			From:    from,
			To:      models.DivisionKing,
			Reason:  models.ReasonAutoSuccession,
			Kind:    models.DivisionChangePromotion,
		})
		return true
	})
	return err
}

// applyJudge nudges one judge's reliability toward its alignment with the
// verdict and refreshes the accuracy counters.
func (e *Engine) applyJudge(ctx context.Context, judgeID string, aligned bool) error {
	unlock := e.lock(judgeID)
	defer unlock()

	alpha := e.cfg.ReliabilityAlpha
	_, err := e.applyAgent(ctx, judgeID, func(a *models.Agent) bool {
		js := &a.JudgeStats
		js.Evaluations++
		if aligned {
			js.Aligned++
			js.Reliability += (1 - js.Reliability) * alpha
		} else {
			js.Reliability -= js.Reliability * alpha
		}
		js.Accuracy = float64(js.Aligned) / float64(js.Evaluations)
		a.UpdatedAt = models.Now()
		return true
	})
	return err
}

// applyChallenge counts the use and nudges quality: unanimous panels speak
// for the challenge's discriminating power, split panels against it. The
// first non-null result clears probation.
func (e *Engine) applyChallenge(ctx context.Context, challengeID string, verdict *judge.Verdict) error {
	unanimous := verdict.Unanimous()
	for attempt := 1; ; attempt++ {
		ch, err := e.repo.GetChallenge(ctx, challengeID)
		if err != nil {
			return fmt.Errorf("loading challenge %s: %w", challengeID, err)
		}
		ch.Uses++
		if unanimous {
			ch.QualityScore += (1 - ch.QualityScore) * qualityUnanimousGain
		} else {
			ch.QualityScore -= ch.QualityScore * qualitySplitLoss
		}
		if verdict.WinnerID != nil {
			ch.Probation = false
		}
		ch.UpdatedAt = models.Now()

		err = e.repo.PutChallenge(ctx, ch)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrStale) || attempt == staleRetries {
			return fmt.Errorf("updating challenge %s: %w", challengeID, err)
		}
	}
}

// applyAgent loads, mutates and writes one agent with stale retries.
// mutate returns false to skip the write (already applied).
func (e *Engine) applyAgent(ctx context.Context, id string, mutate func(*models.Agent) bool) (*models.Agent, error) {
	for attempt := 1; ; attempt++ {
		a, err := e.repo.GetAgent(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading agent %s: %w", id, err)
		}
		if !mutate(a) {
			return a, nil
		}
		err = e.repo.PutAgent(ctx, a)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, repository.ErrStale) || attempt == staleRetries {
			return nil, fmt.Errorf("updating agent %s: %w", id, err)
		}
	}
}

// lockPair acquires both competitors' locks in sorted order.
func (e *Engine) lockPair(id1, id2 string) func() {
	first, second := id1, id2
	if second < first {
		first, second = second, first
	}
	u1 := e.lock(first)
	u2 := e.lock(second)
	return func() {
		u2()
		u1()
	}
}

func (e *Engine) lock(id string) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}
