// Package scheduler is the arena's admission controller. It owns the
// live-match table: every start reserves a slot against the live cap
// before any pairing work happens, and the slot is held until the
// runner's terminal event. Match runners execute in parallel; admission
// decisions are serialized under one mutex.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/intelligence-arena/arena/pkg/challenge"
	"github.com/intelligence-arena/arena/pkg/config"
	"github.com/intelligence-arena/arena/pkg/events"
	"github.com/intelligence-arena/arena/pkg/match"
	"github.com/intelligence-arena/arena/pkg/models"
	"github.com/intelligence-arena/arena/pkg/pairing"
	"github.com/intelligence-arena/arena/pkg/ranking"
	"github.com/intelligence-arena/arena/pkg/repository"
)

var (
	// ErrNotStarted means the scheduler is not accepting starts.
	ErrNotStarted = errors.New("scheduler not started")

	// ErrNotFound means no match with that id exists.
	ErrNotFound = errors.New("match not found")

	// ErrAlreadyTerminal means the match already reached a terminal state.
	ErrAlreadyTerminal = errors.New("match already terminal")

	// ErrNotEligible means no king challenge can be formed right now.
	ErrNotEligible = errors.New("king challenge not eligible")

	// ErrRateLimited means the requester exhausted its start budget.
	ErrRateLimited = errors.New("too many match starts")

	// ErrAgentBusy means a requested agent is already playing.
	ErrAgentBusy = errors.New("agent already in a live match")

	// ErrTournamentRunning means a tournament is already in progress.
	ErrTournamentRunning = errors.New("tournament already running")
)

// TooManyMatchesError reports a start bounced off the live-match cap.
// Callers are expected to retry; nothing is queued.
type TooManyMatchesError struct {
	Live int
	Max  int
}

func (e *TooManyMatchesError) Error() string {
	return fmt.Sprintf("live match limit reached: %d of %d", e.Live, e.Max)
}

// drainTimeout bounds how long Stop waits for live runners after their
// contexts are cancelled.
const drainTimeout = 10 * time.Second

// StartRequest describes one match start. Agent ids are optional: empty
// ids pair automatically within Division. ChallengeID pins a specific
// challenge (probation trials, manual starts). RequesterIP feeds the rate
// limiter; system starts leave it empty.
type StartRequest struct {
	Type        models.MatchType
	Division    models.Division
	Agent1ID    string
	Agent2ID    string
	ChallengeID string
	RequesterIP string
}

// LiveMatch is one row of the live-match table.
type LiveMatch struct {
	MatchID   string           `json:"matchId"`
	Type      models.MatchType `json:"type"`
	Division  models.Division  `json:"division"`
	Agent1ID  string           `json:"agent1Id"`
	Agent2ID  string           `json:"agent2Id"`
	StartedAt time.Time        `json:"startedAt"`
}

type liveEntry struct {
	info   LiveMatch
	cancel context.CancelFunc
}

// Scheduler admits, tracks, and cancels matches.
type Scheduler struct {
	repo       repository.Repository
	runner     *match.Runner
	picker     *pairing.Picker
	challenges *challenge.Pool
	publisher  *events.Publisher
	cfg        config.ArenaConfig
	logger     *slog.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	cron    *cron.Cron
	wg      sync.WaitGroup

	// mu guards the admission state: the live table, the busy-agent
	// index, the reservation counter, and the rate buckets.
	mu       sync.Mutex
	started  bool
	reserved int
	live     map[string]*liveEntry
	busy     map[string]string
	buckets  map[string]*bucket

	tmu        sync.Mutex
	tournament TournamentStatus
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(repo repository.Repository, runner *match.Runner, picker *pairing.Picker, challenges *challenge.Pool, publisher *events.Publisher, cfg config.ArenaConfig) *Scheduler {
	return &Scheduler{
		repo:       repo,
		runner:     runner,
		picker:     picker,
		challenges: challenges,
		publisher:  publisher,
		cfg:        cfg,
		logger:     slog.With("component", "scheduler"),
		live:       make(map[string]*liveEntry),
		busy:       make(map[string]string),
		buckets:    make(map[string]*bucket),
	}
}

// Start makes the scheduler accept matches and, when a cron schedule is
// configured, begins the autonomous sweep. Duplicate calls are no-ops.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.logger.Warn("Scheduler already started, ignoring duplicate Start call")
		return nil
	}
	s.baseCtx, s.stop = context.WithCancel(ctx)
	if s.cfg.CronSchedule != "" {
		s.cron = cron.New()
		if _, err := s.cron.AddFunc(s.cfg.CronSchedule, s.sweep); err != nil {
			s.stop()
			return fmt.Errorf("invalid cron schedule %q: %w", s.cfg.CronSchedule, err)
		}
		s.cron.Start()
	}
	s.started = true
	s.logger.Info("Scheduler started",
		"max_live_matches", s.cfg.MaxLiveMatches,
		"starts_per_minute", s.cfg.StartsPerMinute,
		"cron_schedule", s.cfg.CronSchedule)
	return nil
}

// Stop cancels every live match and waits for the runners to persist
// their terminal states, bounded by drainTimeout. Safe to call once
// started; duplicate calls are no-ops.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cronEngine := s.cron
	liveCount := len(s.live)
	s.mu.Unlock()

	s.logger.Info("Stopping scheduler", "live_matches", liveCount)
	if cronEngine != nil {
		<-cronEngine.Stop().Done()
	}
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("Scheduler stopped, all matches drained")
	case <-time.After(drainTimeout):
		s.logger.Warn("Scheduler stop timed out waiting for live matches")
	}
}

// StartMatch admits and launches one match. It returns a snapshot of the
// pending match; the live copy belongs to the runner from here on. The
// request context covers only admission and preparation; the match itself
// runs on the scheduler's context with the match timeout applied.
func (s *Scheduler) StartMatch(ctx context.Context, req StartRequest) (*models.Match, error) {
	if err := s.admit(req.RequesterIP); err != nil {
		return nil, err
	}
	m, err := s.prepare(ctx, req)
	if err != nil {
		s.unreserve()
		return nil, err
	}
	snapshot, err := s.launch(m)
	if err != nil {
		s.unreserve()
		return nil, err
	}
	return snapshot, nil
}

// StartKingChallenge starts a crown defense between the sitting King and
// the best eligible Master.
func (s *Scheduler) StartKingChallenge(ctx context.Context, requesterIP string) (*models.Match, error) {
	return s.StartMatch(ctx, StartRequest{
		Type:        models.MatchKingChallenge,
		RequesterIP: requesterIP,
	})
}

// Cancel aborts a live match, or repairs a non-terminal match orphaned by
// an earlier process.
func (s *Scheduler) Cancel(ctx context.Context, matchID string) error {
	s.mu.Lock()
	entry, ok := s.live[matchID]
	s.mu.Unlock()
	if ok {
		entry.cancel()
		s.logger.Info("Match cancellation requested", "match_id", matchID)
		return nil
	}

	m, err := s.repo.GetMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("match %s: %w", matchID, ErrNotFound)
		}
		return fmt.Errorf("loading match %s: %w", matchID, err)
	}
	if m.Status.IsTerminal() {
		return fmt.Errorf("match %s is %s: %w", matchID, m.Status, ErrAlreadyTerminal)
	}

	// Not live here yet not terminal: left behind by a crashed process.
	previous := m.Status
	now := models.Now()
	m.Status = models.MatchCancelled
	m.CompletedAt = &now
	if err := s.repo.PutMatch(ctx, m); err != nil {
		return fmt.Errorf("repairing orphaned match %s: %w", matchID, err)
	}
	s.publisher.Status(m.ID, models.MatchCancelled)
	s.publisher.Final(m.ID, m.WinnerID, m.FinalScores, m.Result)
	s.publisher.MatchCompleted(m)
	s.logger.Warn("Cancelled orphaned match", "match_id", matchID, "previous_status", previous)
	return nil
}

// Snapshot copies the live-match table, oldest first.
func (s *Scheduler) Snapshot() []LiveMatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LiveMatch, 0, len(s.live))
	for _, entry := range s.live {
		out = append(out, entry.info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].MatchID < out[j].MatchID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// admit takes a rate token and reserves a live slot.
func (s *Scheduler) admit(ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	if ip != "" && !s.takeToken(ip, time.Now()) {
		return ErrRateLimited
	}
	if inFlight := len(s.live) + s.reserved; inFlight >= s.cfg.MaxLiveMatches {
		return &TooManyMatchesError{Live: inFlight, Max: s.cfg.MaxLiveMatches}
	}
	s.reserved++
	return nil
}

func (s *Scheduler) unreserve() {
	s.mu.Lock()
	s.reserved--
	s.mu.Unlock()
}

// prepare resolves competitors and a challenge into a pending match. No
// scheduler locks are held across the repository calls.
func (s *Scheduler) prepare(ctx context.Context, req StartRequest) (*models.Match, error) {
	a1, a2, division, err := s.resolveAgents(ctx, req)
	if err != nil {
		return nil, err
	}

	var challengeType models.ChallengeType
	if req.Type == models.MatchDebate {
		challengeType = models.ChallengeDebate
	}
	var ch *models.Challenge
	if req.ChallengeID != "" {
		ch, err = s.challenges.PickByID(ctx, req.ChallengeID)
	} else {
		ch, err = s.challenges.Pick(ctx, division, challengeType, a1.ID, a2.ID)
	}
	if err != nil {
		return nil, err
	}

	matchType := req.Type
	if matchType == "" {
		matchType = models.MatchRegularDuel
	}
	// A debate challenge plays as a debate.
	if matchType == models.MatchRegularDuel && ch.Type == models.ChallengeDebate {
		matchType = models.MatchDebate
	}

	return &models.Match{
		ID:          uuid.NewString(),
		Agent1ID:    a1.ID,
		Agent2ID:    a2.ID,
		ChallengeID: ch.ID,
		Division:    division,
		Type:        matchType,
		Status:      models.MatchPending,
		CreatedAt:   models.Now(),
	}, nil
}

// resolveAgents picks the competitors and the division the match is rated
// in. King challenges always rate in the king division with the King as
// agent1; the ranking engine depends on that ordering.
func (s *Scheduler) resolveAgents(ctx context.Context, req StartRequest) (*models.Agent, *models.Agent, models.Division, error) {
	if req.Type == models.MatchKingChallenge {
		king, challenger, err := s.resolveCrownPair(ctx, req)
		if err != nil {
			return nil, nil, "", err
		}
		return king, challenger, models.DivisionKing, nil
	}

	division := req.Division
	switch {
	case req.Agent1ID != "" && req.Agent2ID != "":
		if division == "" {
			anchor, err := s.repo.GetAgent(ctx, req.Agent1ID)
			if err != nil {
				return nil, nil, "", fmt.Errorf("agent %s: %w", req.Agent1ID, err)
			}
			division = anchor.Division
		}
		a1, a2, err := s.picker.PickPair(ctx, division, req.Agent1ID, req.Agent2ID)
		return a1, a2, division, err
	case req.Agent1ID != "" || req.Agent2ID != "":
		return nil, nil, "", fmt.Errorf("%w: a manual pairing needs both agent ids", pairing.ErrNoOpponent)
	default:
		if division == "" {
			division = models.DivisionNovice
		}
		// Automatic pairing never proposes an agent that is already on
		// the floor; manual pairings fail at launch instead.
		a1, a2, err := s.picker.Pick(ctx, division, s.busyIDs()...)
		return a1, a2, division, err
	}
}

func (s *Scheduler) busyIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.busy))
	for id := range s.busy {
		ids = append(ids, id)
	}
	return ids
}

// resolveCrownPair locates the sitting King and the strongest eligible
// Master, honoring explicit ids when the request names them.
func (s *Scheduler) resolveCrownPair(ctx context.Context, req StartRequest) (*models.Agent, *models.Agent, error) {
	var king *models.Agent
	if req.Agent1ID != "" {
		a, err := s.repo.GetAgent(ctx, req.Agent1ID)
		if err != nil {
			return nil, nil, fmt.Errorf("agent %s: %w", req.Agent1ID, err)
		}
		king = a
	} else {
		kings, err := s.repo.ListAgents(ctx, repository.AgentFilter{Division: models.DivisionKing, ActiveOnly: true})
		if err != nil {
			return nil, nil, fmt.Errorf("listing kings: %w", err)
		}
		if len(kings) == 0 {
			return nil, nil, fmt.Errorf("%w: no sitting king", ErrNotEligible)
		}
		king = kings[0]
	}
	if king.Division != models.DivisionKing || !king.Active {
		return nil, nil, fmt.Errorf("%w: %s does not hold the crown", ErrNotEligible, king.ID)
	}

	if req.Agent2ID != "" {
		a, err := s.repo.GetAgent(ctx, req.Agent2ID)
		if err != nil {
			return nil, nil, fmt.Errorf("agent %s: %w", req.Agent2ID, err)
		}
		if !ranking.EligibleChallenger(a) {
			return nil, nil, fmt.Errorf("%w: %s has not earned a crown shot", ErrNotEligible, a.ID)
		}
		return king, a, nil
	}

	masters, err := s.repo.ListAgents(ctx, repository.AgentFilter{Division: models.DivisionMaster, ActiveOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("listing masters: %w", err)
	}
	// Rating-sorted from the repository, so the first eligible master is
	// the strongest challenger.
	for _, a := range masters {
		if ranking.EligibleChallenger(a) {
			return king, a, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: no master qualifies as challenger", ErrNotEligible)
}

// launch persists the pending match, registers it in the live table, and
// spawns its runner. It returns a snapshot safe for the caller to read
// while the runner mutates the live copy.
func (s *Scheduler) launch(m *models.Match) (*models.Match, error) {
	s.mu.Lock()
	for _, id := range []string{m.Agent1ID, m.Agent2ID} {
		if other, clash := s.busy[id]; clash {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %s is playing match %s", ErrAgentBusy, id, other)
		}
	}
	s.busy[m.Agent1ID] = m.ID
	s.busy[m.Agent2ID] = m.ID
	baseCtx := s.baseCtx
	s.mu.Unlock()

	if err := s.repo.PutMatch(baseCtx, m); err != nil {
		s.mu.Lock()
		delete(s.busy, m.Agent1ID)
		delete(s.busy, m.Agent2ID)
		s.mu.Unlock()
		return nil, fmt.Errorf("persisting pending match: %w", err)
	}

	matchCtx, cancel := context.WithTimeout(baseCtx, s.cfg.MatchTimeout)
	s.mu.Lock()
	s.reserved--
	s.live[m.ID] = &liveEntry{
		info: LiveMatch{
			MatchID:   m.ID,
			Type:      m.Type,
			Division:  m.Division,
			Agent1ID:  m.Agent1ID,
			Agent2ID:  m.Agent2ID,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}
	s.mu.Unlock()

	s.publisher.MatchCreated(m)
	s.logger.Info("Match admitted",
		"match_id", m.ID,
		"type", m.Type,
		"division", m.Division,
		"agent1_id", m.Agent1ID,
		"agent2_id", m.Agent2ID,
		"challenge_id", m.ChallengeID)

	snapshot := m.Clone()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer s.finish(m)
		if err := s.runner.Run(matchCtx, m); err != nil {
			s.logger.Error("Match could not reach a terminal state", "match_id", m.ID, "error", err)
		}
	}()
	return snapshot, nil
}

// finish frees the slot and the competitors after the runner returns.
// StartMatch reuses launch's reservation accounting, so the slot is held
// without a gap from admission to here.
func (s *Scheduler) finish(m *models.Match) {
	s.mu.Lock()
	delete(s.live, m.ID)
	delete(s.busy, m.Agent1ID)
	delete(s.busy, m.Agent2ID)
	remaining := len(s.live)
	s.mu.Unlock()
	s.logger.Info("Match slot released", "match_id", m.ID, "status", m.Status, "live_matches", remaining)
}
