// Package api exposes the arena over HTTP: a JSON API for agents,
// challenges, matches and tournaments, plus SSE streams fed by the event
// bus. Handlers stay thin; all arena semantics live in the scheduler, the
// challenge pool, and the repository.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/intelligence-arena/arena/pkg/challenge"
	"github.com/intelligence-arena/arena/pkg/config"
	"github.com/intelligence-arena/arena/pkg/events"
	"github.com/intelligence-arena/arena/pkg/repository"
	"github.com/intelligence-arena/arena/pkg/scheduler"
)

// Server is the HTTP front of the arena.
type Server struct {
	repo      repository.Repository
	scheduler *scheduler.Scheduler
	pool      *challenge.Pool
	bus       *events.Bus
	adminKey  string
	logger    *slog.Logger

	engine *gin.Engine
	http   *http.Server

	// done ends open SSE streams so Shutdown is not held hostage by
	// otherwise-idle streaming connections.
	done     chan struct{}
	doneOnce sync.Once
}

// NewServer wires handlers and middleware onto a gin engine. The engine
// is ready to serve; nothing starts listening until Start or Serve.
func NewServer(repo repository.Repository, sched *scheduler.Scheduler, pool *challenge.Pool, bus *events.Bus, cfg *config.Config) *Server {
	s := &Server{
		repo:      repo,
		scheduler: sched,
		pool:      pool,
		bus:       bus,
		adminKey:  cfg.AdminAPIKey,
		logger:    slog.Default().With("component", "api"),
		done:      make(chan struct{}),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(recovery(s.logger), requestLogger(s.logger), securityHeaders())

	engine.GET("/healthz", s.healthHandler)

	engine.GET("/agents", s.listAgentsHandler)
	engine.GET("/agents/:id", s.getAgentHandler)
	engine.POST("/agents", s.adminOnly(), s.createAgentHandler)
	engine.GET("/leaderboard", s.leaderboardHandler)

	engine.GET("/challenges", s.listChallengesHandler)
	engine.POST("/challenges", s.adminOnly(), s.createChallengeHandler)
	engine.POST("/challenges/contribute", s.contributeChallengeHandler)

	// Exact segments (live, stream, quick, ...) resolve before :id.
	engine.GET("/matches", s.listMatchesHandler)
	engine.GET("/matches/live", s.liveMatchesHandler)
	engine.GET("/matches/stream", s.arenaStreamHandler)
	engine.GET("/matches/:id", s.getMatchHandler)
	engine.GET("/matches/:id/stream", s.matchStreamHandler)
	engine.POST("/matches/quick", s.quickMatchHandler)
	engine.POST("/matches/king-challenge", s.kingChallengeHandler)
	engine.POST("/matches/:id/cancel", s.adminOnly(), s.cancelMatchHandler)

	engine.POST("/tournament/start", s.adminOnly(), s.startTournamentHandler)
	engine.GET("/tournament/status", s.tournamentStatusHandler)

	s.engine = engine
	s.http = &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: engine,
		// No WriteTimeout: SSE connections stay open indefinitely.
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the underlying engine for httptest-style callers.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves on the configured address and blocks until the listener
// fails or Shutdown runs. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve accepts connections on l. The e2e harness uses it to bind port 0
// and learn the chosen address before the first request.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("HTTP server listening", "addr", l.Addr().String())
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown ends open SSE streams, then drains in-flight requests until
// ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })
	return s.http.Shutdown(ctx)
}
