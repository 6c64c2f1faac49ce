// Package e2e boots a complete arena instance per test: scheduler, judge
// panel, ranking engine, event bus and the HTTP API on a random local
// port, backed by the in-memory repository and a scripted model gateway.
// Tests drive the system the way real clients do, over HTTP and SSE, and
// control match pacing through the gateway scripts.
package e2e

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intelligence-arena/arena/pkg/api"
	"github.com/intelligence-arena/arena/pkg/challenge"
	"github.com/intelligence-arena/arena/pkg/config"
	"github.com/intelligence-arena/arena/pkg/events"
	"github.com/intelligence-arena/arena/pkg/judge"
	"github.com/intelligence-arena/arena/pkg/match"
	"github.com/intelligence-arena/arena/pkg/pairing"
	"github.com/intelligence-arena/arena/pkg/ranking"
	"github.com/intelligence-arena/arena/pkg/repository"
	"github.com/intelligence-arena/arena/pkg/scheduler"
)

// AdminKey authenticates admin endpoints in every test app.
const AdminKey = "e2e-admin-key"

// TestApp is one booted arena instance.
type TestApp struct {
	// Core
	Config *config.Config
	Repo   *repository.MemoryStore

	// Test doubles
	Gateway *ScriptedGateway

	// Real infrastructure
	Bus       *events.Bus
	Publisher *events.Publisher
	Pool      *challenge.Pool
	Scheduler *scheduler.Scheduler
	Server    *api.Server

	// Runtime
	BaseURL string // e.g. "http://127.0.0.1:54321"

	t *testing.T
}

// testAppConfig accumulates options before wiring.
type testAppConfig struct {
	mutations []func(*config.Config)
	gateway   *ScriptedGateway
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithConfig applies a mutation to the test defaults before wiring.
func WithConfig(mutate func(*config.Config)) TestAppOption {
	return func(tc *testAppConfig) { tc.mutations = append(tc.mutations, mutate) }
}

// WithGateway installs a pre-scripted gateway.
func WithGateway(gw *ScriptedGateway) TestAppOption {
	return func(tc *testAppConfig) { tc.gateway = gw }
}

// NewTestApp boots a full arena and registers its teardown on t.Cleanup.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{}
	for _, opt := range opts {
		opt(tc)
	}

	// Test defaults: no pairing cooldown so rematches are legal, a tight
	// match deadline, and a rate budget no scenario bumps into by accident
	// (every localhost request carries a requester IP and burns a token).
	cfg := config.DefaultConfig()
	cfg.AdminAPIKey = AdminKey
	cfg.Arena.PairingCooldown = 0
	cfg.Arena.MatchTimeout = 10 * time.Second
	cfg.Arena.MaxLiveMatches = 4
	cfg.Arena.StartsPerMinute = 120
	for _, mutate := range tc.mutations {
		mutate(cfg)
	}

	gw := tc.gateway
	if gw == nil {
		gw = NewScriptedGateway()
	}

	// 1. Storage and event fabric.
	repo := repository.NewMemoryStore()
	bus := events.NewBus()
	publisher := events.NewPublisher(bus)

	// 2. Arena core, wired the way cmd/arenad wires it.
	pool := challenge.NewPool(repo)
	picker := pairing.NewPicker(repo, cfg.Arena.PairingCooldown, cfg.Arena.PairingEpsilon)
	panel := judge.NewPanel(repo, gw, cfg.Judging)
	engine := ranking.NewEngine(repo, cfg.Judging)
	runner := match.NewRunner(repo, gw, panel, engine, publisher, cfg.Arena)
	sched := scheduler.NewScheduler(repo, runner, picker, pool, publisher, cfg.Arena)
	require.NoError(t, sched.Start(context.Background()))

	// 3. HTTP server on a random port.
	server := api.NewServer(repo, sched, pool, bus, cfg)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = server.Serve(ln)
	}()

	app := &TestApp{
		Config:    cfg,
		Repo:      repo,
		Gateway:   gw,
		Bus:       bus,
		Publisher: publisher,
		Pool:      pool,
		Scheduler: sched,
		Server:    server,
		BaseURL:   "http://" + ln.Addr().String(),
		t:         t,
	}

	// Teardown in reverse creation order. Stopping the scheduler cancels
	// live matches, so blocked gateway calls unwind before the bus closes.
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		sched.Stop()
		bus.Close()
	})

	return app
}
