package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/stretchr/testify/require"

	"github.com/intelligence-arena/arena/pkg/api"
	"github.com/intelligence-arena/arena/pkg/challenge"
	"github.com/intelligence-arena/arena/pkg/models"
)

// ────────────────────────────────────────────────────────────
// HTTP client helpers
// ────────────────────────────────────────────────────────────

// apiError mirrors the API's error envelope.
type apiError struct {
	Error          string `json:"error"`
	Message        string `json:"message"`
	LiveMatchCount *int   `json:"live_match_count"`
	MaxLiveMatches *int   `json:"max_live_matches"`
}

// adminHeader carries the shared admin key.
func adminHeader() map[string]string {
	return map[string]string{"X-API-Key": AdminKey}
}

// do issues one request and returns the status code and raw body.
func (app *TestApp) do(t *testing.T, method, path string, body any, headers map[string]string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, app.BaseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

// postJSON posts body, requires wantStatus, and decodes into out when
// out is non-nil.
func (app *TestApp) postJSON(t *testing.T, path string, body any, headers map[string]string, wantStatus int, out any) {
	t.Helper()
	status, raw := app.do(t, http.MethodPost, path, body, headers)
	require.Equal(t, wantStatus, status, "POST %s body: %s", path, raw)
	if out != nil {
		require.NoError(t, json.Unmarshal(raw, out), "POST %s body: %s", path, raw)
	}
}

// getJSON fetches path, requires wantStatus, and decodes into out when
// out is non-nil.
func (app *TestApp) getJSON(t *testing.T, path string, wantStatus int, out any) {
	t.Helper()
	status, raw := app.do(t, http.MethodGet, path, nil, nil)
	require.Equal(t, wantStatus, status, "GET %s body: %s", path, raw)
	if out != nil {
		require.NoError(t, json.Unmarshal(raw, out), "GET %s body: %s", path, raw)
	}
}

// StartQuickMatch posts a quick match and returns the admitted match.
func (app *TestApp) StartQuickMatch(t *testing.T, req api.QuickMatchRequest) *models.Match {
	t.Helper()
	var m models.Match
	app.postJSON(t, "/matches/quick", req, nil, http.StatusCreated, &m)
	return &m
}

// StartKingChallenge posts a crown defense and returns the admitted match.
func (app *TestApp) StartKingChallenge(t *testing.T) *models.Match {
	t.Helper()
	var m models.Match
	app.postJSON(t, "/matches/king-challenge", nil, nil, http.StatusCreated, &m)
	return &m
}

// WaitForMatch polls GET /matches/{id} until the match reaches want.
// Terminal states are persisted from the runner goroutine, so even a
// finished match may take a poll or two to land.
func (app *TestApp) WaitForMatch(t *testing.T, matchID string, want models.MatchStatus) *models.Match {
	t.Helper()
	var got models.Match
	require.Eventually(t, func() bool {
		status, raw := app.do(t, http.MethodGet, "/matches/"+matchID, nil, nil)
		if status != http.StatusOK {
			return false
		}
		if err := json.Unmarshal(raw, &got); err != nil {
			return false
		}
		return got.Status == want
	}, 15*time.Second, 50*time.Millisecond, "match %s never reached %s", matchID, want)
	return &got
}

// GetAgent fetches an agent through the API.
func (app *TestApp) GetAgent(t *testing.T, id string) *models.Agent {
	t.Helper()
	var a models.Agent
	app.getJSON(t, "/agents/"+id, http.StatusOK, &a)
	return &a
}

// ────────────────────────────────────────────────────────────
// Seeding helpers
// ────────────────────────────────────────────────────────────

// SeedAgent stores an active agent whose gateway routes on "test/<id>".
// Optional mutations run before the store, so seeded stats and streaks
// survive the version check.
func (app *TestApp) SeedAgent(t *testing.T, id string, division models.Division, elo float64, mutate ...func(*models.Agent)) *models.Agent {
	t.Helper()
	a := models.NewAgent(id, id, "test/"+id)
	a.Division = division
	a.EloRating = elo
	for _, m := range mutate {
		m(a)
	}
	require.NoError(t, app.Repo.PutAgent(context.Background(), a))
	return a
}

// SeedChallenge stores one servable seed challenge and returns it.
func (app *TestApp) SeedChallenge(t *testing.T, title string, typ models.ChallengeType, difficulty models.Difficulty) *models.Challenge {
	t.Helper()
	ch, err := app.Pool.Seed(context.Background(), challenge.Draft{
		Title:       title,
		Description: "Scenario challenge: " + title,
		Type:        typ,
		Difficulty:  difficulty,
	})
	require.NoError(t, err)
	return ch
}

// SeedJudges seeds n master-division judges, each scripted to return
// verdictJSON once, and returns them.
func (app *TestApp) SeedJudges(t *testing.T, n int, verdictJSON string) []*models.Agent {
	t.Helper()
	judges := make([]*models.Agent, 0, n)
	for i := 0; i < n; i++ {
		id := "judge-" + string(rune('a'+i))
		j := app.SeedAgent(t, id, models.DivisionMaster, 1400+float64(i)*10)
		app.Gateway.Script(j.ModelID, GatewayScriptEntry{Text: verdictJSON})
		judges = append(judges, j)
	}
	return judges
}

// EvaluationJSON builds a structured judge verdict with uniform criterion
// scores and the given recommendation ("agent1", "agent2", or "" for a
// null recommendation).
func EvaluationJSON(t *testing.T, agent1Score, agent2Score float64, winner string) string {
	t.Helper()
	scores := func(v float64) map[string]float64 {
		s := make(map[string]float64, len(models.EvaluationCriteria))
		for _, c := range models.EvaluationCriteria {
			s[c] = v
		}
		return s
	}
	doc := map[string]any{
		"agent1Scores":      scores(agent1Score),
		"agent2Scores":      scores(agent2Score),
		"overallReasoning":  "scripted verdict",
		"confidence":        0.9,
		"recommendedWinner": nil,
	}
	if winner != "" {
		doc["recommendedWinner"] = winner
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(raw)
}

// ────────────────────────────────────────────────────────────
// SSE helpers
// ────────────────────────────────────────────────────────────

// EventStream is a live SSE subscription delivering parsed frames.
type EventStream struct {
	Events <-chan *sse.Event
	cancel context.CancelFunc
}

// Close tears the subscription down.
func (s *EventStream) Close() { s.cancel() }

// Next returns the next frame, failing the test after timeout.
func (s *EventStream) Next(t *testing.T, timeout time.Duration) *sse.Event {
	t.Helper()
	select {
	case ev := <-s.Events:
		return ev
	case <-time.After(timeout):
		t.Fatalf("no SSE event within %s", timeout)
		return nil
	}
}

// OpenStream subscribes to an SSE endpoint. Frames are buffered so slow
// assertions never stall the read loop, and the subscription dies with
// the test. Match streams open with a snapshot frame; waiting for it is
// how callers know the subscription is attached.
func (app *TestApp) OpenStream(t *testing.T, path string) *EventStream {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	frames := make(chan *sse.Event, 256)

	client := sse.NewClient(app.BaseURL + path)
	go func() {
		_ = client.SubscribeWithContext(ctx, "", func(msg *sse.Event) {
			select {
			case frames <- msg:
			case <-ctx.Done():
			}
		})
	}()

	t.Cleanup(cancel)
	return &EventStream{Events: frames, cancel: cancel}
}
