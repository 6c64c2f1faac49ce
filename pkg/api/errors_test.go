package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelligence-arena/arena/pkg/challenge"
	"github.com/intelligence-arena/arena/pkg/pairing"
	"github.com/intelligence-arena/arena/pkg/repository"
	"github.com/intelligence-arena/arena/pkg/scheduler"
)

func TestRespondError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{
			name:     "live cap maps to 429 with counts",
			err:      &scheduler.TooManyMatchesError{Live: 2, Max: 2},
			wantCode: http.StatusTooManyRequests,
			wantBody: "too_many_matches",
		},
		{
			name:     "rate limit maps to 429",
			err:      fmt.Errorf("wrapped: %w", scheduler.ErrRateLimited),
			wantCode: http.StatusTooManyRequests,
			wantBody: "rate_limited",
		},
		{
			name:     "scheduler not-found maps to 404",
			err:      scheduler.ErrNotFound,
			wantCode: http.StatusNotFound,
			wantBody: "not_found",
		},
		{
			name:     "repository not-found maps to 404",
			err:      fmt.Errorf("agent x: %w", repository.ErrNotFound),
			wantCode: http.StatusNotFound,
			wantBody: "not_found",
		},
		{
			name:     "empty corpus maps to 404",
			err:      fmt.Errorf("division novice: %w", challenge.ErrNoChallenge),
			wantCode: http.StatusNotFound,
			wantBody: "no_challenge",
		},
		{
			name:     "terminal match maps to 409",
			err:      scheduler.ErrAlreadyTerminal,
			wantCode: http.StatusConflict,
			wantBody: "already_terminal",
		},
		{
			name:     "ineligible king challenge maps to 409",
			err:      scheduler.ErrNotEligible,
			wantCode: http.StatusConflict,
			wantBody: "not_eligible",
		},
		{
			name:     "busy agent maps to 409",
			err:      scheduler.ErrAgentBusy,
			wantCode: http.StatusConflict,
			wantBody: "agent_busy",
		},
		{
			name:     "running tournament maps to 409",
			err:      scheduler.ErrTournamentRunning,
			wantCode: http.StatusConflict,
			wantBody: "tournament_running",
		},
		{
			name:     "stopped scheduler maps to 503",
			err:      scheduler.ErrNotStarted,
			wantCode: http.StatusServiceUnavailable,
			wantBody: "scheduler_stopped",
		},
		{
			name:     "duplicate challenge maps to 409",
			err:      fmt.Errorf("title taken: %w", challenge.ErrDuplicate),
			wantCode: http.StatusConflict,
			wantBody: "duplicate",
		},
		{
			name:     "invalid draft maps to 400",
			err:      fmt.Errorf("title is required: %w", challenge.ErrInvalidDraft),
			wantCode: http.StatusBadRequest,
			wantBody: "invalid_draft",
		},
		{
			name:     "no opponent maps to 400",
			err:      fmt.Errorf("division novice: %w", pairing.ErrNoOpponent),
			wantCode: http.StatusBadRequest,
			wantBody: "no_opponent",
		},
		{
			name:     "version conflict maps to 409",
			err:      fmt.Errorf("agent a: %w", repository.ErrStale),
			wantCode: http.StatusConflict,
			wantBody: "duplicate",
		},
		{
			name:     "unknown error maps to 500",
			err:      fmt.Errorf("something unexpected happened"),
			wantCode: http.StatusInternalServerError,
			wantBody: "internal",
		},
	}

	gin.SetMode(gin.ReleaseMode)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)

			respondError(c, tt.err)

			assert.Equal(t, tt.wantCode, rec.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body.Error)
		})
	}
}

func TestRespondErrorTooManyCarriesCounts(t *testing.T) {
	gin.SetMode(gin.ReleaseMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	respondError(c, &scheduler.TooManyMatchesError{Live: 3, Max: 2})

	var body struct {
		Error          string `json:"error"`
		LiveMatchCount int    `json:"live_match_count"`
		MaxLiveMatches int    `json:"max_live_matches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "too_many_matches", body.Error)
	assert.Equal(t, 3, body.LiveMatchCount)
	assert.Equal(t, 2, body.MaxLiveMatches)
}
