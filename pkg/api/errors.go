package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/intelligence-arena/arena/pkg/challenge"
	"github.com/intelligence-arena/arena/pkg/pairing"
	"github.com/intelligence-arena/arena/pkg/repository"
	"github.com/intelligence-arena/arena/pkg/scheduler"
)

// errorBody is the uniform error envelope: a stable machine-readable code
// plus human-readable detail. The live/max counts ride along only on
// too_many_matches responses.
type errorBody struct {
	Error          string `json:"error"`
	Message        string `json:"message,omitempty"`
	LiveMatchCount *int   `json:"live_match_count,omitempty"`
	MaxLiveMatches *int   `json:"max_live_matches,omitempty"`
}

// respondError maps service-layer errors onto HTTP responses in one
// place, so handlers never hand-pick status codes.
func respondError(c *gin.Context, err error) {
	var tooMany *scheduler.TooManyMatchesError
	switch {
	case errors.As(err, &tooMany):
		c.JSON(http.StatusTooManyRequests, errorBody{
			Error:          "too_many_matches",
			Message:        tooMany.Error(),
			LiveMatchCount: &tooMany.Live,
			MaxLiveMatches: &tooMany.Max,
		})
	case errors.Is(err, scheduler.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, errorBody{Error: "rate_limited", Message: err.Error()})
	case errors.Is(err, scheduler.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody{Error: "not_found", Message: "resource not found"})
	case errors.Is(err, challenge.ErrNoChallenge):
		c.JSON(http.StatusNotFound, errorBody{Error: "no_challenge", Message: err.Error()})
	case errors.Is(err, scheduler.ErrAlreadyTerminal):
		c.JSON(http.StatusConflict, errorBody{Error: "already_terminal", Message: "match already reached a terminal state"})
	case errors.Is(err, scheduler.ErrNotEligible):
		c.JSON(http.StatusConflict, errorBody{Error: "not_eligible", Message: err.Error()})
	case errors.Is(err, scheduler.ErrAgentBusy):
		c.JSON(http.StatusConflict, errorBody{Error: "agent_busy", Message: err.Error()})
	case errors.Is(err, scheduler.ErrTournamentRunning):
		c.JSON(http.StatusConflict, errorBody{Error: "tournament_running", Message: err.Error()})
	case errors.Is(err, scheduler.ErrNotStarted):
		c.JSON(http.StatusServiceUnavailable, errorBody{Error: "scheduler_stopped", Message: err.Error()})
	case errors.Is(err, challenge.ErrDuplicate):
		c.JSON(http.StatusConflict, errorBody{Error: "duplicate", Message: err.Error()})
	case errors.Is(err, challenge.ErrInvalidDraft):
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid_draft", Message: err.Error()})
	case errors.Is(err, pairing.ErrNoOpponent):
		c.JSON(http.StatusBadRequest, errorBody{Error: "no_opponent", Message: err.Error()})
	case errors.Is(err, repository.ErrDuplicate), errors.Is(err, repository.ErrStale):
		c.JSON(http.StatusConflict, errorBody{Error: "duplicate", Message: "resource already exists"})
	case errors.Is(err, repository.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorBody{Error: "invalid_request", Message: err.Error()})
	default:
		slog.Error("Unexpected service error", "error", err)
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal server error"})
	}
}

// respondInvalid rejects a request that failed parameter validation
// before reaching any service.
func respondInvalid(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorBody{Error: "invalid_request", Message: msg})
}
