package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/intelligence-arena/arena/pkg/models"
	"github.com/intelligence-arena/arena/pkg/repository"
	"github.com/intelligence-arena/arena/pkg/scheduler"
)

// listMatchesHandler handles GET /matches. ?status= narrows to one
// lifecycle state.
func (s *Server) listMatchesHandler(c *gin.Context) {
	var status models.MatchStatus
	if v := c.Query("status"); v != "" {
		status = models.MatchStatus(v)
		if !status.IsValid() {
			respondInvalid(c, "invalid status: must be pending, in_progress, judging, finalizing, completed, cancelled, or failed")
			return
		}
	}

	matches, err := s.repo.ListMatches(c.Request.Context(), repository.MatchFilter{Status: status})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, matches)
}

// liveMatchesHandler handles GET /matches/live: the full documents of
// every match currently holding a slot.
func (s *Server) liveMatchesHandler(c *gin.Context) {
	ctx := c.Request.Context()
	live := s.scheduler.Snapshot()

	matches := make([]*models.Match, 0, len(live))
	for _, lm := range live {
		m, err := s.repo.GetMatch(ctx, lm.MatchID)
		if err != nil || m.Status.IsTerminal() {
			// Finished between the snapshot and the read.
			continue
		}
		matches = append(matches, m)
	}
	c.JSON(http.StatusOK, matches)
}

// getMatchHandler handles GET /matches/:id.
func (s *Server) getMatchHandler(c *gin.Context) {
	m, err := s.repo.GetMatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// quickMatchHandler handles POST /matches/quick. Every field is optional:
// an empty body starts an auto-paired novice duel.
func (s *Server) quickMatchHandler(c *gin.Context) {
	var req QuickMatchRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondInvalid(c, "invalid JSON body: "+err.Error())
			return
		}
	}

	division := models.Division(req.Division)
	if req.Division != "" && !division.IsValid() {
		respondInvalid(c, "invalid division: must be novice, expert, master, or king")
		return
	}

	m, err := s.scheduler.StartMatch(c.Request.Context(), scheduler.StartRequest{
		Division:    division,
		Agent1ID:    req.Agent1ID,
		Agent2ID:    req.Agent2ID,
		ChallengeID: req.ChallengeID,
		RequesterIP: c.ClientIP(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// kingChallengeHandler handles POST /matches/king-challenge: the sitting
// King defends the crown against the strongest eligible Master.
func (s *Server) kingChallengeHandler(c *gin.Context) {
	m, err := s.scheduler.StartKingChallenge(c.Request.Context(), c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// cancelMatchHandler handles POST /matches/:id/cancel (admin).
func (s *Server) cancelMatchHandler(c *gin.Context) {
	matchID := c.Param("id")
	if err := s.scheduler.Cancel(c.Request.Context(), matchID); err != nil {
		respondError(c, err)
		return
	}

	s.logger.Info("Cancelled match", "match_id", matchID)
	c.JSON(http.StatusOK, &CancelResponse{
		MatchID: matchID,
		Message: "match cancellation requested",
	})
}
