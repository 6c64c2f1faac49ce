package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// startTournamentHandler handles POST /tournament/start?numRounds=
// (admin). The tournament runs in the background; 202 carries its
// starting status.
func (s *Server) startTournamentHandler(c *gin.Context) {
	rounds := 1
	if v := c.Query("numRounds"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondInvalid(c, "numRounds must be a positive integer")
			return
		}
		rounds = n
	}

	if err := s.scheduler.StartTournament(rounds); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.scheduler.TournamentStatus())
}

// tournamentStatusHandler handles GET /tournament/status.
func (s *Server) tournamentStatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.scheduler.TournamentStatus())
}
