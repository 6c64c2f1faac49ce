package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/intelligence-arena/arena/pkg/challenge"
	"github.com/intelligence-arena/arena/pkg/repository"
)

// listChallengesHandler handles GET /challenges.
func (s *Server) listChallengesHandler(c *gin.Context) {
	challenges, err := s.repo.ListChallenges(c.Request.Context(), repository.ChallengeFilter{})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, challenges)
}

// createChallengeHandler handles POST /challenges (admin). Operator seeds
// skip probation and enter rotation immediately.
func (s *Server) createChallengeHandler(c *gin.Context) {
	var draft challenge.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		respondInvalid(c, "invalid JSON body: "+err.Error())
		return
	}

	created, err := s.pool.Seed(c.Request.Context(), draft)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// contributeChallengeHandler handles POST /challenges/contribute.
// Contributions enter probation until their first decisive match.
func (s *Server) contributeChallengeHandler(c *gin.Context) {
	var draft challenge.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		respondInvalid(c, "invalid JSON body: "+err.Error())
		return
	}

	created, err := s.pool.Contribute(c.Request.Context(), draft)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}
