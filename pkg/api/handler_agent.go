package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/intelligence-arena/arena/pkg/models"
	"github.com/intelligence-arena/arena/pkg/repository"
)

// listAgentsHandler handles GET /agents.
func (s *Server) listAgentsHandler(c *gin.Context) {
	agents, err := s.repo.ListAgents(c.Request.Context(), repository.AgentFilter{})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agents)
}

// getAgentHandler handles GET /agents/:id.
func (s *Server) getAgentHandler(c *gin.Context) {
	agent, err := s.repo.GetAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

// createAgentHandler handles POST /agents (admin). New agents enter as
// active novices at the starting rating.
func (s *Server) createAgentHandler(c *gin.Context) {
	var req CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		respondInvalid(c, "id is required")
		return
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		respondInvalid(c, "displayName is required")
		return
	}
	if strings.TrimSpace(req.ModelID) == "" {
		respondInvalid(c, "modelId is required")
		return
	}

	ctx := c.Request.Context()
	if _, err := s.repo.GetAgent(ctx, req.ID); err == nil {
		c.JSON(http.StatusConflict, errorBody{Error: "duplicate", Message: "agent " + req.ID + " already exists"})
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		respondError(c, err)
		return
	}

	agent := models.NewAgent(req.ID, req.DisplayName, req.ModelID)
	agent.Description = req.Description
	agent.Specializations = req.Specializations
	if err := s.repo.PutAgent(ctx, agent); err != nil {
		// A concurrent create surfaces as a version conflict.
		respondError(c, err)
		return
	}

	s.logger.Info("Registered agent",
		"agent_id", agent.ID,
		"display_name", agent.DisplayName,
		"model_id", agent.ModelID)
	c.JSON(http.StatusCreated, agent)
}

// leaderboardHandler handles GET /leaderboard. Active agents come back
// sorted by descending ELO; ?division= narrows to one division.
func (s *Server) leaderboardHandler(c *gin.Context) {
	var division models.Division
	if v := c.Query("division"); v != "" {
		division = models.Division(v)
		if !division.IsValid() {
			respondInvalid(c, "invalid division: must be novice, expert, master, or king")
			return
		}
	}

	agents, err := s.repo.ListAgents(c.Request.Context(), repository.AgentFilter{
		Division:   division,
		ActiveOnly: true,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, agents)
}
