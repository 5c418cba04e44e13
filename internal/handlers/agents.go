package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/credgate/credgate/internal/middleware"
	"github.com/credgate/credgate/internal/services"
)

// AgentHandler serves agent registration for users
type AgentHandler struct {
	agentService *services.AgentService
}

// NewAgentHandler creates a new agent handler
func NewAgentHandler(as *services.AgentService) *AgentHandler {
	return &AgentHandler{agentService: as}
}

// CreateAgent handles POST /api/agents. The response carries the plaintext
// agent token exactly once; it cannot be retrieved later.
func (h *AgentHandler) CreateAgent(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "name is required",
		})
		return
	}

	agent, token, err := h.agentService.CreateAgent(c, userID, req.Name)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"agent": agent,
		"token": token,
	})
}

// ListAgents handles GET /api/agents
func (h *AgentHandler) ListAgents(c *gin.Context) {
	userID := middleware.GetUserID(c)

	agents, err := h.agentService.ListAgents(userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agents": agents,
	})
}

// DeleteAgent handles DELETE /api/agents/:id
func (h *AgentHandler) DeleteAgent(c *gin.Context) {
	userID := middleware.GetUserID(c)

	if err := h.agentService.DeleteAgent(c, userID, c.Param("id")); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "deleted",
	})
}
