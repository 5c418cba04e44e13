package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/credgate/credgate/internal/middleware"
	"github.com/credgate/credgate/internal/models"
	"github.com/credgate/credgate/internal/services"
)

// GrantHandler serves permission grant management for credential owners
type GrantHandler struct {
	grantService *services.GrantService
	agentService *services.AgentService
}

// NewGrantHandler creates a new grant handler
func NewGrantHandler(gs *services.GrantService, as *services.AgentService) *GrantHandler {
	return &GrantHandler{grantService: gs, agentService: as}
}

// CreateGrant handles POST /api/grants
func (h *GrantHandler) CreateGrant(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req struct {
		AgentID         string     `json:"agent_id"         binding:"required"`
		CredentialID    string     `json:"credential_id"    binding:"required"`
		PermissionLevel string     `json:"permission_level"`
		Scopes          []string   `json:"scopes"`
		ExpiresAt       *time.Time `json:"expires_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "agent_id and credential_id are required",
		})
		return
	}

	level := models.PermissionLevel(req.PermissionLevel)
	if req.PermissionLevel == "" {
		level = models.PermissionReadOnly
	}

	grant, err := h.grantService.CreateGrant(
		c, userID, req.AgentID, req.CredentialID, level, req.Scopes, req.ExpiresAt,
	)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"grant": grant,
	})
}

// RevokeGrant handles DELETE /api/grants/:id
func (h *GrantHandler) RevokeGrant(c *gin.Context) {
	userID := middleware.GetUserID(c)

	if err := h.grantService.RevokeGrant(c, userID, c.Param("id")); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "revoked",
	})
}

// ListGrantsForCredential handles GET /api/connections/:id/grants
func (h *GrantHandler) ListGrantsForCredential(c *gin.Context) {
	userID := middleware.GetUserID(c)

	grants, err := h.grantService.ListGrantsForCredential(userID, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"grants": grants,
	})
}

// ListGrantsForAgent handles GET /api/agents/:id/grants
func (h *GrantHandler) ListGrantsForAgent(c *gin.Context) {
	userID := middleware.GetUserID(c)
	agentID := c.Param("id")

	// Ownership check: the agent must belong to the requesting user.
	agents, err := h.agentService.ListAgents(userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	owned := false
	for _, a := range agents {
		if a.ID == agentID {
			owned = true
			break
		}
	}
	if !owned {
		respondServiceError(c, services.ErrAgentNotFound)
		return
	}

	grants, err := h.grantService.ListGrantsForAgent(agentID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"grants": grants,
	})
}
