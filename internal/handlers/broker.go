package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/credgate/credgate/internal/middleware"
	"github.com/credgate/credgate/internal/services"
)

// BrokerHandler is the agent-facing surface. Agents never see vault handles
// or other users' resources; they exchange a credential ID and scope for a
// short-lived plaintext secret.
type BrokerHandler struct {
	brokerService *services.BrokerService
	grantService  *services.GrantService
}

// NewBrokerHandler creates a new broker handler
func NewBrokerHandler(bs *services.BrokerService, gs *services.GrantService) *BrokerHandler {
	return &BrokerHandler{brokerService: bs, grantService: gs}
}

// RequestSecret handles POST /broker/secrets
func (h *BrokerHandler) RequestSecret(c *gin.Context) {
	agent := middleware.GetAgent(c)
	if agent == nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "unauthorized",
			"error_description": "Agent authentication required",
		})
		return
	}

	var req struct {
		CredentialID string `json:"credential_id" binding:"required"`
		Scope        string `json:"scope" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "credential_id and scope are required",
		})
		return
	}

	resp, err := h.brokerService.RequestSecret(c, agent, req.CredentialID, req.Scope)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ListGrants handles GET /broker/grants: an agent can discover which
// credentials it may request without learning anything else about them.
func (h *BrokerHandler) ListGrants(c *gin.Context) {
	agent := middleware.GetAgent(c)
	if agent == nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "unauthorized",
			"error_description": "Agent authentication required",
		})
		return
	}

	grants, err := h.grantService.ListGrantsForAgent(agent.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	// Only usable grants are visible to the agent.
	visible := make([]gin.H, 0, len(grants))
	for _, g := range grants {
		if !g.IsUsable() {
			continue
		}
		visible = append(visible, gin.H{
			"credential_id":    g.CredentialID,
			"permission_level": g.PermissionLevel,
			"scopes":           g.ScopeList(),
			"expires_at":       g.ExpiresAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"grants": visible,
	})
}
