package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/credgate/credgate/internal/middleware"
	"github.com/credgate/credgate/internal/provider"
	"github.com/credgate/credgate/internal/services"
)

// ConnectionHandler serves the credential connection surface: starting OAuth
// flows, receiving provider callbacks, API-key ingestion, and disconnects.
type ConnectionHandler struct {
	flowService *services.FlowService
	providers   *provider.Registry
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(fs *services.FlowService, providers *provider.Registry) *ConnectionHandler {
	return &ConnectionHandler{flowService: fs, providers: providers}
}

// ListProviders handles GET /api/providers
func (h *ConnectionHandler) ListProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"oauth_providers":   h.providers.OAuthNames(),
		"api_key_providers": h.providers.APIKeyNames(),
	})
}

// StartFlow handles POST /api/connections/oauth/:provider
// It returns the provider authorization URL the user must visit.
func (h *ConnectionHandler) StartFlow(c *gin.Context) {
	userID := middleware.GetUserID(c)
	providerName := c.Param("provider")

	var req struct {
		AgentID string   `json:"agent_id"`
		Scopes  []string `json:"scopes"`
	}
	// Body is optional; defaults apply when absent.
	_ = c.ShouldBindJSON(&req)

	authURL, err := h.flowService.BeginFlow(c, userID, providerName, req.AgentID, req.Scopes)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorization_url": authURL,
	})
}

// Callback handles GET /oauth/callback, the provider redirect target.
// This endpoint is unauthenticated: the state token is the proof that the
// callback belongs to a flow this service started.
func (h *ConnectionHandler) Callback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")

	if providerErr := c.Query("error"); providerErr != "" {
		if err := h.flowService.DenyFlow(c, state, providerErr); err != nil {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "denied",
			"reason": providerErr,
		})
		return
	}

	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "code is required",
		})
		return
	}

	cred, err := h.flowService.CompleteFlow(c, state, code)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "connected",
		"credential": cred,
	})
}

// StoreAPIKey handles POST /api/connections/api-key
func (h *ConnectionHandler) StoreAPIKey(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req struct {
		Provider string   `json:"provider"`
		Key      string   `json:"key"      binding:"required"`
		Scopes   []string `json:"scopes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "key is required",
		})
		return
	}
	if req.Provider == "" {
		req.Provider = "api_key"
	}

	cred, err := h.flowService.StoreAPIKey(c, userID, req.Provider, req.Key, req.Scopes)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"credential": cred,
	})
}

// ListConnections handles GET /api/connections
func (h *ConnectionHandler) ListConnections(c *gin.Context) {
	userID := middleware.GetUserID(c)

	creds, err := h.flowService.ListConnections(userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"connections": creds,
	})
}

// GetConnection handles GET /api/connections/:id
func (h *ConnectionHandler) GetConnection(c *gin.Context) {
	userID := middleware.GetUserID(c)

	cred, err := h.flowService.GetConnection(userID, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"credential": cred,
	})
}

// Disconnect handles DELETE /api/connections/:id
func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	userID := middleware.GetUserID(c)

	if err := h.flowService.DisconnectCredential(c, userID, c.Param("id")); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "disconnected",
	})
}
