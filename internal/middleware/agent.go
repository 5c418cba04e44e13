package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/credgate/credgate/internal/models"
	"github.com/credgate/credgate/internal/services"
	"github.com/credgate/credgate/internal/util"
)

// RequireAgent authenticates broker requests. Agents present a bearer token
// of the form "<agent id>.<secret>"; the secret is verified against its
// stored PBKDF2 hash.
func RequireAgent(agents *services.AgentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":             "unauthorized",
				"error_description": "Agent bearer token required",
			})
			c.Abort()
			return
		}

		agent, err := agents.AuthenticateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":             "unauthorized",
				"error_description": "Invalid agent token",
			})
			c.Abort()
			return
		}

		c.Set(util.ContextKeyAgent, agent)
		c.Next()
	}
}

// GetAgent returns the authenticated agent set by RequireAgent
func GetAgent(c *gin.Context) *models.Agent {
	if v, exists := c.Get(util.ContextKeyAgent); exists {
		if agent, ok := v.(*models.Agent); ok {
			return agent
		}
	}
	return nil
}
