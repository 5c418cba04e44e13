package util

import (
	"context"

	"github.com/gin-gonic/gin"
)

// Context keys shared between middleware and services
const (
	ContextKeyClientIP = "client_ip"
	ContextKeyUserID   = "user_id"
	ContextKeyAgent    = "agent"
)

// IPMiddleware extracts client IP and stores it in the context
func IPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Gin's ClientIP() handles X-Forwarded-For and other headers
		c.Set(ContextKeyClientIP, c.ClientIP())
		c.Next()
	}
}

// GetIPFromContext extracts the client IP address from the context
func GetIPFromContext(ctx context.Context) string {
	// Try to extract from Gin context first
	if ginCtx, ok := ctx.(*gin.Context); ok {
		return ginCtx.ClientIP()
	}

	// Try to get from context value (set by middleware)
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}

	return ""
}

// GetUserIDFromContext extracts the authenticated user ID from the context
func GetUserIDFromContext(ctx context.Context) string {
	if ginCtx, ok := ctx.(*gin.Context); ok {
		if id, exists := ginCtx.Get(ContextKeyUserID); exists {
			if userID, ok := id.(string); ok {
				return userID
			}
		}
		return ""
	}

	if userID, ok := ctx.Value(ContextKeyUserID).(string); ok {
		return userID
	}

	return ""
}
