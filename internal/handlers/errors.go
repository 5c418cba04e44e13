package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/credgate/credgate/internal/services"
)

// respondServiceError translates service sentinel errors into OAuth-style
// {error, error_description} JSON responses.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnknownProvider):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "Unknown or disabled provider",
		})
	case errors.Is(err, services.ErrInvalidOrExpiredState):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "State is invalid, expired, or already used",
		})
	case errors.Is(err, services.ErrTokenExchangeFailed):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":             "exchange_failed",
			"error_description": "Authorization code exchange failed",
		})
	case errors.Is(err, services.ErrCredentialNotFound),
		errors.Is(err, services.ErrNotOwner),
		errors.Is(err, services.ErrGrantNotFound),
		errors.Is(err, services.ErrAgentNotFound):
		// Ownership mismatches look identical to missing resources so the
		// API never confirms another user's resource IDs.
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": "Resource not found",
		})
	case errors.Is(err, services.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{
			"error":             "not_permitted",
			"error_description": "Access is not permitted",
		})
	case errors.Is(err, services.ErrScopeNotGranted):
		c.JSON(http.StatusForbidden, gin.H{
			"error":             "scope_not_granted",
			"error_description": "Requested scope exceeds the grant",
		})
	case errors.Is(err, services.ErrCredentialRevoked):
		c.JSON(http.StatusForbidden, gin.H{
			"error":             "credential_revoked",
			"error_description": "Credential has been revoked",
		})
	case errors.Is(err, services.ErrCredentialNeedsReauth):
		c.JSON(http.StatusConflict, gin.H{
			"error":             "credential_needs_reauth",
			"error_description": "Credential requires re-authorization by its owner",
		})
	case errors.Is(err, services.ErrVaultUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":             "vault_unavailable",
			"error_description": "Secret vault is unavailable",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Internal server error",
		})
	}
}
