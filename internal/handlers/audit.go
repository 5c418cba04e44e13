package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/credgate/credgate/internal/middleware"
	"github.com/credgate/credgate/internal/models"
	"github.com/credgate/credgate/internal/services"
	"github.com/credgate/credgate/internal/store"
)

// AuditHandler exposes the read-only audit query surface. Users see only
// events where they are the actor or the resource owner; that scoping is
// applied here by forcing the actor filter.
type AuditHandler struct {
	auditService *services.AuditService
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(as *services.AuditService) *AuditHandler {
	return &AuditHandler{auditService: as}
}

// ListAuditLogs handles GET /api/audit-logs
func (h *AuditHandler) ListAuditLogs(c *gin.Context) {
	userID := middleware.GetUserID(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	params := store.NewPaginationParams(page, pageSize)

	filters := store.AuditLogFilters{
		// Users can only query their own trail.
		ActorUserID:  userID,
		EventType:    models.EventType(c.Query("event_type")),
		AgentID:      c.Query("agent_id"),
		CredentialID: c.Query("credential_id"),
		Severity:     models.EventSeverity(c.Query("severity")),
	}

	if successStr := c.Query("success"); successStr != "" {
		success := successStr == "true"
		filters.Success = &success
	}
	if startStr := c.Query("start_time"); startStr != "" {
		if t, err := time.Parse(time.RFC3339, startStr); err == nil {
			filters.StartTime = t
		}
	}
	if endStr := c.Query("end_time"); endStr != "" {
		if t, err := time.Parse(time.RFC3339, endStr); err == nil {
			filters.EndTime = t
		}
	}

	logs, pagination, err := h.auditService.GetAuditLogs(params, filters)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	// Viewing the audit trail is itself auditable.
	h.auditService.Log(c, services.AuditLogEntry{
		EventType:    models.EventAuditLogViewed,
		Severity:     models.SeverityInfo,
		ActorUserID:  userID,
		ResourceType: models.ResourceAuditLog,
		Action:       "audit_logs_viewed",
		Success:      true,
		Details: models.AuditDetails{
			"page":      pagination.CurrentPage,
			"page_size": pagination.PageSize,
		},
	})

	c.JSON(http.StatusOK, gin.H{
		"logs":       logs,
		"pagination": pagination,
	})
}
