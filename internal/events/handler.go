package events

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/myprojectr/backend/internal/middleware"
	"github.com/myprojectr/backend/pkg/response"
)

const defaultLimit = 50

// Handler exposes read-only event log endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates an events handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// ListByProject handles GET /projects/:id/events. Newest first.
func (h *Handler) ListByProject(c *gin.Context) {
	items, err := h.repo.ListByProject(c.Request.Context(), middleware.TenantID(c), c.Param("id"), parseLimit(c))
	if err != nil {
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, gin.H{"events": items, "count": len(items)})
}

// ListByTenant handles GET /events. Tenant-wide activity feed.
func (h *Handler) ListByTenant(c *gin.Context) {
	items, err := h.repo.ListByTenant(c.Request.Context(), middleware.TenantID(c), parseLimit(c))
	if err != nil {
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, gin.H{"events": items, "count": len(items)})
}

func parseLimit(c *gin.Context) int32 {
	n, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || n <= 0 || n > 500 {
		return defaultLimit
	}
	return int32(n)
}
