package usage

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/myprojectr/backend/internal/middleware"
	"github.com/myprojectr/backend/pkg/response"
)

// Handler exposes usage ledger endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a usage handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Summary handles GET /usage/summary?days=30.
func (h *Handler) Summary(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days <= 0 || days > 90 {
		response.BadRequest(c, "days must be between 1 and 90")
		return
	}
	summary, err := h.repo.Summary(c.Request.Context(), middleware.TenantID(c), days)
	if err != nil {
		response.Internal(c, "failed to summarize usage")
		return
	}
	response.OK(c, summary)
}

// ListByDate handles GET /usage?date=YYYY-MM-DD. Defaults to today.
func (h *Handler) ListByDate(c *gin.Context) {
	date := c.DefaultQuery("date", time.Now().UTC().Format("2006-01-02"))
	if _, err := time.Parse("2006-01-02", date); err != nil {
		response.BadRequest(c, "date must be YYYY-MM-DD")
		return
	}
	records, err := h.repo.ListByDate(c.Request.Context(), middleware.TenantID(c), date)
	if err != nil {
		response.Internal(c, "failed to list usage")
		return
	}
	response.OK(c, gin.H{"records": records, "count": len(records)})
}
