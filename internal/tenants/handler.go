package tenants

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/myprojectr/backend/internal/apperr"
	"github.com/myprojectr/backend/internal/middleware"
	"github.com/myprojectr/backend/internal/models"
	"github.com/myprojectr/backend/pkg/response"
)

// Handler exposes tenant directory endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a tenants handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Get handles GET /tenant. Returns the caller's tenant.
func (h *Handler) Get(c *gin.Context) {
	tenant, err := h.repo.GetByID(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		response.Internal(c, "failed to load tenant")
		return
	}
	if tenant == nil {
		response.NotFound(c, "tenant not found")
		return
	}
	response.OK(c, tenant)
}

// UpdateRequest is the body for PATCH /tenant. Identity fields are not
// accepted; administrative flows only.
type UpdateRequest struct {
	Name             *string  `json:"name"`
	SubscriptionTier *string  `json:"subscription_tier"`
	BillingStatus    *string  `json:"billing_status"`
	MonthlyAPIBudget *float64 `json:"monthly_api_budget"`
}

// Update handles PATCH /tenant (admin role).
func (h *Handler) Update(c *gin.Context) {
	var body UpdateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid body")
		return
	}
	patch := models.TenantPatch{
		Name:             body.Name,
		SubscriptionTier: body.SubscriptionTier,
		BillingStatus:    body.BillingStatus,
		MonthlyAPIBudget: body.MonthlyAPIBudget,
	}
	if patch.IsZero() {
		response.BadRequest(c, "no fields to update")
		return
	}
	err := h.repo.Update(c.Request.Context(), middleware.TenantID(c), patch)
	if errors.Is(err, apperr.ErrNotFound) {
		response.NotFound(c, "tenant not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to update tenant")
		return
	}
	response.OK(c, gin.H{"updated": true})
}
