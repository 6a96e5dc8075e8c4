package billing

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/myprojectr/backend/internal/models"
	"github.com/myprojectr/backend/pkg/response"
)

// TenantUpdater applies billing-driven tenant patches.
type TenantUpdater interface {
	Update(ctx context.Context, tenantID string, patch models.TenantPatch) error
}

// Handler receives Stripe webhooks and keeps tenant billing status in
// sync with the subscription lifecycle.
type Handler struct {
	client  *Client
	tenants TenantUpdater
	logger  *zap.Logger
}

// NewHandler creates a billing webhook handler.
func NewHandler(client *Client, tenants TenantUpdater, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{client: client, tenants: tenants, logger: logger}
}

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			Customer string            `json:"customer"`
			Status   string            `json:"status"`
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// Webhook handles POST /webhooks/stripe. Signature is verified before
// the payload is trusted.
func (h *Handler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		response.BadRequest(c, "failed to read body")
		return
	}
	if err := h.client.VerifyWebhookSignature(payload, c.GetHeader("Stripe-Signature"), time.Now()); err != nil {
		h.logger.Warn("webhook signature rejected", zap.Error(err))
		response.Unauthorized(c, "invalid signature")
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		response.BadRequest(c, "invalid payload")
		return
	}

	tenantID := event.Data.Object.Metadata["tenant_id"]
	if tenantID == "" {
		// Events for customers not provisioned through onboarding.
		h.logger.Debug("webhook without tenant metadata", zap.String("event", event.Type))
		response.OK(c, gin.H{"received": true})
		return
	}

	var status string
	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		switch event.Data.Object.Status {
		case "active":
			status = models.BillingStatusActive
		case "trialing":
			status = models.BillingStatusTrial
		case "past_due", "unpaid":
			status = models.BillingStatusPastDue
		case "canceled":
			status = models.BillingStatusCanceled
		}
	case "customer.subscription.deleted":
		status = models.BillingStatusCanceled
	case "invoice.payment_failed":
		status = models.BillingStatusPastDue
	}
	if status == "" {
		response.OK(c, gin.H{"received": true})
		return
	}

	err = h.tenants.Update(c.Request.Context(), tenantID, models.TenantPatch{BillingStatus: &status})
	if err != nil {
		h.logger.Error("failed to apply billing status",
			zap.String("tenant_id", tenantID),
			zap.String("event", event.Type),
			zap.Error(err))
		response.Internal(c, "failed to apply event")
		return
	}
	h.logger.Info("billing status updated",
		zap.String("tenant_id", tenantID),
		zap.String("status", status),
		zap.String("event", event.Type))
	response.OK(c, gin.H{"received": true})
}
