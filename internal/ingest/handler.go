package ingest

import (
	"github.com/gin-gonic/gin"

	"github.com/myprojectr/backend/pkg/response"
)

// Handler exposes the inbound email webhook.
type Handler struct {
	processor *Processor
}

// NewHandler creates an ingest webhook handler.
func NewHandler(processor *Processor) *Handler {
	return &Handler{processor: processor}
}

// InboundRequest is the body for POST /webhooks/inbound-email, posted by
// the mail receiver with one record per stored message.
type InboundRequest struct {
	Records []Notification `json:"records" binding:"required"`
}

// Inbound handles POST /webhooks/inbound-email. Returns 200 when every
// record processed, 207 on partial failure.
func (h *Handler) Inbound(c *gin.Context) {
	var body InboundRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "records required")
		return
	}
	processed, failed := h.processor.ProcessBatch(c.Request.Context(), body.Records)
	result := gin.H{"processed": processed, "failed": failed}
	if failed > 0 {
		response.MultiStatus(c, result)
		return
	}
	response.OK(c, result)
}
