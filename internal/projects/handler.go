package projects

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/myprojectr/backend/internal/apperr"
	"github.com/myprojectr/backend/internal/middleware"
	"github.com/myprojectr/backend/internal/models"
	"github.com/myprojectr/backend/pkg/queue"
	"github.com/myprojectr/backend/pkg/response"
	"github.com/myprojectr/backend/pkg/storage"
)

// Handler exposes project endpoints. Estimate requests are queued for
// the worker rather than generated inline.
type Handler struct {
	repo   *Repository
	queue  *queue.Queue
	store  *storage.S3
	logger *zap.Logger
}

// NewHandler creates a projects handler.
func NewHandler(repo *Repository, q *queue.Queue, store *storage.S3, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, queue: q, store: store, logger: logger}
}

// List handles GET /projects. Supports ?status= filtering.
func (h *Handler) List(c *gin.Context) {
	status := c.Query("status")
	items, err := h.repo.ListByTenant(c.Request.Context(), middleware.TenantID(c), status)
	if err != nil {
		response.Internal(c, "failed to list projects")
		return
	}
	response.OK(c, gin.H{"projects": items, "count": len(items)})
}

// Get handles GET /projects/:id.
func (h *Handler) Get(c *gin.Context) {
	project, err := h.repo.Get(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		response.Internal(c, "failed to load project")
		return
	}
	if project == nil {
		response.NotFound(c, "project not found")
		return
	}
	response.OK(c, project)
}

// UpdateRequest is the body for PATCH /projects/:id.
type UpdateRequest struct {
	ProjectName     *string  `json:"project_name"`
	ProjectAddress  *string  `json:"project_address"`
	ClientName      *string  `json:"client_name"`
	Status          *string  `json:"status"`
	PeopleMentioned []string `json:"people_mentioned"`
}

// Update handles PATCH /projects/:id.
func (h *Handler) Update(c *gin.Context) {
	var body UpdateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid body")
		return
	}
	if body.Status != nil {
		switch *body.Status {
		case models.ProjectStatusActive, models.ProjectStatusCompleted, models.ProjectStatusOnHold, models.ProjectStatusDeleted:
		default:
			response.BadRequest(c, "invalid status")
			return
		}
	}
	patch := models.ProjectPatch{
		ProjectName:     body.ProjectName,
		ProjectAddress:  body.ProjectAddress,
		ClientName:      body.ClientName,
		Status:          body.Status,
		PeopleMentioned: body.PeopleMentioned,
	}
	if patch.IsZero() {
		response.BadRequest(c, "no fields to update")
		return
	}
	err := h.repo.Update(c.Request.Context(), middleware.TenantID(c), c.Param("id"), patch)
	if errors.Is(err, apperr.ErrNotFound) {
		response.NotFound(c, "project not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to update project")
		return
	}
	response.OK(c, gin.H{"updated": true})
}

// EstimateRequest is the body for POST /projects/:id/estimate.
type EstimateRequest struct {
	DocumentKeys []string `json:"document_keys"`
	ProjectType  string   `json:"project_type"`
	Trade        string   `json:"trade"`
}

// RequestEstimate handles POST /projects/:id/estimate. The job is
// queued and the estimate lands in the event log when the worker
// finishes.
func (h *Handler) RequestEstimate(c *gin.Context) {
	tenantID := middleware.TenantID(c)
	projectID := c.Param("id")

	var body EstimateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid body")
		return
	}

	project, err := h.repo.Get(c.Request.Context(), tenantID, projectID)
	if err != nil {
		response.Internal(c, "failed to load project")
		return
	}
	if project == nil {
		response.NotFound(c, "project not found")
		return
	}

	err = h.queue.EnqueueEstimate(c.Request.Context(), queue.EstimatePayload{
		TenantID:     tenantID,
		ProjectID:    projectID,
		DocumentKeys: body.DocumentKeys,
		ProjectType:  body.ProjectType,
		Trade:        body.Trade,
	})
	if err != nil {
		h.logger.Error("failed to enqueue estimate job", zap.String("project_id", projectID), zap.Error(err))
		response.Internal(c, "failed to queue estimate")
		return
	}
	response.Accepted(c, gin.H{"project_id": projectID, "queued": true})
}

// AttachmentURL handles GET /projects/:id/attachments/url?key=.
// Returns a short-lived download link for a stored attachment.
func (h *Handler) AttachmentURL(c *gin.Context) {
	tenantID := middleware.TenantID(c)
	projectID := c.Param("id")
	key := c.Query("key")
	if key == "" || strings.Contains(key, "..") {
		response.BadRequest(c, "invalid key")
		return
	}

	project, err := h.repo.Get(c.Request.Context(), tenantID, projectID)
	if err != nil {
		response.Internal(c, "failed to load project")
		return
	}
	if project == nil {
		response.NotFound(c, "project not found")
		return
	}

	url, err := h.store.PresignedDownloadURL(c.Request.Context(), key)
	if err != nil {
		h.logger.Error("failed to presign attachment", zap.String("key", key), zap.Error(err))
		response.Internal(c, "failed to generate download url")
		return
	}
	response.OK(c, gin.H{
		"url":        url,
		"expires_in": int(h.store.PresignExpire().Seconds()),
	})
}
