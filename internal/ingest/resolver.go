package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/myprojectr/backend/internal/mail"
	"github.com/myprojectr/backend/internal/models"
	"github.com/myprojectr/backend/internal/projects"
)

// ProjectStore is the slice of the project store the resolver needs.
type ProjectStore interface {
	Get(ctx context.Context, tenantID, projectID string) (*models.Project, error)
	ListByClientEmail(ctx context.Context, clientEmail string) ([]models.Project, error)
	Create(ctx context.Context, tenantID string, attrs projects.CreateAttrs) (string, error)
}

// Resolver maps an inbound message plus extracted hints to an existing
// or newly-created project.
type Resolver struct {
	projects ProjectStore
	logger   *zap.Logger
}

// NewResolver creates a project resolver.
func NewResolver(store ProjectStore, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{projects: store, logger: logger}
}

// Resolve determines the project a message belongs to. The order is a
// deliberate conservative ranking and must not be reordered:
//
//  1. explicit project hint in the recipient address,
//  2. project id claimed by the extraction,
//  3. the single active project for the sender's client email
//     (zero or several active candidates fall through — never guess),
//  4. create a new project.
//
// Returns the project id and whether a new project was created.
func (r *Resolver) Resolve(ctx context.Context, tenantID string, meta mail.Metadata, extracted *models.ExtractedData) (string, bool, error) {
	if hint := meta.ProjectIDHint; hint != "" {
		project, err := r.projects.Get(ctx, tenantID, hint)
		if err != nil {
			return "", false, err
		}
		if project != nil {
			r.logger.Info("using project id from recipient", zap.String("project_id", hint))
			return hint, false, nil
		}
		r.logger.Warn("hinted project not found, continuing resolution", zap.String("project_id", hint))
	}

	if extracted != nil && extracted.ProjectID != "" {
		project, err := r.projects.Get(ctx, tenantID, extracted.ProjectID)
		if err != nil {
			return "", false, err
		}
		if project != nil {
			r.logger.Info("using extracted project id", zap.String("project_id", extracted.ProjectID))
			return extracted.ProjectID, false, nil
		}
	}

	candidates, err := r.projects.ListByClientEmail(ctx, meta.SenderEmail)
	if err != nil {
		return "", false, err
	}
	var active []models.Project
	for _, p := range candidates {
		// The client-email index is cross-tenant; only this tenant's
		// projects are candidates.
		if p.TenantID == tenantID && p.Status == models.ProjectStatusActive {
			active = append(active, p)
		}
	}
	if len(active) == 1 {
		r.logger.Info("using existing active project", zap.String("project_id", active[0].ProjectID))
		return active[0].ProjectID, false, nil
	}

	// Two messages from a brand-new client racing here can both create a
	// project: at-least-one semantics, reconciliation is downstream. A
	// conditional create keyed on (tenant, client_email, active) would
	// close the race but is not part of the contract.
	attrs := projects.CreateAttrs{
		ClientEmail: meta.SenderEmail,
		ClientName:  meta.From,
	}
	if attrs.ClientName == "" {
		attrs.ClientName = meta.SenderEmail
	}
	if extracted != nil {
		attrs.ProjectName = extracted.ProjectName
		attrs.ProjectAddress = extracted.ProjectAddress
		attrs.PeopleMentioned = extracted.PeopleMentioned
	}
	projectID, err := r.projects.Create(ctx, tenantID, attrs)
	if err != nil {
		return "", false, err
	}
	r.logger.Info("created new project", zap.String("project_id", projectID), zap.String("client_email", meta.SenderEmail))
	return projectID, true, nil
}
