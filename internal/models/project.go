package models

import "fmt"

// Project statuses. "deleted" is a status transition, never a hard delete.
const (
	ProjectStatusActive    = "active"
	ProjectStatusCompleted = "completed"
	ProjectStatusOnHold    = "on-hold"
	ProjectStatusDeleted   = "deleted"
)

// PlaceholderProjectName is used until the model infers a real name.
const PlaceholderProjectName = "Unnamed Project"

// Project is a tracked construction job belonging to one tenant.
// The storage sort key is ProjectID + "#" + CreatedAt so an existing
// project can be updated without a separate timestamp lookup; callers
// resolve it by prefix match on ProjectID.
type Project struct {
	TenantID           string   `json:"tenant_id" dynamodbav:"tenant_id"`
	ProjectID          string   `json:"project_id" dynamodbav:"project_id"`
	ProjectIDCreatedAt string   `json:"-" dynamodbav:"project_id_created_at"`
	ClientEmail        string   `json:"client_email" dynamodbav:"client_email"`
	ClientName         string   `json:"client_name,omitempty" dynamodbav:"client_name,omitempty"`
	ProjectName        string   `json:"project_name" dynamodbav:"project_name"`
	ProjectAddress     string   `json:"project_address,omitempty" dynamodbav:"project_address,omitempty"`
	Status             string   `json:"status" dynamodbav:"status"`
	PeopleMentioned    []string `json:"people_mentioned,omitempty" dynamodbav:"people_mentioned,omitempty"`
	CreatedAt          int64    `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt          int64    `json:"updated_at" dynamodbav:"updated_at"`
}

// ProjectSortKey composes the sort key stored in project_id_created_at.
func ProjectSortKey(projectID string, createdAt int64) string {
	return fmt.Sprintf("%s#%d", projectID, createdAt)
}

// ProjectPatch enumerates the mutable project fields. Ownership
// (tenant_id) and identity (project_id) cannot be patched.
type ProjectPatch struct {
	ProjectName     *string
	ProjectAddress  *string
	ClientName      *string
	Status          *string
	PeopleMentioned []string
}

// IsZero reports whether the patch carries no changes.
func (p ProjectPatch) IsZero() bool {
	return p.ProjectName == nil && p.ProjectAddress == nil && p.ClientName == nil &&
		p.Status == nil && p.PeopleMentioned == nil
}
