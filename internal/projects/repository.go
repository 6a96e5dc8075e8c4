// Package projects implements the tenant-scoped project store over DynamoDB.
package projects

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/myprojectr/backend/internal/apperr"
	"github.com/myprojectr/backend/internal/models"
	"github.com/myprojectr/backend/pkg/dynamo"
)

const (
	indexClientEmail  = "client_email-index"
	indexTenantStatus = "tenant_id-status-index"
)

// CreateAttrs are the inputs for project creation.
type CreateAttrs struct {
	ClientEmail     string
	ClientName      string
	ProjectName     string
	ProjectAddress  string
	PeopleMentioned []string
}

// Repository persists projects.
type Repository struct {
	db     dynamo.API
	table  string
	logger *zap.Logger
}

// NewRepository creates a project repository.
func NewRepository(db dynamo.API, table string, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: db, table: table, logger: logger}
}

// Create persists a new project under the tenant and returns its id.
// Status defaults to active and created_at == updated_at.
func (r *Repository) Create(ctx context.Context, tenantID string, attrs CreateAttrs) (string, error) {
	if tenantID == "" {
		return "", apperr.Validation("tenant_id is required")
	}
	now := time.Now().UnixMilli()
	name := attrs.ProjectName
	if name == "" {
		name = models.PlaceholderProjectName
	}
	project := models.Project{
		TenantID:        tenantID,
		ProjectID:       models.NewProjectID(),
		ClientEmail:     attrs.ClientEmail,
		ClientName:      attrs.ClientName,
		ProjectName:     name,
		ProjectAddress:  attrs.ProjectAddress,
		Status:          models.ProjectStatusActive,
		PeopleMentioned: attrs.PeopleMentioned,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	project.ProjectIDCreatedAt = models.ProjectSortKey(project.ProjectID, now)

	item, err := attributevalue.MarshalMap(project)
	if err != nil {
		return "", err
	}
	r.logger.Info("creating project", zap.String("project_id", project.ProjectID), zap.String("tenant_id", tenantID))
	if _, err := r.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		r.logger.Error("create project failed", zap.Error(err), zap.String("project_id", project.ProjectID))
		return "", err
	}
	return project.ProjectID, nil
}

// Get resolves the project by prefix match on the composite sort key,
// since callers do not know the creation-timestamp suffix. Returns nil
// when absent.
func (r *Repository) Get(ctx context.Context, tenantID, projectID string) (*models.Project, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("tenant_id").Equal(expression.Value(tenantID)).
			And(expression.Key("project_id_created_at").BeginsWith(projectID + "#"))).
		Build()
	if err != nil {
		return nil, err
	}
	out, err := r.db.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		r.logger.Error("get project failed", zap.Error(err), zap.String("project_id", projectID))
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var project models.Project
	if err := attributevalue.UnmarshalMap(out.Items[0], &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// ListByTenant returns all projects for a tenant, optionally filtered by
// status via the tenant/status index. Pass "" for no filter.
func (r *Repository) ListByTenant(ctx context.Context, tenantID, status string) ([]models.Project, error) {
	builder := expression.NewBuilder()
	input := &dynamodb.QueryInput{TableName: aws.String(r.table)}
	if status != "" {
		builder = builder.WithKeyCondition(expression.Key("tenant_id").Equal(expression.Value(tenantID)).
			And(expression.Key("status").Equal(expression.Value(status))))
		input.IndexName = aws.String(indexTenantStatus)
	} else {
		builder = builder.WithKeyCondition(expression.Key("tenant_id").Equal(expression.Value(tenantID)))
	}
	expr, err := builder.Build()
	if err != nil {
		return nil, err
	}
	input.KeyConditionExpression = expr.KeyCondition()
	input.ExpressionAttributeNames = expr.Names()
	input.ExpressionAttributeValues = expr.Values()

	out, err := r.db.Query(ctx, input)
	if err != nil {
		r.logger.Error("list projects failed", zap.Error(err), zap.String("tenant_id", tenantID))
		return nil, err
	}
	return unmarshalProjects(out.Items)
}

// ListByClientEmail returns all projects for a client email address.
// This is a cross-tenant lookup used only by resolution and migration
// tooling; callers own the access control.
func (r *Repository) ListByClientEmail(ctx context.Context, clientEmail string) ([]models.Project, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("client_email").Equal(expression.Value(clientEmail))).
		Build()
	if err != nil {
		return nil, err
	}
	out, err := r.db.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		IndexName:                 aws.String(indexClientEmail),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		r.logger.Error("list projects by client failed", zap.Error(err), zap.String("client_email", clientEmail))
		return nil, err
	}
	return unmarshalProjects(out.Items)
}

// Update re-reads the project to recover its exact sort key, then merges
// the patch and refreshes updated_at. Returns apperr.ErrNotFound when the
// project does not exist; callers must not update speculatively.
//
// This is read-then-write: two concurrent merges race and the last
// writer wins. Patches set absolute values only, so retries are safe.
func (r *Repository) Update(ctx context.Context, tenantID, projectID string, patch models.ProjectPatch) error {
	project, err := r.Get(ctx, tenantID, projectID)
	if err != nil {
		return err
	}
	if project == nil {
		return apperr.NotFound("project %s in tenant %s", projectID, tenantID)
	}

	update := expression.Set(expression.Name("updated_at"), expression.Value(time.Now().UnixMilli()))
	if patch.ProjectName != nil {
		update = update.Set(expression.Name("project_name"), expression.Value(*patch.ProjectName))
	}
	if patch.ProjectAddress != nil {
		update = update.Set(expression.Name("project_address"), expression.Value(*patch.ProjectAddress))
	}
	if patch.ClientName != nil {
		update = update.Set(expression.Name("client_name"), expression.Value(*patch.ClientName))
	}
	if patch.Status != nil {
		update = update.Set(expression.Name("status"), expression.Value(*patch.Status))
	}
	if patch.PeopleMentioned != nil {
		update = update.Set(expression.Name("people_mentioned"), expression.Value(patch.PeopleMentioned))
	}

	expr, err := expression.NewBuilder().WithUpdate(update).Build()
	if err != nil {
		return err
	}

	r.logger.Info("updating project", zap.String("project_id", projectID), zap.String("tenant_id", tenantID))
	_, err = r.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"tenant_id":             &types.AttributeValueMemberS{Value: tenantID},
			"project_id_created_at": &types.AttributeValueMemberS{Value: project.ProjectIDCreatedAt},
		},
		UpdateExpression:          expr.Update(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		r.logger.Error("update project failed", zap.Error(err), zap.String("project_id", projectID))
		return err
	}
	return nil
}

func unmarshalProjects(items []map[string]types.AttributeValue) ([]models.Project, error) {
	projects := make([]models.Project, 0, len(items))
	for _, item := range items {
		var p models.Project
		if err := attributevalue.UnmarshalMap(item, &p); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, nil
}
