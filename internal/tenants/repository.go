// Package tenants implements the tenant directory over DynamoDB.
package tenants

import (
	"context"
	"errors"
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
	indexEmailAddress = "email_address-index"
	indexSubdomain    = "subdomain-index"
)

// CreateAttrs are the inputs for tenant creation. EmailAddress and
// Subdomain are required.
type CreateAttrs struct {
	Name          string
	EmailAddress  string
	Subdomain     string
	Tier          string
	BillingStatus string
	TrialEndsAt   int64
}

// Repository persists tenants.
type Repository struct {
	db     dynamo.API
	table  string
	logger *zap.Logger
}

// NewRepository creates a tenant repository.
func NewRepository(db dynamo.API, table string, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: db, table: table, logger: logger}
}

// Create persists a new tenant and returns its generated id.
//
// Email/subdomain uniqueness is check-then-create: callers must look both
// up first. Two concurrent onboardings for the same address can still
// race through the window between check and put.
func (r *Repository) Create(ctx context.Context, attrs CreateAttrs) (string, error) {
	if attrs.EmailAddress == "" {
		return "", apperr.Validation("email_address is required")
	}
	if attrs.Subdomain == "" {
		return "", apperr.Validation("subdomain is required")
	}

	tier := attrs.Tier
	if tier == "" {
		tier = models.TierStarter
	}
	billingStatus := attrs.BillingStatus
	if billingStatus == "" {
		billingStatus = models.BillingStatusActive
	}
	quota, ok := models.TierQuotas[tier]
	if !ok {
		return "", apperr.Validation("unknown subscription tier %q", tier)
	}

	now := time.Now().UnixMilli()
	tenant := models.Tenant{
		TenantID:          models.NewTenantID(),
		Name:              attrs.Name,
		EmailAddress:      attrs.EmailAddress,
		Subdomain:         attrs.Subdomain,
		SubscriptionTier:  tier,
		BillingStatus:     billingStatus,
		EmailLimit:        quota.EmailLimit,
		ProjectLimit:      quota.ProjectLimit,
		UserLimit:         quota.UserLimit,
		MonthlyAPIBudget:  quota.APIBudget,
		CurrentMonthSpend: 0,
		TrialEndsAt:       attrs.TrialEndsAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	item, err := attributevalue.MarshalMap(tenant)
	if err != nil {
		return "", err
	}
	r.logger.Info("creating tenant", zap.String("tenant_id", tenant.TenantID), zap.String("subdomain", tenant.Subdomain))
	if _, err := r.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		r.logger.Error("create tenant failed", zap.Error(err), zap.String("tenant_id", tenant.TenantID))
		return "", err
	}
	return tenant.TenantID, nil
}

// GetByID returns a tenant by id, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, tenantID string) (*models.Tenant, error) {
	out, err := r.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"tenant_id": &types.AttributeValueMemberS{Value: tenantID},
		},
	})
	if err != nil {
		r.logger.Error("get tenant failed", zap.Error(err), zap.String("tenant_id", tenantID))
		return nil, err
	}
	if out.Item == nil {
		return nil, nil
	}
	var tenant models.Tenant
	if err := attributevalue.UnmarshalMap(out.Item, &tenant); err != nil {
		return nil, err
	}
	return &tenant, nil
}

// GetByEmail returns the tenant owning the inbound email address, or nil
// when absent.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	return r.queryOne(ctx, indexEmailAddress, "email_address", email)
}

// GetBySubdomain returns the tenant owning the subdomain, or nil when absent.
func (r *Repository) GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	return r.queryOne(ctx, indexSubdomain, "subdomain", subdomain)
}

func (r *Repository) queryOne(ctx context.Context, index, key, value string) (*models.Tenant, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key(key).Equal(expression.Value(value))).
		Build()
	if err != nil {
		return nil, err
	}
	out, err := r.db.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		r.logger.Error("tenant lookup failed", zap.Error(err), zap.String("index", index))
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var tenant models.Tenant
	if err := attributevalue.UnmarshalMap(out.Items[0], &tenant); err != nil {
		return nil, err
	}
	return &tenant, nil
}

// Update merges the patch into the tenant and refreshes updated_at.
// Returns apperr.ErrNotFound when the tenant does not exist.
func (r *Repository) Update(ctx context.Context, tenantID string, patch models.TenantPatch) error {
	update := expression.Set(expression.Name("updated_at"), expression.Value(time.Now().UnixMilli()))
	if patch.Name != nil {
		update = update.Set(expression.Name("tenant_name"), expression.Value(*patch.Name))
	}
	if patch.SubscriptionTier != nil {
		update = update.Set(expression.Name("subscription_tier"), expression.Value(*patch.SubscriptionTier))
	}
	if patch.BillingStatus != nil {
		update = update.Set(expression.Name("billing_status"), expression.Value(*patch.BillingStatus))
	}
	if patch.EmailLimit != nil {
		update = update.Set(expression.Name("email_limit"), expression.Value(*patch.EmailLimit))
	}
	if patch.ProjectLimit != nil {
		update = update.Set(expression.Name("project_limit"), expression.Value(*patch.ProjectLimit))
	}
	if patch.UserLimit != nil {
		update = update.Set(expression.Name("user_limit"), expression.Value(*patch.UserLimit))
	}
	if patch.MonthlyAPIBudget != nil {
		update = update.Set(expression.Name("monthly_api_budget"), expression.Value(*patch.MonthlyAPIBudget))
	}
	if patch.CurrentMonthSpend != nil {
		update = update.Set(expression.Name("current_month_spend"), expression.Value(*patch.CurrentMonthSpend))
	}
	if patch.BillingCustomerID != nil {
		update = update.Set(expression.Name("billing_customer_id"), expression.Value(*patch.BillingCustomerID))
	}
	if patch.TrialEndsAt != nil {
		update = update.Set(expression.Name("trial_ends_at"), expression.Value(*patch.TrialEndsAt))
	}

	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name("tenant_id"))).
		Build()
	if err != nil {
		return err
	}

	r.logger.Info("updating tenant", zap.String("tenant_id", tenantID))
	_, err = r.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.table),
		Key: map[string]types.AttributeValue{
			"tenant_id": &types.AttributeValueMemberS{Value: tenantID},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return apperr.NotFound("tenant %s", tenantID)
		}
		r.logger.Error("update tenant failed", zap.Error(err), zap.String("tenant_id", tenantID))
		return err
	}
	return nil
}
