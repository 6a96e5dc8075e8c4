// Package events implements the append-only project event log over DynamoDB.
package events

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/myprojectr/backend/internal/models"
	"github.com/myprojectr/backend/pkg/dynamo"
)

const indexTenant = "tenant_id-index"

// Repository appends and reads project events. Events are pure inserts
// with generated ids; nothing here mutates or removes prior events.
type Repository struct {
	db     dynamo.API
	table  string
	logger *zap.Logger
}

// NewRepository creates an event log repository.
func NewRepository(db dynamo.API, table string, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: db, table: table, logger: logger}
}

// Append writes one immutable event and returns its id. Storage failures
// propagate to the caller; the ingestion pipeline owns retry decisions.
func (r *Repository) Append(ctx context.Context, tenantID, projectID, eventType string, payload models.EventPayload) (string, error) {
	event := models.Event{
		TenantID:        tenantID,
		ProjectID:       projectID,
		TenantProjectID: models.EventPartitionKey(tenantID, projectID),
		EventID:         uuid.New().String(),
		EventType:       eventType,
		EventTimestamp:  time.Now().UnixMilli(),
		Payload:         payload,
	}
	item, err := attributevalue.MarshalMap(event)
	if err != nil {
		return "", err
	}
	r.logger.Info("appending event",
		zap.String("event_id", event.EventID),
		zap.String("event_type", eventType),
		zap.String("project_id", projectID))
	if _, err := r.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		r.logger.Error("append event failed", zap.Error(err), zap.String("project_id", projectID))
		return "", err
	}
	return event.EventID, nil
}

// ListByProject returns up to limit events for the project, newest first.
func (r *Repository) ListByProject(ctx context.Context, tenantID, projectID string, limit int32) ([]models.Event, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("tenant_id_project_id").
			Equal(expression.Value(models.EventPartitionKey(tenantID, projectID)))).
		Build()
	if err != nil {
		return nil, err
	}
	out, err := r.db.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(limit),
	})
	if err != nil {
		r.logger.Error("list project events failed", zap.Error(err), zap.String("project_id", projectID))
		return nil, err
	}
	return unmarshalEvents(out.Items)
}

// ListByTenant returns up to limit events across all of a tenant's
// projects, newest first, via the tenant-wide index.
func (r *Repository) ListByTenant(ctx context.Context, tenantID string, limit int32) ([]models.Event, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("tenant_id").Equal(expression.Value(tenantID))).
		Build()
	if err != nil {
		return nil, err
	}
	out, err := r.db.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		IndexName:                 aws.String(indexTenant),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(limit),
	})
	if err != nil {
		r.logger.Error("list tenant events failed", zap.Error(err), zap.String("tenant_id", tenantID))
		return nil, err
	}
	return unmarshalEvents(out.Items)
}

func unmarshalEvents(items []map[string]types.AttributeValue) ([]models.Event, error) {
	events := make([]models.Event, 0, len(items))
	for _, item := range items {
		var e models.Event
		if err := attributevalue.UnmarshalMap(item, &e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}
