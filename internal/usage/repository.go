// Package usage implements the per-tenant, per-day API usage ledger.
package usage

import (
	"context"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/myprojectr/backend/internal/models"
	"github.com/myprojectr/backend/pkg/dynamo"
)

const indexTenant = "tenant_id-index"

// Entry is one billed AI call to record.
type Entry struct {
	Provider string
	Model    string
	Tokens   int
	CostUSD  float64
}

// Repository writes immutable usage records and aggregates them on read.
// No materialized rollups: per-tenant volume over the window is small.
type Repository struct {
	db            dynamo.API
	table         string
	retentionDays int
	logger        *zap.Logger
	now           func() time.Time
}

// NewRepository creates a usage ledger repository.
func NewRepository(db dynamo.API, table string, retentionDays int, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &Repository{db: db, table: table, retentionDays: retentionDays, logger: logger, now: time.Now}
}

// Record writes one usage record keyed by (tenant+date, timestamp) with a
// TTL at the end of the retention window.
func (r *Repository) Record(ctx context.Context, tenantID string, entry Entry) error {
	now := r.now()
	date := now.Format("2006-01-02")
	record := models.UsageRecord{
		TenantID:     tenantID,
		TenantIDDate: models.UsagePartitionKey(tenantID, date),
		Timestamp:    now.UnixMilli(),
		Date:         date,
		APIProvider:  entry.Provider,
		Model:        entry.Model,
		TokensUsed:   entry.Tokens,
		CostUSD:      entry.CostUSD,
		TTL:          now.Add(time.Duration(r.retentionDays) * 24 * time.Hour).Unix(),
	}
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return err
	}
	if _, err := r.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		r.logger.Error("record usage failed", zap.Error(err), zap.String("tenant_id", tenantID))
		return err
	}
	return nil
}

// ListByDate returns the usage records for one calendar day (YYYY-MM-DD).
func (r *Repository) ListByDate(ctx context.Context, tenantID, date string) ([]models.UsageRecord, error) {
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("tenant_id_date").
			Equal(expression.Value(models.UsagePartitionKey(tenantID, date)))).
		Build()
	if err != nil {
		return nil, err
	}
	out, err := r.db.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		r.logger.Error("list usage failed", zap.Error(err), zap.String("tenant_id", tenantID), zap.String("date", date))
		return nil, err
	}
	return unmarshalRecords(out.Items)
}

// Summary aggregates usage over the trailing window of days: exact
// totals plus a per-model cost/token/call breakdown.
func (r *Repository) Summary(ctx context.Context, tenantID string, days int) (*models.UsageSummary, error) {
	since := r.now().AddDate(0, 0, -days).UnixMilli()
	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key("tenant_id").Equal(expression.Value(tenantID)).
			And(expression.Key("timestamp").GreaterThanEqual(expression.Value(since)))).
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
	})
	if err != nil {
		r.logger.Error("usage summary failed", zap.Error(err), zap.String("tenant_id", tenantID))
		return nil, err
	}
	records, err := unmarshalRecords(out.Items)
	if err != nil {
		return nil, err
	}

	summary := &models.UsageSummary{
		TenantID:       tenantID,
		PeriodDays:     days,
		TotalCalls:     len(records),
		ModelBreakdown: make(map[string]models.ModelUsage),
	}
	for _, rec := range records {
		summary.TotalCostUSD += rec.CostUSD
		summary.TotalTokens += rec.TokensUsed
		model := rec.Model
		if model == "" {
			model = "unknown"
		}
		mu := summary.ModelBreakdown[model]
		mu.Cost += rec.CostUSD
		mu.Tokens += rec.TokensUsed
		mu.Calls++
		summary.ModelBreakdown[model] = mu
	}
	summary.TotalCostUSD = math.Round(summary.TotalCostUSD*100) / 100
	return summary, nil
}

func unmarshalRecords(items []map[string]types.AttributeValue) ([]models.UsageRecord, error) {
	records := make([]models.UsageRecord, 0, len(items))
	for _, item := range items {
		var rec models.UsageRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
