package models

import "fmt"

// UsageRecord is one billed AI-call entry for a tenant on a given day.
// Records are immutable and expire after the retention window via TTL.
type UsageRecord struct {
	TenantID     string  `json:"tenant_id" dynamodbav:"tenant_id"`
	TenantIDDate string  `json:"-" dynamodbav:"tenant_id_date"`
	Timestamp    int64   `json:"timestamp" dynamodbav:"timestamp"`
	Date         string  `json:"date" dynamodbav:"date"`
	APIProvider  string  `json:"api_provider" dynamodbav:"api_provider"`
	Model        string  `json:"model" dynamodbav:"model"`
	TokensUsed   int     `json:"tokens_used" dynamodbav:"tokens_used"`
	CostUSD      float64 `json:"cost_usd" dynamodbav:"cost_usd"`
	TTL          int64   `json:"-" dynamodbav:"ttl"`
}

// UsagePartitionKey composes the usage table partition key for a day.
func UsagePartitionKey(tenantID, date string) string {
	return fmt.Sprintf("%s#%s", tenantID, date)
}

// ModelUsage accumulates cost, tokens and call count for one model.
type ModelUsage struct {
	Cost   float64 `json:"cost"`
	Tokens int     `json:"tokens"`
	Calls  int     `json:"calls"`
}

// UsageSummary is the read-time aggregation over a trailing window.
type UsageSummary struct {
	TenantID       string                `json:"tenant_id"`
	PeriodDays     int                   `json:"period_days"`
	TotalCostUSD   float64               `json:"total_cost_usd"`
	TotalTokens    int                   `json:"total_tokens"`
	TotalCalls     int                   `json:"total_calls"`
	ModelBreakdown map[string]ModelUsage `json:"model_breakdown"`
}
