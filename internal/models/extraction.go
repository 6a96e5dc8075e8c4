package models

// ExtractedData is the structured output of the LLM extraction call.
// The pipeline treats it as opaque except for the fields resolution and
// metadata merge depend on (project_id, project_name, project_address,
// people_mentioned, requires_response).
type ExtractedData struct {
	ProjectID        string       `json:"project_id,omitempty" dynamodbav:"project_id,omitempty"`
	ProjectName      string       `json:"project_name,omitempty" dynamodbav:"project_name,omitempty"`
	ProjectAddress   string       `json:"project_address,omitempty" dynamodbav:"project_address,omitempty"`
	Decisions        []Decision   `json:"decisions,omitempty" dynamodbav:"decisions,omitempty"`
	ActionItems      []ActionItem `json:"action_items,omitempty" dynamodbav:"action_items,omitempty"`
	ScopeChanges     []string     `json:"scope_changes,omitempty" dynamodbav:"scope_changes,omitempty"`
	BudgetMentions   []string     `json:"budget_mentions,omitempty" dynamodbav:"budget_mentions,omitempty"`
	TimelineChanges  []string     `json:"timeline_changes,omitempty" dynamodbav:"timeline_changes,omitempty"`
	Risks            []string     `json:"risks,omitempty" dynamodbav:"risks,omitempty"`
	KeyPoints        []string     `json:"key_points,omitempty" dynamodbav:"key_points,omitempty"`
	PeopleMentioned  []string     `json:"people_mentioned,omitempty" dynamodbav:"people_mentioned,omitempty"`
	RequiresResponse bool         `json:"requires_response" dynamodbav:"requires_response"`
}

// Decision is one decision the model found in an email.
type Decision struct {
	Decision  string   `json:"decision" dynamodbav:"decision"`
	MadeBy    string   `json:"made_by,omitempty" dynamodbav:"made_by,omitempty"`
	Timestamp string   `json:"timestamp,omitempty" dynamodbav:"timestamp,omitempty"`
	Affects   []string `json:"affects,omitempty" dynamodbav:"affects,omitempty"`
}

// ActionItem is one task the model found in an email.
type ActionItem struct {
	Task     string `json:"task" dynamodbav:"task"`
	Owner    string `json:"owner,omitempty" dynamodbav:"owner,omitempty"`
	Deadline string `json:"deadline,omitempty" dynamodbav:"deadline,omitempty"`
	Priority string `json:"priority,omitempty" dynamodbav:"priority,omitempty"`
}

// Estimate is the structured output of the LLM estimation call.
type Estimate struct {
	EstimateID      string             `json:"estimate_id" dynamodbav:"estimate_id"`
	LineItems       []EstimateLineItem `json:"line_items" dynamodbav:"line_items"`
	Summary         EstimateSummary    `json:"summary" dynamodbav:"summary"`
	Assumptions     []string           `json:"assumptions,omitempty" dynamodbav:"assumptions,omitempty"`
	Exclusions      []string           `json:"exclusions,omitempty" dynamodbav:"exclusions,omitempty"`
	ConfidenceLevel string             `json:"confidence_level" dynamodbav:"confidence_level"`
	Notes           string             `json:"notes,omitempty" dynamodbav:"notes,omitempty"`
}

// EstimateLineItem is one priced work item.
type EstimateLineItem struct {
	Description string  `json:"description" dynamodbav:"description"`
	Quantity    float64 `json:"quantity" dynamodbav:"quantity"`
	Unit        string  `json:"unit" dynamodbav:"unit"`
	UnitCost    float64 `json:"unit_cost" dynamodbav:"unit_cost"`
	TotalCost   float64 `json:"total_cost" dynamodbav:"total_cost"`
	Notes       string  `json:"notes,omitempty" dynamodbav:"notes,omitempty"`
}

// EstimateSummary holds the estimate totals.
type EstimateSummary struct {
	Subtotal           float64 `json:"subtotal" dynamodbav:"subtotal"`
	ContingencyPercent float64 `json:"contingency_percent" dynamodbav:"contingency_percent"`
	ContingencyAmount  float64 `json:"contingency_amount" dynamodbav:"contingency_amount"`
	Total              float64 `json:"total" dynamodbav:"total"`
}
