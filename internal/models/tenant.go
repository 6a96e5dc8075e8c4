package models

// Subscription tiers.
const (
	TierStarter      = "starter"
	TierProfessional = "professional"
	TierEnterprise   = "enterprise"
)

// Billing statuses.
const (
	BillingStatusTrial    = "trial"
	BillingStatusActive   = "active"
	BillingStatusPastDue  = "past_due"
	BillingStatusCanceled = "canceled"
)

// Tenant is a customer organization, the top-level multi-tenancy boundary.
// EmailAddress and Subdomain are each globally unique, enforced via GSI
// lookups performed by the onboarding flow before create.
type Tenant struct {
	TenantID          string  `json:"tenant_id" dynamodbav:"tenant_id"`
	Name              string  `json:"name" dynamodbav:"tenant_name"`
	EmailAddress      string  `json:"email_address" dynamodbav:"email_address"`
	Subdomain         string  `json:"subdomain" dynamodbav:"subdomain"`
	SubscriptionTier  string  `json:"subscription_tier" dynamodbav:"subscription_tier"`
	BillingStatus     string  `json:"billing_status" dynamodbav:"billing_status"`
	EmailLimit        int     `json:"email_limit" dynamodbav:"email_limit"`
	ProjectLimit      int     `json:"project_limit" dynamodbav:"project_limit"`
	UserLimit         int     `json:"user_limit" dynamodbav:"user_limit"`
	MonthlyAPIBudget  float64 `json:"monthly_api_budget" dynamodbav:"monthly_api_budget"`
	CurrentMonthSpend float64 `json:"current_month_spend" dynamodbav:"current_month_spend"`
	BillingCustomerID string  `json:"billing_customer_id,omitempty" dynamodbav:"billing_customer_id,omitempty"`
	TrialEndsAt       int64   `json:"trial_ends_at,omitempty" dynamodbav:"trial_ends_at,omitempty"`
	CreatedAt         int64   `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt         int64   `json:"updated_at" dynamodbav:"updated_at"`
}

// TenantPatch enumerates the mutable tenant fields. Identity fields
// (tenant_id, email_address, subdomain) are deliberately absent.
type TenantPatch struct {
	Name              *string
	SubscriptionTier  *string
	BillingStatus     *string
	EmailLimit        *int
	ProjectLimit      *int
	UserLimit         *int
	MonthlyAPIBudget  *float64
	CurrentMonthSpend *float64
	BillingCustomerID *string
	TrialEndsAt       *int64
}

// IsZero reports whether the patch carries no changes.
func (p TenantPatch) IsZero() bool {
	return p.Name == nil && p.SubscriptionTier == nil && p.BillingStatus == nil &&
		p.EmailLimit == nil && p.ProjectLimit == nil && p.UserLimit == nil &&
		p.MonthlyAPIBudget == nil && p.CurrentMonthSpend == nil &&
		p.BillingCustomerID == nil && p.TrialEndsAt == nil
}

// TierQuota holds per-tier limits applied at onboarding.
type TierQuota struct {
	EmailLimit   int
	ProjectLimit int
	UserLimit    int
	APIBudget    float64
}

// TierQuotas maps subscription tiers to their limits.
var TierQuotas = map[string]TierQuota{
	TierStarter:      {EmailLimit: 500, ProjectLimit: 10, UserLimit: 3, APIBudget: 20.0},
	TierProfessional: {EmailLimit: 5000, ProjectLimit: 100, UserLimit: 15, APIBudget: 100.0},
	TierEnterprise:   {EmailLimit: 50000, ProjectLimit: 1000, UserLimit: 100, APIBudget: 1000.0},
}
