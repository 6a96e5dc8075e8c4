// Package billing wraps the payments platform for onboarding and
// webhook verification. The core never calls this package.
package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/myprojectr/backend/internal/apperr"
)

const apiBase = "https://api.stripe.com/v1"

// signatureTolerance bounds webhook timestamp age.
const signatureTolerance = 5 * time.Minute

// Client calls the Stripe API.
type Client struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
	logger        *zap.Logger
}

// NewClient creates a billing client.
func NewClient(secretKey, webhookSecret string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		baseURL:       apiBase,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        logger,
	}
}

// Customer is a billing customer reference.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Subscription is a billing subscription reference.
type Subscription struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateCustomer creates a billing customer for a tenant.
func (c *Client) CreateCustomer(ctx context.Context, email, name, tenantID string) (*Customer, error) {
	form := url.Values{}
	form.Set("email", email)
	form.Set("name", name)
	form.Set("metadata[tenant_id]", tenantID)

	var customer Customer
	if err := c.post(ctx, "/customers", form, &customer); err != nil {
		return nil, err
	}
	c.logger.Info("created billing customer", zap.String("customer_id", customer.ID), zap.String("tenant_id", tenantID))
	return &customer, nil
}

// CreateSubscription subscribes the customer to a price, optionally with
// a trial.
func (c *Client) CreateSubscription(ctx context.Context, customerID, priceID string, trialDays int) (*Subscription, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("items[0][price]", priceID)
	if trialDays > 0 {
		form.Set("trial_period_days", strconv.Itoa(trialDays))
	}

	var sub Subscription
	if err := c.post(ctx, "/subscriptions", form, &sub); err != nil {
		return nil, err
	}
	c.logger.Info("created subscription", zap.String("subscription_id", sub.ID), zap.String("customer_id", customerID))
	return &sub, nil
}

// VerifyWebhookSignature checks the Stripe-Signature header against the
// payload: HMAC-SHA256 over "<timestamp>.<payload>" with the endpoint
// secret, rejecting stale timestamps.
func (c *Client) VerifyWebhookSignature(payload []byte, header string, now time.Time) error {
	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			signatures = append(signatures, v)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return apperr.Validation("malformed signature header")
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return apperr.Validation("malformed signature timestamp")
	}
	if now.Sub(time.Unix(ts, 0)) > signatureTolerance {
		return apperr.Validation("signature timestamp too old")
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return apperr.Validation("signature mismatch")
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.secretKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Upstream("stripe request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var stripeErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&stripeErr)
		c.logger.Error("stripe call failed", zap.String("path", path), zap.Int("status", resp.StatusCode), zap.String("message", stripeErr.Error.Message))
		return apperr.Upstream("stripe", fmt.Errorf("%s: %s", resp.Status, stripeErr.Error.Message))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
