package billing

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myprojectr/backend/internal/models"
)

type fakeTenantUpdater struct {
	tenantID string
	patch    models.TenantPatch
	calls    int
}

func (f *fakeTenantUpdater) Update(ctx context.Context, tenantID string, patch models.TenantPatch) error {
	f.calls++
	f.tenantID = tenantID
	f.patch = patch
	return nil
}

func postWebhook(t *testing.T, handler *Handler, secret string, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhooks/stripe", handler.Webhook)

	ts := time.Now().Unix()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, signPayload(secret, ts, payload)))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWebhook_SubscriptionCanceled(t *testing.T) {
	tenants := &fakeTenantUpdater{}
	handler := NewHandler(NewClient("sk_test", "whsec_test", nil), tenants, nil)

	payload := []byte(`{"id":"evt_1","type":"customer.subscription.deleted","data":{"object":{"customer":"cus_1","metadata":{"tenant_id":"TEN-1"}}}}`)
	w := postWebhook(t, handler, "whsec_test", payload)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, tenants.calls)
	assert.Equal(t, "TEN-1", tenants.tenantID)
	require.NotNil(t, tenants.patch.BillingStatus)
	assert.Equal(t, models.BillingStatusCanceled, *tenants.patch.BillingStatus)
}

func TestWebhook_PaymentFailedMarksPastDue(t *testing.T) {
	tenants := &fakeTenantUpdater{}
	handler := NewHandler(NewClient("sk_test", "whsec_test", nil), tenants, nil)

	payload := []byte(`{"id":"evt_2","type":"invoice.payment_failed","data":{"object":{"customer":"cus_1","metadata":{"tenant_id":"TEN-1"}}}}`)
	w := postWebhook(t, handler, "whsec_test", payload)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, tenants.patch.BillingStatus)
	assert.Equal(t, models.BillingStatusPastDue, *tenants.patch.BillingStatus)
}

func TestWebhook_BadSignatureRejected(t *testing.T) {
	tenants := &fakeTenantUpdater{}
	handler := NewHandler(NewClient("sk_test", "whsec_test", nil), tenants, nil)

	payload := []byte(`{"id":"evt_3","type":"customer.subscription.deleted","data":{"object":{"metadata":{"tenant_id":"TEN-1"}}}}`)
	w := postWebhook(t, handler, "whsec_wrong", payload)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, tenants.calls)
}

func TestWebhook_IgnoresUnknownEvents(t *testing.T) {
	tenants := &fakeTenantUpdater{}
	handler := NewHandler(NewClient("sk_test", "whsec_test", nil), tenants, nil)

	payload := []byte(`{"id":"evt_4","type":"charge.succeeded","data":{"object":{"metadata":{"tenant_id":"TEN-1"}}}}`)
	w := postWebhook(t, handler, "whsec_test", payload)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, tenants.calls)
}
