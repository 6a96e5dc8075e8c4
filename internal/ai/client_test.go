package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myprojectr/backend/internal/apperr"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:          "test-key",
		BaseURL:         srv.URL,
		ExtractionModel: "gpt-4o-mini",
		EstimationModel: "gpt-4o",
	}, nil)
}

func chatReply(t *testing.T, w http.ResponseWriter, content string, totalTokens int) {
	t.Helper()
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
		"usage": map[string]any{"prompt_tokens": totalTokens - 100, "completion_tokens": 100, "total_tokens": totalTokens},
	}
	require.NoError(t, json.NewEncoder(w).Encode(resp))
}

func TestExtractProjectData(t *testing.T) {
	var gotReq chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		chatReply(t, w, `{"project_name":"Kitchen Remodel","requires_response":true,"key_points":["cabinets Tuesday"]}`, 1200)
	})

	extracted, usage, err := client.ExtractProjectData(context.Background(),
		"dave@example.com", "Kitchen update", "The cabinets arrive Tuesday.", "plans.pdf (application/pdf)")
	require.NoError(t, err)

	assert.Equal(t, "Kitchen Remodel", extracted.ProjectName)
	assert.True(t, extracted.RequiresResponse)
	assert.Equal(t, []string{"cabinets Tuesday"}, extracted.KeyPoints)

	assert.Equal(t, "gpt-4o-mini", gotReq.Model)
	require.NotNil(t, gotReq.ResponseFormat)
	assert.Equal(t, "json_object", gotReq.ResponseFormat.Type)
	require.Len(t, gotReq.Messages, 2)
	assert.Contains(t, gotReq.Messages[1].Content, "dave@example.com")
	assert.Contains(t, gotReq.Messages[1].Content, "plans.pdf")

	assert.Equal(t, "gpt-4o-mini", usage.Model)
	assert.Equal(t, 1200, usage.TotalTokens)
	assert.InDelta(t, 1.2*0.00045, usage.CostUSD, 1e-9)
}

func TestGenerateEstimate(t *testing.T) {
	var gotReq chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		chatReply(t, w, `{"estimate_id":"EST-1","summary":{"subtotal":10000,"contingency_percent":10,"contingency_amount":1000,"total":11000},"confidence_level":"medium"}`, 4000)
	})

	estimate, usage, err := client.GenerateEstimate(context.Background(), "scope of work", "kitchen remodel", "plumbing")
	require.NoError(t, err)

	assert.Equal(t, "EST-1", estimate.EstimateID)
	assert.Equal(t, float64(11000), estimate.Summary.Total)
	assert.Equal(t, "medium", estimate.ConfidenceLevel)

	assert.Equal(t, "gpt-4o", gotReq.Model)
	assert.Contains(t, gotReq.Messages[1].Content, "kitchen remodel")
	assert.Contains(t, gotReq.Messages[1].Content, "plumbing trade")
	assert.Equal(t, 4000, usage.TotalTokens)
}

func TestGenerateReply_NoJSONFormat(t *testing.T) {
	var gotReq chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		chatReply(t, w, "Thanks, noted.", 600)
	})

	body, usage, err := client.GenerateReply(context.Background(), "Kitchen update", "dave@example.com", nil, "acknowledgment")
	require.NoError(t, err)

	assert.Equal(t, "Thanks, noted.", body)
	assert.Nil(t, gotReq.ResponseFormat)
	assert.Contains(t, gotReq.Messages[1].Content, "acknowledgment")
	assert.Equal(t, 600, usage.TotalTokens)
}

func TestChat_APIErrorIsUpstream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	})

	_, _, err := client.ExtractProjectData(context.Background(), "a@b.com", "s", "b", "")
	require.ErrorIs(t, err, apperr.ErrUpstream)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestChat_MalformedJSONContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, "not json at all", 100)
	})

	_, usage, err := client.ExtractProjectData(context.Background(), "a@b.com", "s", "b", "")
	require.ErrorIs(t, err, apperr.ErrUpstream)
	// Tokens were still spent and must be recorded by the caller.
	assert.Equal(t, 100, usage.TotalTokens)
}

func TestSanitizeInput_Truncates(t *testing.T) {
	client := NewClient(Config{}, nil)
	long := strings.Repeat("a", maxInputChars+5000)
	got := client.SanitizeInput(long)
	assert.Len(t, got, maxInputChars)

	short := "normal email body"
	assert.Equal(t, short, client.SanitizeInput(short))
}

func TestSanitizeInput_TruncatesOnRuneBoundary(t *testing.T) {
	client := NewClient(Config{}, nil)
	// Three-byte runes guarantee the limit lands mid-sequence.
	long := strings.Repeat("日", maxInputChars/3+100)

	got := client.SanitizeInput(long)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), maxInputChars)
	assert.Greater(t, len(got), maxInputChars-utf8.UTFMax)
}
