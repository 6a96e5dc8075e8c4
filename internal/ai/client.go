// Package ai wraps the OpenAI chat-completions API for extraction,
// estimation and reply generation.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/myprojectr/backend/internal/apperr"
	"github.com/myprojectr/backend/internal/models"
)

const (
	defaultBaseURL = "https://api.openai.com/v1/chat/completions"

	// Provider is the identifier recorded in the usage ledger.
	Provider = "openai"

	maxInputChars = 100000
)

// Usage reports the tokens consumed and estimated cost of one call,
// ready for the usage ledger.
type Usage struct {
	Model       string
	TotalTokens int
	CostUSD     float64
}

// Client calls the OpenAI API.
type Client struct {
	apiKey          string
	baseURL         string
	extractionModel string
	estimationModel string
	httpClient      *http.Client
	logger          *zap.Logger
}

// Config holds client settings.
type Config struct {
	APIKey          string
	BaseURL         string
	ExtractionModel string
	EstimationModel string
}

// NewClient creates an OpenAI client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:          cfg.APIKey,
		baseURL:         cfg.BaseURL,
		extractionModel: cfg.ExtractionModel,
		estimationModel: cfg.EstimationModel,
		httpClient:      &http.Client{Timeout: 120 * time.Second},
		logger:          logger,
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Approximate USD cost per 1K tokens, used for the usage ledger. Kept as
// a single blended rate per model; billing truth lives with the provider.
var costPer1K = map[string]float64{
	"gpt-4o":      0.0075,
	"gpt-4o-mini": 0.00045,
}

const extractionSystemPrompt = `You are an expert construction project manager assistant.

Your job is to analyze emails and extract:
1. Project identification (name, address, job number)
2. Decisions made (who decided what, when)
3. Changes to scope, budget, timeline
4. Action items and owners
5. Risks or blockers mentioned

Always return valid JSON with these keys:
{
  "project_id": "extracted or null",
  "project_name": "string or null",
  "project_address": "string or null",
  "decisions": [
    {"decision": "text", "made_by": "person", "timestamp": "when", "affects": ["items"]}
  ],
  "action_items": [
    {"task": "text", "owner": "person", "deadline": "date or null", "priority": "high/medium/low"}
  ],
  "scope_changes": ["change1", "change2"],
  "budget_mentions": ["budget item 1"],
  "timeline_changes": ["timeline change"],
  "risks": ["risk1", "risk2"],
  "key_points": ["summary point 1", "point 2"],
  "people_mentioned": ["person1", "person2"],
  "requires_response": true/false
}

Be conservative. If unsure, return null. Maintain strict JSON format.`

const estimationSystemPrompt = `You are an expert construction estimator.

Generate a preliminary estimate based on the provided documents.

Return JSON with this structure:
{
  "estimate_id": "unique_id",
  "line_items": [
    {
      "description": "Work item description",
      "quantity": number,
      "unit": "unit of measure",
      "unit_cost": number,
      "total_cost": number,
      "notes": "any relevant notes"
    }
  ],
  "summary": {
    "subtotal": number,
    "contingency_percent": 10,
    "contingency_amount": number,
    "total": number
  },
  "assumptions": ["assumption 1", "assumption 2"],
  "exclusions": ["exclusion 1"],
  "confidence_level": "low/medium/high",
  "notes": "Overall notes about the estimate"
}

Mark all costs as PRELIMINARY. Be conservative with estimates.`

const replySystemPrompt = `You are a helpful construction project assistant.

Generate professional, concise email responses.

For acknowledgments: Confirm receipt, summarize key points, list next steps.
For estimates: Present the estimate professionally with disclaimers.
For form responses: Provide filled information clearly.

Keep responses friendly but professional. Sign as "Your Project Tracking Assistant".`

// ExtractProjectData extracts structured project data from an email.
func (c *Client) ExtractProjectData(ctx context.Context, sender, subject, body, attachmentsSummary string) (*models.ExtractedData, Usage, error) {
	userPrompt := fmt.Sprintf("Email from: %s\nSubject: %s\n\nBody:\n%s", sender, subject, body)
	if attachmentsSummary != "" {
		userPrompt += "\n\nAttachments: " + attachmentsSummary
	}

	c.logger.Info("calling OpenAI for project data extraction", zap.String("model", c.extractionModel))
	content, usage, err := c.chatJSON(ctx, c.extractionModel, extractionSystemPrompt, userPrompt, 0.3)
	if err != nil {
		return nil, usage, err
	}
	var extracted models.ExtractedData
	if err := json.Unmarshal([]byte(content), &extracted); err != nil {
		return nil, usage, apperr.Upstream("decode extraction response", err)
	}
	return &extracted, usage, nil
}

// GenerateEstimate generates a preliminary construction estimate from
// document text.
func (c *Client) GenerateEstimate(ctx context.Context, documentsText, projectType, trade string) (*models.Estimate, Usage, error) {
	tradeContext := ""
	if trade != "" {
		tradeContext = fmt.Sprintf(" for %s trade", trade)
	}
	userPrompt := fmt.Sprintf(
		"Generate a preliminary estimate for this %s project%s.\n\nDocuments:\n%s\n\nProvide detailed line items with quantities and unit costs.",
		projectType, tradeContext, documentsText)

	c.logger.Info("generating estimate", zap.String("project_type", projectType), zap.String("model", c.estimationModel))
	content, usage, err := c.chatJSON(ctx, c.estimationModel, estimationSystemPrompt, userPrompt, 0.2)
	if err != nil {
		return nil, usage, err
	}
	var estimate models.Estimate
	if err := json.Unmarshal([]byte(content), &estimate); err != nil {
		return nil, usage, apperr.Upstream("decode estimate response", err)
	}
	return &estimate, usage, nil
}

// GenerateReply generates a response email body for the given context.
// replyType is e.g. "acknowledgment" or "estimate".
func (c *Client) GenerateReply(ctx context.Context, subject, sender string, extracted *models.ExtractedData, replyType string) (string, Usage, error) {
	extractedJSON, _ := json.MarshalIndent(extracted, "", "  ")
	userPrompt := fmt.Sprintf(
		"Generate a %s response for this email.\n\nOriginal Subject: %s\nSender: %s\n\nExtracted Information:\n%s\n\nGenerate an appropriate response.",
		replyType, subject, sender, extractedJSON)

	c.logger.Info("generating reply", zap.String("reply_type", replyType))
	return c.chat(ctx, c.extractionModel, replySystemPrompt, userPrompt, 0.7, nil)
}

// SanitizeInput truncates oversized bodies and logs likely prompt
// injection attempts without altering the text.
func (c *Client) SanitizeInput(text string) string {
	if len(text) > maxInputChars {
		// Back up to a rune start so the cut never splits a UTF-8 sequence.
		cut := maxInputChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		c.logger.Warn("input truncated", zap.Int("from", len(text)), zap.Int("to", cut))
		text = text[:cut]
	}
	lower := bytes.ToLower([]byte(text))
	for _, pattern := range []string{
		"ignore previous instructions",
		"disregard all prior",
		"forget everything",
		"new instructions:",
		"system:",
	} {
		if bytes.Contains(lower, []byte(pattern)) {
			c.logger.Warn("potential injection attempt detected", zap.String("pattern", pattern))
		}
	}
	return text
}

func (c *Client) chatJSON(ctx context.Context, model, systemPrompt, userPrompt string, temperature float64) (string, Usage, error) {
	return c.chat(ctx, model, systemPrompt, userPrompt, temperature, &responseFormat{Type: "json_object"})
}

func (c *Client) chat(ctx context.Context, model, systemPrompt, userPrompt string, temperature float64, format *responseFormat) (string, Usage, error) {
	reqBody := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    temperature,
		ResponseFormat: format,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", Usage{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", Usage{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", Usage{}, apperr.Upstream("openai request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Usage{}, apperr.Upstream("read openai response", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", Usage{}, apperr.Upstream("decode openai response", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", Usage{}, apperr.Upstream("openai", fmt.Errorf("%s", msg))
	}
	if len(parsed.Choices) == 0 {
		return "", Usage{}, apperr.Upstream("openai", fmt.Errorf("no choices in response"))
	}

	usage := Usage{
		Model:       model,
		TotalTokens: parsed.Usage.TotalTokens,
		CostUSD:     float64(parsed.Usage.TotalTokens) / 1000 * costPer1K[model],
	}
	return parsed.Choices[0].Message.Content, usage, nil
}
