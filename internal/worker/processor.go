package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/myprojectr/backend/internal/ai"
	"github.com/myprojectr/backend/internal/models"
	"github.com/myprojectr/backend/internal/usage"
	"github.com/myprojectr/backend/pkg/queue"
)

// Estimator generates structured estimates and replies.
type Estimator interface {
	GenerateEstimate(ctx context.Context, documentsText, projectType, trade string) (*models.Estimate, ai.Usage, error)
	GenerateReply(ctx context.Context, subject, sender string, extracted *models.ExtractedData, replyType string) (string, ai.Usage, error)
	SanitizeInput(text string) string
}

// ObjectStore fetches stored documents for estimate generation.
type ObjectStore interface {
	GetAttachment(ctx context.Context, key string) ([]byte, error)
}

// EventLog appends and reads project events.
type EventLog interface {
	Append(ctx context.Context, tenantID, projectID, eventType string, payload models.EventPayload) (string, error)
	ListByProject(ctx context.Context, tenantID, projectID string, limit int32) ([]models.Event, error)
}

// UsageLedger records per-call API spend.
type UsageLedger interface {
	Record(ctx context.Context, tenantID string, entry usage.Entry) error
}

// Mailer sends outbound email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body, inReplyTo string) error
}

// TaskQueue is the job source the processor drains.
type TaskQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Processor drains the AI task queue. One job at a time; failed jobs
// are retried with backoff and parked in the DLQ after MaxRetries.
type Processor struct {
	queue  TaskQueue
	ai     Estimator
	store  ObjectStore
	events EventLog
	usage  UsageLedger
	mailer Mailer
	logger *zap.Logger
}

// NewProcessor creates a worker processor.
func NewProcessor(q TaskQueue, estimator Estimator, store ObjectStore, events EventLog, ledger UsageLedger, mailer Mailer, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		queue:  q,
		ai:     estimator,
		store:  store,
		events: events,
		usage:  ledger,
		mailer: mailer,
		logger: logger,
	}
}

// Run blocks until ctx is cancelled, processing jobs as they arrive.
func (p *Processor) Run(ctx context.Context) {
	p.logger.Info("worker started")
	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("worker stopping")
				return
			}
			p.logger.Error("dequeue failed", zap.Error(err))
			continue
		}
		if job == nil {
			continue
		}
		if err := p.Handle(ctx, job); err != nil {
			p.logger.Error("job failed",
				zap.String("job_id", job.ID),
				zap.String("type", string(job.Type)),
				zap.Int("attempt", job.Attempt),
				zap.Error(err))
			// Retry parks the job in the delayed set; the next
			// queued job is picked up without waiting out the
			// backoff here.
			if rerr := p.queue.Retry(ctx, job); rerr != nil {
				p.logger.Error("retry failed", zap.String("job_id", job.ID), zap.Error(rerr))
			}
		}
	}
}

// Handle dispatches a single job by type.
func (p *Processor) Handle(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeEstimate:
		var payload queue.EstimatePayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode estimate payload: %w", err)
		}
		return p.handleEstimate(ctx, payload)
	case queue.JobTypeReply:
		var payload queue.ReplyPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode reply payload: %w", err)
		}
		return p.handleReply(ctx, payload)
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

func (p *Processor) handleEstimate(ctx context.Context, payload queue.EstimatePayload) error {
	var docs strings.Builder
	for _, key := range payload.DocumentKeys {
		data, err := p.store.GetAttachment(ctx, key)
		if err != nil {
			return fmt.Errorf("fetch document %s: %w", key, err)
		}
		fmt.Fprintf(&docs, "--- Document: %s ---\n%s\n\n", key, data)
	}

	estimate, aiUsage, err := p.ai.GenerateEstimate(ctx, p.ai.SanitizeInput(docs.String()), payload.ProjectType, payload.Trade)
	if err != nil {
		return fmt.Errorf("generate estimate: %w", err)
	}

	eventID, err := p.events.Append(ctx, payload.TenantID, payload.ProjectID, models.EventTypeEstimateGenerated, models.EventPayload{
		Estimate: estimate,
	})
	if err != nil {
		return fmt.Errorf("append estimate event: %w", err)
	}

	p.recordUsage(ctx, payload.TenantID, aiUsage)
	p.logger.Info("estimate generated",
		zap.String("tenant_id", payload.TenantID),
		zap.String("project_id", payload.ProjectID),
		zap.String("event_id", eventID),
		zap.Float64("total", estimate.Summary.Total))
	return nil
}

func (p *Processor) handleReply(ctx context.Context, payload queue.ReplyPayload) error {
	var extracted *models.ExtractedData
	var inReplyTo string
	if source := p.lookupSourceEvent(ctx, payload); source != nil {
		extracted = source.Payload.Extracted
		inReplyTo = source.Payload.SourceEmailID
	}

	body, aiUsage, err := p.ai.GenerateReply(ctx, payload.Subject, payload.Recipient, extracted, payload.ReplyType)
	if err != nil {
		return fmt.Errorf("generate reply: %w", err)
	}

	subject := payload.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}
	if err := p.mailer.Send(ctx, payload.Recipient, subject, body, inReplyTo); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}

	_, err = p.events.Append(ctx, payload.TenantID, payload.ProjectID, models.EventTypeReplySent, models.EventPayload{
		Recipient: payload.Recipient,
		Subject:   subject,
		ReplyType: payload.ReplyType,
	})
	if err != nil {
		return fmt.Errorf("append reply event: %w", err)
	}

	p.recordUsage(ctx, payload.TenantID, aiUsage)
	p.logger.Info("reply sent",
		zap.String("tenant_id", payload.TenantID),
		zap.String("project_id", payload.ProjectID),
		zap.String("recipient", payload.Recipient),
		zap.String("reply_type", payload.ReplyType))
	return nil
}

// lookupSourceEvent finds the triggering EMAIL_RECEIVED event, which
// carries the extraction and the original Message-ID for threading. A
// reply can still be generated without it.
func (p *Processor) lookupSourceEvent(ctx context.Context, payload queue.ReplyPayload) *models.Event {
	if payload.EventID == "" {
		return nil
	}
	items, err := p.events.ListByProject(ctx, payload.TenantID, payload.ProjectID, 50)
	if err != nil {
		p.logger.Warn("failed to load events for reply context",
			zap.String("project_id", payload.ProjectID), zap.Error(err))
		return nil
	}
	for i := range items {
		if items[i].EventID == payload.EventID {
			return &items[i]
		}
	}
	return nil
}

func (p *Processor) recordUsage(ctx context.Context, tenantID string, u ai.Usage) {
	err := p.usage.Record(ctx, tenantID, usage.Entry{
		Provider: ai.Provider,
		Model:    u.Model,
		Tokens:   u.TotalTokens,
		CostUSD:  u.CostUSD,
	})
	if err != nil {
		p.logger.Warn("failed to record usage", zap.String("tenant_id", tenantID), zap.Error(err))
	}
}
