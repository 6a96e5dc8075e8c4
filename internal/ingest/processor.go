// Package ingest implements the inbound email pipeline: fetch, parse,
// extract, resolve, record.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/myprojectr/backend/internal/ai"
	"github.com/myprojectr/backend/internal/mail"
	"github.com/myprojectr/backend/internal/models"
	"github.com/myprojectr/backend/internal/usage"
	"github.com/myprojectr/backend/pkg/queue"
	"github.com/myprojectr/backend/pkg/storage"
)

// Notification describes one received email: where the receiver stored
// the raw message and which address it was sent to.
type Notification struct {
	Bucket    string `json:"bucket"`
	ObjectKey string `json:"object_key"`
	Recipient string `json:"recipient"`
}

// ObjectStore is the slice of the email bucket the pipeline needs.
type ObjectStore interface {
	GetEmail(ctx context.Context, objectKey string) ([]byte, error)
	StoreAttachment(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Extractor is the LLM extraction capability.
type Extractor interface {
	ExtractProjectData(ctx context.Context, sender, subject, body, attachmentsSummary string) (*models.ExtractedData, ai.Usage, error)
	SanitizeInput(text string) string
}

// TenantDirectory resolves the tenant an inbound address belongs to.
type TenantDirectory interface {
	GetByEmail(ctx context.Context, email string) (*models.Tenant, error)
	GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error)
}

// ProjectMetadata is the slice of the project store used for the
// metadata merge after resolution.
type ProjectMetadata interface {
	Get(ctx context.Context, tenantID, projectID string) (*models.Project, error)
	Update(ctx context.Context, tenantID, projectID string, patch models.ProjectPatch) error
}

// EventLog appends immutable events.
type EventLog interface {
	Append(ctx context.Context, tenantID, projectID, eventType string, payload models.EventPayload) (string, error)
}

// UsageLedger records billed AI calls.
type UsageLedger interface {
	Record(ctx context.Context, tenantID string, entry usage.Entry) error
}

// ReplyQueue enqueues reply generation jobs for the worker.
type ReplyQueue interface {
	EnqueueReply(ctx context.Context, payload queue.ReplyPayload) error
}

// Config holds processing limits.
type Config struct {
	MaxAttachmentSizeMB   int
	EnableSenderAllowlist bool
	AllowedSenderDomains  []string
	// EmailDomain is the base inbound routing domain, used to derive a
	// tenant subdomain from the recipient host.
	EmailDomain string
}

// Processor runs the inbound email pipeline.
type Processor struct {
	store    ObjectStore
	parser   *mail.Parser
	ai       Extractor
	tenants  TenantDirectory
	resolver *Resolver
	projects ProjectMetadata
	events   EventLog
	usage    UsageLedger
	replies  ReplyQueue
	cfg      Config
	logger   *zap.Logger
}

// NewProcessor wires the pipeline. All collaborators are injected; the
// processor holds no global state.
func NewProcessor(store ObjectStore, parser *mail.Parser, extractor Extractor, tenants TenantDirectory,
	resolver *Resolver, projects ProjectMetadata, events EventLog, ledger UsageLedger,
	replies ReplyQueue, cfg Config, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		store: store, parser: parser, ai: extractor, tenants: tenants,
		resolver: resolver, projects: projects, events: events, usage: ledger,
		replies: replies, cfg: cfg, logger: logger,
	}
}

// ProcessBatch processes each notification independently: one bad
// message does not poison the rest. Returns processed and failed counts.
func (p *Processor) ProcessBatch(ctx context.Context, records []Notification) (processed, failed int) {
	p.logger.Info("processing inbound batch", zap.Int("count", len(records)))
	for _, record := range records {
		if err := p.Process(ctx, record); err != nil {
			p.logger.Error("failed to process record", zap.Error(err), zap.String("object_key", record.ObjectKey))
			failed++
			continue
		}
		processed++
	}
	p.logger.Info("batch complete", zap.Int("processed", processed), zap.Int("failed", failed))
	return processed, failed
}

// Process runs the full pipeline for a single inbound message.
func (p *Processor) Process(ctx context.Context, record Notification) error {
	if record.ObjectKey == "" {
		return fmt.Errorf("notification missing object key")
	}

	tenant, err := p.resolveTenant(ctx, record.Recipient)
	if err != nil {
		return err
	}

	raw, err := p.store.GetEmail(ctx, record.ObjectKey)
	if err != nil {
		return fmt.Errorf("fetch raw email: %w", err)
	}

	msg, err := p.parser.Parse(raw)
	if err != nil {
		return err
	}

	if msg.AutoReply {
		p.logger.Info("skipping auto-reply email", zap.String("sender", msg.Metadata.SenderEmail))
		return nil
	}
	if p.cfg.EnableSenderAllowlist && !mail.ValidateSender(msg.Metadata.SenderEmail, p.cfg.AllowedSenderDomains) {
		p.logger.Warn("rejected email from unauthorized sender", zap.String("sender", msg.Metadata.SenderEmail))
		return nil
	}

	attachmentRefs := p.storeAttachments(ctx, msg)

	var summaryParts []string
	for _, a := range attachmentRefs {
		summaryParts = append(summaryParts, fmt.Sprintf("%s (%s)", a.Filename, a.ContentType))
	}

	body := p.ai.SanitizeInput(msg.Body)
	extracted, aiUsage, err := p.ai.ExtractProjectData(ctx, msg.Metadata.SenderEmail, msg.Metadata.Subject, body, strings.Join(summaryParts, ", "))
	if err != nil {
		return fmt.Errorf("extract project data: %w", err)
	}

	projectID, created, err := p.resolver.Resolve(ctx, tenant.TenantID, msg.Metadata, extracted)
	if err != nil {
		return err
	}

	eventID, err := p.events.Append(ctx, tenant.TenantID, projectID, models.EventTypeEmailReceived, models.EventPayload{
		SourceEmailID: msg.Metadata.MessageID,
		Sender:        msg.Metadata.SenderEmail,
		Subject:       msg.Metadata.Subject,
		RawS3Key:      record.ObjectKey,
		Attachments:   attachmentRefs,
		Extracted:     extracted,
	})
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	p.logger.Info("recorded email event",
		zap.String("event_id", eventID),
		zap.String("project_id", projectID),
		zap.String("tenant_id", tenant.TenantID))

	if !created {
		if err := p.mergeMetadata(ctx, tenant.TenantID, projectID, extracted); err != nil {
			p.logger.Warn("metadata merge failed", zap.Error(err), zap.String("project_id", projectID))
		}
	}

	if err := p.usage.Record(ctx, tenant.TenantID, usage.Entry{
		Provider: ai.Provider,
		Model:    aiUsage.Model,
		Tokens:   aiUsage.TotalTokens,
		CostUSD:  aiUsage.CostUSD,
	}); err != nil {
		return fmt.Errorf("record usage: %w", err)
	}

	replyType := "acknowledgment"
	if extracted.RequiresResponse {
		replyType = "response"
	}
	if err := p.replies.EnqueueReply(ctx, queue.ReplyPayload{
		TenantID:  tenant.TenantID,
		ProjectID: projectID,
		Recipient: msg.Metadata.SenderEmail,
		Subject:   msg.Metadata.Subject,
		ReplyType: replyType,
		EventID:   eventID,
	}); err != nil {
		p.logger.Warn("enqueue reply failed", zap.Error(err), zap.String("project_id", projectID))
	}
	return nil
}

// resolveTenant maps the recipient address to a tenant: exact inbound
// address first, then the first label of the recipient host as a
// subdomain of the routing domain.
func (p *Processor) resolveTenant(ctx context.Context, recipient string) (*models.Tenant, error) {
	addr := mail.ExtractEmailAddress(recipient)
	tenant, err := p.tenants.GetByEmail(ctx, addr)
	if err != nil {
		return nil, err
	}
	if tenant != nil {
		return tenant, nil
	}

	at := strings.LastIndex(addr, "@")
	if at >= 0 && p.cfg.EmailDomain != "" {
		host := addr[at+1:]
		if sub, ok := strings.CutSuffix(host, "."+p.cfg.EmailDomain); ok && sub != "" {
			tenant, err = p.tenants.GetBySubdomain(ctx, sub)
			if err != nil {
				return nil, err
			}
			if tenant != nil {
				return tenant, nil
			}
		}
	}
	return nil, fmt.Errorf("no tenant for recipient %s", addr)
}

func (p *Processor) storeAttachments(ctx context.Context, msg *mail.Message) []models.AttachmentRef {
	maxSize := int64(p.cfg.MaxAttachmentSizeMB) * 1024 * 1024
	var refs []models.AttachmentRef
	for _, att := range msg.Attachments {
		if maxSize > 0 && att.Size > maxSize {
			p.logger.Warn("attachment exceeds size limit",
				zap.String("filename", att.Filename),
				zap.Int64("size", att.Size))
			continue
		}
		key := storage.AttachmentKey(msg.Metadata.MessageID, att.Filename)
		storedKey, err := p.store.StoreAttachment(ctx, key, att.Data, att.ContentType)
		if err != nil {
			p.logger.Error("failed to store attachment", zap.Error(err), zap.String("filename", att.Filename))
			continue
		}
		refs = append(refs, models.AttachmentRef{
			Filename:    att.Filename,
			S3Key:       storedKey,
			ContentType: att.ContentType,
			Size:        att.Size,
		})
	}
	return refs
}

// mergeMetadata folds newly-learned fields into the project record: the
// name only while it is still the placeholder, the address and people
// whenever the extraction supplies them.
func (p *Processor) mergeMetadata(ctx context.Context, tenantID, projectID string, extracted *models.ExtractedData) error {
	var patch models.ProjectPatch

	if extracted.ProjectName != "" {
		project, err := p.projects.Get(ctx, tenantID, projectID)
		if err != nil {
			return err
		}
		if project != nil && (project.ProjectName == "" || project.ProjectName == models.PlaceholderProjectName) {
			patch.ProjectName = &extracted.ProjectName
		}
	}
	if extracted.ProjectAddress != "" {
		patch.ProjectAddress = &extracted.ProjectAddress
	}
	if len(extracted.PeopleMentioned) > 0 {
		patch.PeopleMentioned = extracted.PeopleMentioned
	}

	if patch.IsZero() {
		return nil
	}
	return p.projects.Update(ctx, tenantID, projectID, patch)
}
