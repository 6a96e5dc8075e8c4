package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myprojectr/backend/internal/ai"
	"github.com/myprojectr/backend/internal/mail"
	"github.com/myprojectr/backend/internal/models"
	"github.com/myprojectr/backend/internal/usage"
	"github.com/myprojectr/backend/pkg/queue"
)

type fakeObjectStore struct {
	emails     map[string][]byte
	storedKeys []string
}

func (f *fakeObjectStore) GetEmail(ctx context.Context, objectKey string) ([]byte, error) {
	raw, ok := f.emails[objectKey]
	if !ok {
		return nil, errors.New("no such object")
	}
	return raw, nil
}

func (f *fakeObjectStore) StoreAttachment(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	f.storedKeys = append(f.storedKeys, key)
	return key, nil
}

type fakeExtractor struct {
	result *models.ExtractedData
	usage  ai.Usage
	err    error
	calls  int
}

func (f *fakeExtractor) ExtractProjectData(ctx context.Context, sender, subject, body, attachmentsSummary string) (*models.ExtractedData, ai.Usage, error) {
	f.calls++
	return f.result, f.usage, f.err
}

func (f *fakeExtractor) SanitizeInput(text string) string { return text }

type fakeTenantDirectory struct {
	byEmail     map[string]*models.Tenant
	bySubdomain map[string]*models.Tenant
}

func (f *fakeTenantDirectory) GetByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	return f.byEmail[email], nil
}

func (f *fakeTenantDirectory) GetBySubdomain(ctx context.Context, subdomain string) (*models.Tenant, error) {
	return f.bySubdomain[subdomain], nil
}

type fakeProjectMetadata struct {
	projects map[string]*models.Project
	patches  []models.ProjectPatch
}

func (f *fakeProjectMetadata) Get(ctx context.Context, tenantID, projectID string) (*models.Project, error) {
	return f.projects[projectID], nil
}

func (f *fakeProjectMetadata) Update(ctx context.Context, tenantID, projectID string, patch models.ProjectPatch) error {
	f.patches = append(f.patches, patch)
	return nil
}

type appended struct {
	tenantID  string
	projectID string
	eventType string
	payload   models.EventPayload
}

type fakeEventLog struct {
	events []appended
	err    error
}

func (f *fakeEventLog) Append(ctx context.Context, tenantID, projectID, eventType string, payload models.EventPayload) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.events = append(f.events, appended{tenantID, projectID, eventType, payload})
	return "evt-1", nil
}

type fakeUsageLedger struct {
	entries []usage.Entry
}

func (f *fakeUsageLedger) Record(ctx context.Context, tenantID string, entry usage.Entry) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeReplyQueue struct {
	payloads []queue.ReplyPayload
	err      error
}

func (f *fakeReplyQueue) EnqueueReply(ctx context.Context, payload queue.ReplyPayload) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func rawEmail(from, to, subject, body string, extraHeaders ...string) []byte {
	lines := []string{"From: " + from, "To: " + to, "Subject: " + subject, "Message-ID: <msg-1@example.com>"}
	lines = append(lines, extraHeaders...)
	lines = append(lines, "", body, "")
	return []byte(strings.Join(lines, "\r\n"))
}

type pipeline struct {
	store     *fakeObjectStore
	extractor *fakeExtractor
	tenants   *fakeTenantDirectory
	projects  *fakeProjectStore
	metadata  *fakeProjectMetadata
	events    *fakeEventLog
	ledger    *fakeUsageLedger
	replies   *fakeReplyQueue
	processor *Processor
}

func newPipeline(t *testing.T, raw []byte, extracted *models.ExtractedData) *pipeline {
	t.Helper()
	p := &pipeline{
		store:     &fakeObjectStore{emails: map[string][]byte{"emails/msg-1": raw}},
		extractor: &fakeExtractor{result: extracted, usage: ai.Usage{Model: "gpt-4o-mini", TotalTokens: 900, CostUSD: 0.0004}},
		tenants: &fakeTenantDirectory{
			byEmail:     map[string]*models.Tenant{"acme@myprojectr.com": {TenantID: "TEN-1", Subdomain: "acme"}},
			bySubdomain: map[string]*models.Tenant{"acme": {TenantID: "TEN-1", Subdomain: "acme"}},
		},
		projects: &fakeProjectStore{},
		metadata: &fakeProjectMetadata{projects: map[string]*models.Project{}},
		events:   &fakeEventLog{},
		ledger:   &fakeUsageLedger{},
		replies:  &fakeReplyQueue{},
	}
	p.processor = NewProcessor(p.store, mail.NewParser(nil), p.extractor, p.tenants,
		NewResolver(p.projects, nil), p.metadata, p.events, p.ledger, p.replies,
		Config{MaxAttachmentSizeMB: 25, EmailDomain: "myprojectr.com"}, nil)
	return p
}

func TestProcess_FullPipelineForNewClient(t *testing.T) {
	raw := rawEmail("Dave Client <dave@example.com>", "acme@myprojectr.com", "Kitchen start date", "We start Monday.")
	p := newPipeline(t, raw, &models.ExtractedData{
		ProjectName:      "Kitchen Remodel",
		PeopleMentioned:  []string{"Sue", "Bob"},
		RequiresResponse: true,
	})

	err := p.processor.Process(context.Background(), Notification{ObjectKey: "emails/msg-1", Recipient: "acme@myprojectr.com"})
	require.NoError(t, err)

	require.Len(t, p.events.events, 1)
	ev := p.events.events[0]
	assert.Equal(t, "TEN-1", ev.tenantID)
	assert.Equal(t, models.EventTypeEmailReceived, ev.eventType)
	assert.Equal(t, "dave@example.com", ev.payload.Sender)
	assert.Equal(t, "emails/msg-1", ev.payload.RawS3Key)
	require.NotNil(t, ev.payload.Extracted)
	assert.Equal(t, "Kitchen Remodel", ev.payload.Extracted.ProjectName)

	// New project: creation already carries the extracted details, no merge.
	assert.Equal(t, 1, p.projects.createCalls)
	assert.Equal(t, []string{"Sue", "Bob"}, p.projects.createAttrs.PeopleMentioned)
	assert.Empty(t, p.metadata.patches)

	require.Len(t, p.ledger.entries, 1)
	assert.Equal(t, "openai", p.ledger.entries[0].Provider)
	assert.Equal(t, 900, p.ledger.entries[0].Tokens)

	require.Len(t, p.replies.payloads, 1)
	assert.Equal(t, "response", p.replies.payloads[0].ReplyType)
	assert.Equal(t, "evt-1", p.replies.payloads[0].EventID)
	assert.Equal(t, "dave@example.com", p.replies.payloads[0].Recipient)
}

func TestProcess_ExistingProjectMergesMetadata(t *testing.T) {
	raw := rawEmail("dave@example.com", "project+PROJ-known@acme.myprojectr.com", "Address confirmed", "It is 12 Oak St.")
	p := newPipeline(t, raw, &models.ExtractedData{
		ProjectName:    "Kitchen Remodel",
		ProjectAddress: "12 Oak St",
	})
	known := &models.Project{TenantID: "TEN-1", ProjectID: "PROJ-known", ProjectName: models.PlaceholderProjectName, Status: models.ProjectStatusActive}
	p.projects.byID = map[string]*models.Project{"PROJ-known": known}
	p.metadata.projects["PROJ-known"] = known

	err := p.processor.Process(context.Background(), Notification{ObjectKey: "emails/msg-1", Recipient: "acme@myprojectr.com"})
	require.NoError(t, err)

	assert.Zero(t, p.projects.createCalls)
	require.Len(t, p.metadata.patches, 1)
	patch := p.metadata.patches[0]
	require.NotNil(t, patch.ProjectName)
	assert.Equal(t, "Kitchen Remodel", *patch.ProjectName)
	require.NotNil(t, patch.ProjectAddress)
	assert.Equal(t, "12 Oak St", *patch.ProjectAddress)

	// Acknowledgment when no response is required.
	require.Len(t, p.replies.payloads, 1)
	assert.Equal(t, "acknowledgment", p.replies.payloads[0].ReplyType)
}

func TestProcess_NamedProjectNotRenamed(t *testing.T) {
	raw := rawEmail("dave@example.com", "project+PROJ-known@acme.myprojectr.com", "Update", "Progress.")
	p := newPipeline(t, raw, &models.ExtractedData{ProjectName: "Different Name"})
	known := &models.Project{TenantID: "TEN-1", ProjectID: "PROJ-known", ProjectName: "Kitchen Remodel", Status: models.ProjectStatusActive}
	p.projects.byID = map[string]*models.Project{"PROJ-known": known}
	p.metadata.projects["PROJ-known"] = known

	err := p.processor.Process(context.Background(), Notification{ObjectKey: "emails/msg-1", Recipient: "acme@myprojectr.com"})
	require.NoError(t, err)
	assert.Empty(t, p.metadata.patches)
}

func TestProcess_AutoReplySkipped(t *testing.T) {
	raw := rawEmail("dave@example.com", "acme@myprojectr.com", "Automatic reply: away", "I am out.")
	p := newPipeline(t, raw, &models.ExtractedData{})

	err := p.processor.Process(context.Background(), Notification{ObjectKey: "emails/msg-1", Recipient: "acme@myprojectr.com"})
	require.NoError(t, err)
	assert.Zero(t, p.extractor.calls)
	assert.Empty(t, p.events.events)
	assert.Empty(t, p.ledger.entries)
}

func TestProcess_AllowlistRejection(t *testing.T) {
	raw := rawEmail("dave@evil.com", "acme@myprojectr.com", "Spam", "Buy now.")
	p := newPipeline(t, raw, &models.ExtractedData{})
	p.processor.cfg.EnableSenderAllowlist = true
	p.processor.cfg.AllowedSenderDomains = []string{"example.com"}

	err := p.processor.Process(context.Background(), Notification{ObjectKey: "emails/msg-1", Recipient: "acme@myprojectr.com"})
	require.NoError(t, err)
	assert.Zero(t, p.extractor.calls)
	assert.Empty(t, p.events.events)
}

func TestProcess_SubdomainTenantFallback(t *testing.T) {
	raw := rawEmail("dave@example.com", "project+PROJ-x@acme.myprojectr.com", "Hi", "Hello.")
	p := newPipeline(t, raw, &models.ExtractedData{})

	err := p.processor.Process(context.Background(), Notification{ObjectKey: "emails/msg-1", Recipient: "hello@acme.myprojectr.com"})
	require.NoError(t, err)
	require.Len(t, p.events.events, 1)
	assert.Equal(t, "TEN-1", p.events.events[0].tenantID)
}

func TestProcess_UnknownTenantFails(t *testing.T) {
	raw := rawEmail("dave@example.com", "nobody@other.com", "Hi", "Hello.")
	p := newPipeline(t, raw, &models.ExtractedData{})

	err := p.processor.Process(context.Background(), Notification{ObjectKey: "emails/msg-1", Recipient: "nobody@other.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tenant")
}

func TestProcess_EnqueueFailureIsNonFatal(t *testing.T) {
	raw := rawEmail("dave@example.com", "acme@myprojectr.com", "Update", "News.")
	p := newPipeline(t, raw, &models.ExtractedData{})
	p.replies.err = errors.New("redis down")

	err := p.processor.Process(context.Background(), Notification{ObjectKey: "emails/msg-1", Recipient: "acme@myprojectr.com"})
	require.NoError(t, err)
	require.Len(t, p.events.events, 1)
	require.Len(t, p.ledger.entries, 1)
}

func TestProcessBatch_IsolatesFailures(t *testing.T) {
	raw := rawEmail("dave@example.com", "acme@myprojectr.com", "Update", "News.")
	p := newPipeline(t, raw, &models.ExtractedData{})

	processed, failed := p.processor.ProcessBatch(context.Background(), []Notification{
		{ObjectKey: "emails/msg-1", Recipient: "acme@myprojectr.com"},
		{ObjectKey: "emails/missing", Recipient: "acme@myprojectr.com"},
		{Recipient: "acme@myprojectr.com"},
	})
	assert.Equal(t, 1, processed)
	assert.Equal(t, 2, failed)
}
