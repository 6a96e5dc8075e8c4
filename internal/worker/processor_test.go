package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myprojectr/backend/internal/ai"
	"github.com/myprojectr/backend/internal/models"
	"github.com/myprojectr/backend/internal/usage"
	"github.com/myprojectr/backend/pkg/queue"
)

type fakeEstimator struct {
	estimate    *models.Estimate
	estimateErr error
	reply       string
	replyErr    error

	gotDocs      string
	gotReplyType string
	gotExtracted *models.ExtractedData
}

func (f *fakeEstimator) GenerateEstimate(ctx context.Context, documentsText, projectType, trade string) (*models.Estimate, ai.Usage, error) {
	f.gotDocs = documentsText
	return f.estimate, ai.Usage{Model: "gpt-4o", TotalTokens: 4000, CostUSD: 0.03}, f.estimateErr
}

func (f *fakeEstimator) GenerateReply(ctx context.Context, subject, sender string, extracted *models.ExtractedData, replyType string) (string, ai.Usage, error) {
	f.gotReplyType = replyType
	f.gotExtracted = extracted
	return f.reply, ai.Usage{Model: "gpt-4o-mini", TotalTokens: 600, CostUSD: 0.0003}, f.replyErr
}

func (f *fakeEstimator) SanitizeInput(text string) string { return text }

type fakeObjectStore struct {
	objects map[string][]byte
}

func (f *fakeObjectStore) GetAttachment(ctx context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return data, nil
}

type appended struct {
	tenantID  string
	projectID string
	eventType string
	payload   models.EventPayload
}

type fakeEventLog struct {
	events []models.Event
	added  []appended
}

func (f *fakeEventLog) Append(ctx context.Context, tenantID, projectID, eventType string, payload models.EventPayload) (string, error) {
	f.added = append(f.added, appended{tenantID, projectID, eventType, payload})
	return "evt-new", nil
}

func (f *fakeEventLog) ListByProject(ctx context.Context, tenantID, projectID string, limit int32) ([]models.Event, error) {
	return f.events, nil
}

type fakeUsageLedger struct {
	entries []usage.Entry
}

func (f *fakeUsageLedger) Record(ctx context.Context, tenantID string, entry usage.Entry) error {
	f.entries = append(f.entries, entry)
	return nil
}

type sent struct {
	to, subject, body, inReplyTo string
}

type fakeMailer struct {
	sent []sent
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, to, subject, body, inReplyTo string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sent{to, subject, body, inReplyTo})
	return nil
}

type fakeTaskQueue struct {
	jobs    []*queue.Job
	cancel  context.CancelFunc
	retried []*queue.Job
}

func (f *fakeTaskQueue) Dequeue(ctx context.Context) (*queue.Job, error) {
	if len(f.jobs) == 0 {
		if f.cancel != nil {
			f.cancel()
		}
		return nil, ctx.Err()
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	return job, nil
}

func (f *fakeTaskQueue) Retry(ctx context.Context, job *queue.Job) error {
	f.retried = append(f.retried, job)
	return nil
}

func jobFor(t *testing.T, jobType queue.JobType, payload any) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Job{ID: "job-1", Type: jobType, Payload: raw}
}

func newTestProcessor(estimator *fakeEstimator, store *fakeObjectStore, events *fakeEventLog, ledger *fakeUsageLedger, mailer *fakeMailer) *Processor {
	return NewProcessor(&fakeTaskQueue{}, estimator, store, events, ledger, mailer, nil)
}

func TestHandle_EstimateJob(t *testing.T) {
	estimator := &fakeEstimator{estimate: &models.Estimate{
		EstimateID: "EST-1",
		Summary:    models.EstimateSummary{Subtotal: 10000, Total: 11000},
	}}
	store := &fakeObjectStore{objects: map[string][]byte{
		"attachments/msg-1/plans.pdf": []byte("scope of work"),
	}}
	events := &fakeEventLog{}
	ledger := &fakeUsageLedger{}
	p := newTestProcessor(estimator, store, events, ledger, &fakeMailer{})

	job := jobFor(t, queue.JobTypeEstimate, queue.EstimatePayload{
		TenantID:     "TEN-1",
		ProjectID:    "PROJ-abc",
		DocumentKeys: []string{"attachments/msg-1/plans.pdf"},
		ProjectType:  "kitchen remodel",
	})
	require.NoError(t, p.Handle(context.Background(), job))

	assert.Contains(t, estimator.gotDocs, "scope of work")
	require.Len(t, events.added, 1)
	assert.Equal(t, models.EventTypeEstimateGenerated, events.added[0].eventType)
	require.NotNil(t, events.added[0].payload.Estimate)
	assert.Equal(t, "EST-1", events.added[0].payload.Estimate.EstimateID)

	require.Len(t, ledger.entries, 1)
	assert.Equal(t, "gpt-4o", ledger.entries[0].Model)
	assert.Equal(t, 4000, ledger.entries[0].Tokens)
}

func TestHandle_EstimateJob_MissingDocumentFails(t *testing.T) {
	p := newTestProcessor(&fakeEstimator{}, &fakeObjectStore{}, &fakeEventLog{}, &fakeUsageLedger{}, &fakeMailer{})

	job := jobFor(t, queue.JobTypeEstimate, queue.EstimatePayload{
		TenantID:     "TEN-1",
		ProjectID:    "PROJ-abc",
		DocumentKeys: []string{"attachments/gone.pdf"},
	})
	require.Error(t, p.Handle(context.Background(), job))
}

func TestHandle_ReplyJob(t *testing.T) {
	extracted := &models.ExtractedData{KeyPoints: []string{"cabinets Tuesday"}}
	estimator := &fakeEstimator{reply: "Thanks, noted for the schedule."}
	events := &fakeEventLog{events: []models.Event{
		{EventID: "evt-src", EventType: models.EventTypeEmailReceived, Payload: models.EventPayload{
			SourceEmailID: "<msg-1@example.com>",
			Extracted:     extracted,
		}},
	}}
	ledger := &fakeUsageLedger{}
	mailer := &fakeMailer{}
	p := newTestProcessor(estimator, &fakeObjectStore{}, events, ledger, mailer)

	job := jobFor(t, queue.JobTypeReply, queue.ReplyPayload{
		TenantID:  "TEN-1",
		ProjectID: "PROJ-abc",
		Recipient: "dave@example.com",
		Subject:   "Kitchen cabinets",
		ReplyType: "acknowledgment",
		EventID:   "evt-src",
	})
	require.NoError(t, p.Handle(context.Background(), job))

	assert.Equal(t, "acknowledgment", estimator.gotReplyType)
	assert.Equal(t, extracted, estimator.gotExtracted)

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "dave@example.com", mailer.sent[0].to)
	assert.Equal(t, "Re: Kitchen cabinets", mailer.sent[0].subject)
	assert.Equal(t, "Thanks, noted for the schedule.", mailer.sent[0].body)
	assert.Equal(t, "<msg-1@example.com>", mailer.sent[0].inReplyTo)

	require.Len(t, events.added, 1)
	assert.Equal(t, models.EventTypeReplySent, events.added[0].eventType)
	assert.Equal(t, "dave@example.com", events.added[0].payload.Recipient)

	require.Len(t, ledger.entries, 1)
	assert.Equal(t, "gpt-4o-mini", ledger.entries[0].Model)
}

func TestHandle_ReplyJob_KeepsExistingRePrefix(t *testing.T) {
	estimator := &fakeEstimator{reply: "ok"}
	mailer := &fakeMailer{}
	p := newTestProcessor(estimator, &fakeObjectStore{}, &fakeEventLog{}, &fakeUsageLedger{}, mailer)

	job := jobFor(t, queue.JobTypeReply, queue.ReplyPayload{
		TenantID:  "TEN-1",
		ProjectID: "PROJ-abc",
		Recipient: "dave@example.com",
		Subject:   "Re: Kitchen cabinets",
		ReplyType: "response",
	})
	require.NoError(t, p.Handle(context.Background(), job))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "Re: Kitchen cabinets", mailer.sent[0].subject)
}

func TestHandle_ReplyJob_SendFailurePropagates(t *testing.T) {
	estimator := &fakeEstimator{reply: "ok"}
	events := &fakeEventLog{}
	p := newTestProcessor(estimator, &fakeObjectStore{}, events, &fakeUsageLedger{}, &fakeMailer{err: errors.New("ses throttled")})

	job := jobFor(t, queue.JobTypeReply, queue.ReplyPayload{
		TenantID:  "TEN-1",
		ProjectID: "PROJ-abc",
		Recipient: "dave@example.com",
		Subject:   "Update",
	})
	require.Error(t, p.Handle(context.Background(), job))
	assert.Empty(t, events.added)
}

func TestHandle_UnknownJobType(t *testing.T) {
	p := newTestProcessor(&fakeEstimator{}, &fakeObjectStore{}, &fakeEventLog{}, &fakeUsageLedger{}, &fakeMailer{})
	err := p.Handle(context.Background(), &queue.Job{ID: "job-1", Type: "mystery"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job type")
}

func TestRun_FailedJobDoesNotBlockQueue(t *testing.T) {
	estimator := &fakeEstimator{reply: "Thanks, we are on it."}
	events := &fakeEventLog{}
	mailer := &fakeMailer{}

	bad := jobFor(t, queue.JobTypeEstimate, queue.EstimatePayload{
		TenantID:     "TEN-1",
		ProjectID:    "PROJ-abc",
		DocumentKeys: []string{"attachments/missing.pdf"},
	})
	good := jobFor(t, queue.JobTypeReply, queue.ReplyPayload{
		TenantID:  "TEN-1",
		ProjectID: "PROJ-abc",
		Recipient: "dave@example.com",
		Subject:   "Kitchen cabinets",
		ReplyType: "response",
	})
	good.ID = "job-2"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := &fakeTaskQueue{jobs: []*queue.Job{bad, good}, cancel: cancel}
	p := NewProcessor(q, estimator, &fakeObjectStore{}, events, &fakeUsageLedger{}, mailer, nil)

	start := time.Now()
	p.Run(ctx)

	// The failing estimate job went back through Retry and the reply
	// behind it was sent right away.
	require.Len(t, q.retried, 1)
	assert.Equal(t, bad.ID, q.retried[0].ID)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "dave@example.com", mailer.sent[0].to)
	assert.Less(t, time.Since(start), queue.RetryBackoff)
}
