package models

import "fmt"

// Event types. Producers may add new ones; consumers must tolerate
// types they do not know.
const (
	EventTypeEmailReceived     = "EMAIL_RECEIVED"
	EventTypeEstimateGenerated = "ESTIMATE_GENERATED"
	EventTypeReplySent         = "REPLY_SENT"
)

// Event is an immutable fact appended to a project's history. Events are
// never updated or deleted; current project state is always the mutable
// Project record plus a replay of its events in timestamp order.
type Event struct {
	TenantID        string       `json:"tenant_id" dynamodbav:"tenant_id"`
	ProjectID       string       `json:"project_id" dynamodbav:"project_id"`
	TenantProjectID string       `json:"-" dynamodbav:"tenant_id_project_id"`
	EventID         string       `json:"event_id" dynamodbav:"event_id"`
	EventType       string       `json:"event_type" dynamodbav:"event_type"`
	EventTimestamp  int64        `json:"event_timestamp" dynamodbav:"event_timestamp"`
	Payload         EventPayload `json:"payload" dynamodbav:"payload"`
}

// EventPayload carries the type-dependent body of an event. Exactly one
// section is populated per event type.
type EventPayload struct {
	// EMAIL_RECEIVED
	SourceEmailID string          `json:"source_email_id,omitempty" dynamodbav:"source_email_id,omitempty"`
	Sender        string          `json:"sender,omitempty" dynamodbav:"sender,omitempty"`
	Subject       string          `json:"subject,omitempty" dynamodbav:"subject,omitempty"`
	RawS3Key      string          `json:"raw_s3_key,omitempty" dynamodbav:"raw_s3_key,omitempty"`
	Attachments   []AttachmentRef `json:"attachments,omitempty" dynamodbav:"attachments,omitempty"`
	Extracted     *ExtractedData  `json:"ai_extracted_data,omitempty" dynamodbav:"ai_extracted_data,omitempty"`

	// ESTIMATE_GENERATED
	Estimate *Estimate `json:"estimate,omitempty" dynamodbav:"estimate,omitempty"`

	// REPLY_SENT
	Recipient string `json:"recipient,omitempty" dynamodbav:"recipient,omitempty"`
	ReplyType string `json:"reply_type,omitempty" dynamodbav:"reply_type,omitempty"`
}

// AttachmentRef points at a stored attachment in the email bucket.
type AttachmentRef struct {
	Filename    string `json:"filename" dynamodbav:"filename"`
	S3Key       string `json:"s3_key" dynamodbav:"s3_key"`
	ContentType string `json:"content_type" dynamodbav:"content_type"`
	Size        int64  `json:"size" dynamodbav:"size"`
}

// EventPartitionKey composes the events table partition key.
func EventPartitionKey(tenantID, projectID string) string {
	return fmt.Sprintf("%s#%s", tenantID, projectID)
}
