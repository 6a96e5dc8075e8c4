// Package queue implements the Redis-backed job queue between the
// server and the AI worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueAITasks is the Redis list key for AI jobs (estimates, replies).
	QueueAITasks = "worker:ai-tasks"
	// QueueAIDelayed parks retried jobs until their backoff elapses,
	// so a failing job does not block the ones behind it.
	QueueAIDelayed = "worker:ai-tasks:delayed"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the base delay before a retry; it scales with the
	// attempt count.
	RetryBackoff = 10 * time.Second

	// dequeueBlock bounds BLPop so due delayed jobs get promoted.
	dequeueBlock = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeEstimate JobType = "generate_estimate"
	JobTypeReply    JobType = "send_reply"
)

// EstimatePayload is the payload for estimate generation jobs.
type EstimatePayload struct {
	TenantID     string   `json:"tenant_id"`
	ProjectID    string   `json:"project_id"`
	DocumentKeys []string `json:"document_keys"`
	ProjectType  string   `json:"project_type"`
	Trade        string   `json:"trade,omitempty"`
}

// ReplyPayload is the payload for reply/acknowledgment jobs.
type ReplyPayload struct {
	TenantID  string `json:"tenant_id"`
	ProjectID string `json:"project_id"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	ReplyType string `json:"reply_type"` // acknowledgment or response
	EventID   string `json:"event_id"`   // the EMAIL_RECEIVED event carrying the extraction
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueEstimate enqueues an estimate generation job.
func (q *Queue) EnqueueEstimate(ctx context.Context, payload EstimatePayload) error {
	return q.enqueue(ctx, JobTypeEstimate, payload)
}

// EnqueueReply enqueues a reply generation job.
func (q *Queue) EnqueueReply(ctx context.Context, payload ReplyPayload) error {
	return q.enqueue(ctx, JobTypeReply, payload)
}

func (q *Queue) enqueue(ctx context.Context, jobType JobType, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueueAITasks, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued job", zap.String("job_id", job.ID), zap.String("type", string(jobType)))
	return nil
}

// Dequeue returns the next ready job, or (nil, nil) when none arrived
// within the polling window. Due delayed jobs are promoted first.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	if err := q.promoteDue(ctx); err != nil {
		q.logger.Warn("promoting delayed jobs failed", zap.Error(err))
	}
	result, err := q.client.BLPop(ctx, dequeueBlock, QueueAITasks).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry schedules a job for another attempt after a backoff that grows
// with the attempt count. If attempt >= MaxRetries, pushes to DLQ
// instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	readyAt := time.Now().Add(RetryBackoff * time.Duration(job.Attempt))
	if err := q.client.ZAdd(ctx, QueueAIDelayed, redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: raw,
	}).Err(); err != nil {
		return err
	}
	q.logger.Info("job scheduled for retry",
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.Attempt),
		zap.Time("ready_at", readyAt))
	return nil
}

// promoteDue moves delayed jobs whose backoff has elapsed onto the main
// list. The ZRem guards against two workers promoting the same job.
func (q *Queue) promoteDue(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	due, err := q.client.ZRangeByScore(ctx, QueueAIDelayed, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return err
	}
	for _, raw := range due {
		removed, err := q.client.ZRem(ctx, QueueAIDelayed, raw).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.RPush(ctx, QueueAITasks, raw).Err(); err != nil {
			return err
		}
	}
	return nil
}
