// Package queue runs background jobs: a Redis-backed queue with delayed
// retries, an in-memory queue for single-process runs, and a worker pool.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"time"
)

// JobType identifies the handler for a job
type JobType string

const (
	// JobTypeParentReward credits a parent node when a child joins below it.
	JobTypeParentReward JobType = "parent_reward"
	// JobTypeRecountMembers refreshes a chain root's stored member count.
	JobTypeRecountMembers JobType = "recount_members"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Default values
const (
	DefaultMaxRetries = 3
	DefaultTTL        = 24 * time.Hour
)

// ErrClosed is returned by a queue that no longer accepts work
var ErrClosed = errors.New("queue closed")

// Job is a unit of background work
type Job struct {
	ID         string          `json:"id"`
	Type       JobType         `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Status     JobStatus       `json:"status"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	RunAt      time.Time       `json:"run_at"`
}

// Decode unmarshals the job payload into v
func (j *Job) Decode(v interface{}) error {
	return json.Unmarshal(j.Payload, v)
}

// JobHandler processes one job
type JobHandler func(ctx context.Context, job Job) error

// Enqueuer accepts jobs
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType JobType, payload interface{}, opts ...EnqueueOption) (string, error)
}

// Source hands jobs to workers and records their outcome
type Source interface {
	// Dequeue waits up to timeout for a job; nil, nil when none arrived.
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)
	Complete(ctx context.Context, job *Job) error
	// Fail records err and reschedules the job while retries remain.
	Fail(ctx context.Context, job *Job, err error) error
}

// EnqueueOptions represents options for enqueueing a job
type EnqueueOptions struct {
	delay      time.Duration
	maxRetries int
	id         string
}

// EnqueueOption is a function that modifies EnqueueOptions
type EnqueueOption func(*EnqueueOptions)

// WithDelay adds a delay to a job
func WithDelay(delay time.Duration) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.delay = delay
	}
}

// WithMaxRetries sets the maximum number of retries for a job
func WithMaxRetries(maxRetries int) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.maxRetries = maxRetries
	}
}

// WithJobID sets a specific job ID
func WithJobID(id string) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.id = id
	}
}

func newJob(jobType JobType, payload interface{}, id string, opts []EnqueueOption) (*Job, time.Duration, error) {
	options := EnqueueOptions{maxRetries: DefaultMaxRetries, id: id}
	for _, opt := range opts {
		opt(&options)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	now := time.Now()
	return &Job{
		ID:         options.id,
		Type:       jobType,
		Payload:    data,
		Status:     JobStatusPending,
		MaxRetries: options.maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
		RunAt:      now.Add(options.delay),
	}, options.delay, nil
}

// calculateBackoff calculates the backoff duration for a retry
func calculateBackoff(retry int) time.Duration {
	// Exponential backoff with jitter
	// Base: 5 seconds
	// Max: 1 hour
	base := 5.0
	max := 3600.0

	seconds := math.Min(max, base*math.Pow(2, float64(retry)))

	// ±20% jitter
	jitter := seconds * 0.2
	seconds = seconds - jitter + (rand.Float64() * jitter * 2)

	return time.Duration(seconds) * time.Second
}
