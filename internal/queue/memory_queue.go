package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process queue for single-instance runs without
// Redis. Jobs do not survive a restart.
type MemoryQueue struct {
	mu      sync.Mutex
	ready   []*Job
	delayed []*Job
	failed  []*Job
	closed  bool
	notify  chan struct{}
}

var (
	_ Enqueuer = (*MemoryQueue)(nil)
	_ Source   = (*MemoryQueue)(nil)
)

// NewMemoryQueue creates an empty in-memory queue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{notify: make(chan struct{}, 1)}
}

// Enqueue adds a job to the queue
func (q *MemoryQueue) Enqueue(_ context.Context, jobType JobType, payload interface{}, opts ...EnqueueOption) (string, error) {
	job, delay, err := newJob(jobType, payload, uuid.New().String(), opts)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrClosed
	}
	if delay > 0 {
		q.delayed = append(q.delayed, job)
	} else {
		q.ready = append(q.ready, job)
	}
	q.wake()
	return job.ID, nil
}

// wake signals one waiting Dequeue. Callers hold mu.
func (q *MemoryQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Dequeue returns the oldest ready job, waiting up to timeout
func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		job, wait := q.pop()
		if job != nil {
			return job, nil
		}
		var (
			retry <-chan time.Time
			timer *time.Timer
		)
		if wait > 0 {
			timer = time.NewTimer(wait)
			retry = timer.C
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-q.notify:
		case <-retry:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// pop promotes due delayed jobs and takes the first ready one. When none
// is ready it returns how long until the next delayed job is due.
func (q *MemoryQueue) pop() (*Job, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var next time.Duration
	pending := q.delayed[:0]
	for _, j := range q.delayed {
		if !j.RunAt.After(now) {
			q.ready = append(q.ready, j)
			continue
		}
		if d := j.RunAt.Sub(now); next == 0 || d < next {
			next = d
		}
		pending = append(pending, j)
	}
	q.delayed = pending

	if len(q.ready) == 0 {
		return nil, next
	}
	job := q.ready[0]
	q.ready = q.ready[1:]
	job.Status = JobStatusProcessing
	job.UpdatedAt = now
	return job, 0
}

// Complete marks a job as completed
func (q *MemoryQueue) Complete(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Status = JobStatusCompleted
	job.UpdatedAt = time.Now()
	return nil
}

// Fail reschedules the job with backoff while retries remain
func (q *MemoryQueue) Fail(_ context.Context, job *Job, jobErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job.Error = jobErr.Error()
	job.UpdatedAt = time.Now()
	if job.RetryCount < job.MaxRetries {
		job.RetryCount++
		job.Status = JobStatusPending
		job.RunAt = time.Now().Add(calculateBackoff(job.RetryCount))
		q.delayed = append(q.delayed, job)
		q.wake()
		return nil
	}
	job.Status = JobStatusFailed
	q.failed = append(q.failed, job)
	return nil
}

// Failed returns the jobs that exhausted their retries
func (q *MemoryQueue) Failed() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.failed))
	for _, j := range q.failed {
		out = append(out, *j)
	}
	return out
}

// Stats reports queue lengths
func (q *MemoryQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Queue:   "memory",
		Waiting: int64(len(q.ready)),
		Delayed: int64(len(q.delayed)),
		Failed:  int64(len(q.failed)),
	}
}

// Close stops accepting jobs
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
