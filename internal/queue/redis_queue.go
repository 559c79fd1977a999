package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/treechain/backend/internal/config"
	"github.com/treechain/backend/internal/logger"
)

// Redis key prefixes
const (
	queuePrefix   = "queue:"
	delayedPrefix = "delayed:"
	jobPrefix     = "jobs:"
	failedPrefix  = "failed:"
)

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisQueue is a named job queue in Redis. Ready jobs sit in a list,
// delayed ones in a sorted set scored by run time, and job details in
// a hash with a TTL.
type RedisQueue struct {
	client *redis.Client
	name   string
	log    *logger.Logger
}

var (
	_ Enqueuer = (*RedisQueue)(nil)
	_ Source   = (*RedisQueue)(nil)
)

// NewRedisQueue creates a new Redis queue
func NewRedisQueue(client *redis.Client, name string, log *logger.Logger) *RedisQueue {
	return &RedisQueue{client: client, name: name, log: log}
}

func (q *RedisQueue) readyKey() string   { return queuePrefix + q.name }
func (q *RedisQueue) delayedKey() string { return delayedPrefix + q.name }
func (q *RedisQueue) failedKey() string  { return failedPrefix + q.name }

// Enqueue adds a job to the queue
func (q *RedisQueue) Enqueue(ctx context.Context, jobType JobType, payload interface{}, opts ...EnqueueOption) (string, error) {
	job, delay, err := newJob(jobType, payload, uuid.New().String(), opts)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}
	if delay > 0 {
		err = q.schedule(ctx, job)
	} else {
		err = q.push(ctx, job)
	}
	if err != nil {
		return "", err
	}
	return job.ID, nil
}

func (q *RedisQueue) push(ctx context.Context, job *Job) error {
	if err := q.store(ctx, job); err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.readyKey(), job.ID).Err(); err != nil {
		return fmt.Errorf("failed to push job to queue: %w", err)
	}
	return nil
}

func (q *RedisQueue) schedule(ctx context.Context, job *Job) error {
	if err := q.store(ctx, job); err != nil {
		return err
	}
	err := q.client.ZAdd(ctx, q.delayedKey(), &redis.Z{
		Score:  float64(job.RunAt.Unix()),
		Member: job.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add job to delayed queue: %w", err)
	}
	return nil
}

// store saves job details for retrieval
func (q *RedisQueue) store(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.Set(ctx, jobPrefix+job.ID, data, DefaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to store job details: %w", err)
	}
	return nil
}

func (q *RedisQueue) load(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, jobPrefix+id).Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to get job details: %w", err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Dequeue gets a job from the queue
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	q.moveReadyDelayedJobs(ctx)

	res, err := q.client.BRPop(ctx, timeout, q.readyKey()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop job from queue: %w", err)
	}
	if len(res) < 2 {
		return nil, fmt.Errorf("unexpected result format from BRPOP")
	}

	job, err := q.load(ctx, res[1])
	if err != nil {
		return nil, err
	}
	job.Status = JobStatusProcessing
	job.UpdatedAt = time.Now()
	if err := q.store(ctx, job); err != nil {
		q.log.Warn("failed to update job status", "job", job.ID, "error", err)
	}
	return job, nil
}

// moveReadyDelayedJobs moves delayed jobs whose run time has passed to the
// ready list
func (q *RedisQueue) moveReadyDelayedJobs(ctx context.Context) {
	ids, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		q.log.Warn("failed to read delayed jobs", "queue", q.name, "error", err)
		return
	}
	for _, id := range ids {
		// only the caller that removes the entry moves it
		removed, err := q.client.ZRem(ctx, q.delayedKey(), id).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.readyKey(), id).Err(); err != nil {
			q.log.Error("failed to move delayed job", "job", id, "error", err)
		}
	}
}

// Complete marks a job as completed
func (q *RedisQueue) Complete(ctx context.Context, job *Job) error {
	job.Status = JobStatusCompleted
	job.UpdatedAt = time.Now()
	return q.store(ctx, job)
}

// Fail records the failure and schedules a retry with backoff while
// retries remain; exhausted jobs move to the failed list
func (q *RedisQueue) Fail(ctx context.Context, job *Job, jobErr error) error {
	job.Error = jobErr.Error()
	job.UpdatedAt = time.Now()

	if job.RetryCount < job.MaxRetries {
		job.RetryCount++
		job.Status = JobStatusPending
		job.RunAt = time.Now().Add(calculateBackoff(job.RetryCount))
		return q.schedule(ctx, job)
	}

	job.Status = JobStatusFailed
	if err := q.store(ctx, job); err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.failedKey(), job.ID).Err(); err != nil {
		return fmt.Errorf("failed to record failed job: %w", err)
	}
	return nil
}

// Stats reports queue lengths
func (q *RedisQueue) Stats(ctx context.Context) (*Stats, error) {
	pipe := q.client.Pipeline()
	ready := pipe.LLen(ctx, q.readyKey())
	delayed := pipe.ZCard(ctx, q.delayedKey())
	failed := pipe.LLen(ctx, q.failedKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}
	return &Stats{
		Queue:   q.name,
		Waiting: ready.Val(),
		Delayed: delayed.Val(),
		Failed:  failed.Val(),
	}, nil
}

// Stats represents statistics for a queue
type Stats struct {
	Queue   string `json:"queue"`
	Waiting int64  `json:"waiting"`
	Delayed int64  `json:"delayed"`
	Failed  int64  `json:"failed"`
}
