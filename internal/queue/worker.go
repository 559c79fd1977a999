package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/treechain/backend/internal/logger"
	"github.com/treechain/backend/internal/observability"
)

const pollTimeout = time.Second

// Worker processes jobs from a source with a fixed pool of goroutines
type Worker struct {
	source     Source
	handlers   map[JobType]JobHandler
	numWorkers int
	log        *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a new worker
func NewWorker(source Source, numWorkers int, log *logger.Logger) *Worker {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Worker{
		source:     source,
		handlers:   make(map[JobType]JobHandler),
		numWorkers: numWorkers,
		log:        log,
	}
}

// RegisterHandler registers a handler for a job type. Handlers must be
// registered before Start.
func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.handlers[jobType] = handler
}

// Start starts the worker goroutines
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)

	w.log.Info("starting workers", "count", w.numWorkers)
	for i := 0; i < w.numWorkers; i++ {
		w.wg.Add(1)
		go w.process(ctx, i)
	}
}

// Stop stops the workers and waits for in-flight jobs
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	w.wg.Wait()
	w.log.Info("workers stopped")
}

func (w *Worker) process(ctx context.Context, workerID int) {
	defer w.wg.Done()

	for ctx.Err() == nil {
		job, err := w.source.Dequeue(ctx, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("error dequeueing job", "worker", workerID, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollTimeout):
			}
			continue
		}
		if job == nil {
			continue
		}
		// in-flight jobs finish even when the pool is stopping
		w.Run(context.WithoutCancel(ctx), job)
	}
}

// Run executes one job and records its outcome on the source
func (w *Worker) Run(ctx context.Context, job *Job) {
	err := w.handle(ctx, job)
	observability.JobsProcessed.WithLabelValues(string(job.Type), observability.Outcome(err)).Inc()

	if err != nil {
		w.log.Warn("job failed", "job", job.ID, "type", job.Type, "retry", job.RetryCount, "error", err)
		if ferr := w.source.Fail(ctx, job, err); ferr != nil {
			w.log.Error("error marking job as failed", "job", job.ID, "error", ferr)
		}
		return
	}
	if cerr := w.source.Complete(ctx, job); cerr != nil {
		w.log.Error("error marking job as completed", "job", job.ID, "error", cerr)
	}
}

func (w *Worker) handle(ctx context.Context, job *Job) (err error) {
	handler, ok := w.handlers[job.Type]
	if !ok {
		return fmt.Errorf("no handler registered for job type %s", job.Type)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return handler(ctx, *job)
}
