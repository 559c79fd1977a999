package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/treechain/backend/internal/logger"
	"github.com/treechain/backend/internal/queue"
	"github.com/treechain/backend/internal/store"
)

// Scheduler enqueues recurring reconciliation work
type Scheduler struct {
	cron     *gocron.Scheduler
	reader   store.Reader
	queue    queue.Enqueuer
	interval time.Duration
	log      *logger.Logger
}

// NewScheduler creates a scheduler that enqueues a recount for every chain
// each interval
func NewScheduler(reader store.Reader, q queue.Enqueuer, interval time.Duration, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:     gocron.NewScheduler(time.UTC),
		reader:   reader,
		queue:    q,
		interval: interval,
		log:      log,
	}
}

// Start starts the recurring schedule
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		s.log.Info("member recount schedule disabled")
		return nil
	}
	_, err := s.cron.Every(s.interval).WaitForSchedule().Do(func() {
		n, err := s.EnqueueRecounts(ctx)
		if err != nil {
			s.log.Error("failed to enqueue member recounts", "error", err)
			return
		}
		s.log.Info("enqueued member recounts", "chains", n)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule member recounts: %w", err)
	}
	s.cron.StartAsync()
	return nil
}

// Stop stops the schedule
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// EnqueueRecounts enqueues a recount job for every chain in the registry
func (s *Scheduler) EnqueueRecounts(ctx context.Context) (int, error) {
	chains, err := s.reader.Chains(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load chain registry: %w", err)
	}
	n := 0
	for _, c := range chains {
		if c.IsDelete {
			continue
		}
		if _, err := s.queue.Enqueue(ctx, queue.JobTypeRecountMembers, RecountPayload{ChainID: c.ID}); err != nil {
			return n, fmt.Errorf("failed to enqueue recount for chain %s: %w", c.Name, err)
		}
		n++
	}
	return n, nil
}
