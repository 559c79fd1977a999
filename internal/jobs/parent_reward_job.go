package jobs

import (
	"context"
	"fmt"

	"github.com/treechain/backend/internal/logger"
	"github.com/treechain/backend/internal/queue"
	"github.com/treechain/backend/internal/store"
)

// ParentRewardPayload is the payload of a parent reward job
type ParentRewardPayload struct {
	Collection string  `json:"collection"`
	ParentNode string  `json:"parent_node"`
	ChildNode  string  `json:"child_node"`
	Amount     float64 `json:"amount"`
}

// ParentRewardJob credits a parent node's earnings when a member joins
// directly below it
type ParentRewardJob struct {
	store store.NodeStore
	log   *logger.Logger
}

// NewParentRewardJob creates a new parent reward job handler
func NewParentRewardJob(st store.NodeStore, log *logger.Logger) *ParentRewardJob {
	return &ParentRewardJob{store: st, log: log}
}

// Process handles one parent reward job
func (j *ParentRewardJob) Process(ctx context.Context, job queue.Job) error {
	var payload ParentRewardPayload
	if err := job.Decode(&payload); err != nil {
		return fmt.Errorf("failed to unmarshal parent reward payload: %w", err)
	}
	if payload.Amount <= 0 {
		j.log.Info("skipping zero parent reward", "parent", payload.ParentNode, "child", payload.ChildNode)
		return nil
	}

	if err := j.store.AddEarning(ctx, payload.Collection, payload.ParentNode, payload.Amount); err != nil {
		return fmt.Errorf("failed to credit parent node %s: %w", payload.ParentNode, err)
	}

	j.log.Info("credited parent reward",
		"collection", payload.Collection,
		"parent", payload.ParentNode,
		"child", payload.ChildNode,
		"amount", payload.Amount,
	)
	return nil
}
