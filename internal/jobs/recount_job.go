package jobs

import (
	"context"
	"fmt"

	"github.com/treechain/backend/internal/logger"
	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/pipeline"
	"github.com/treechain/backend/internal/queue"
	"github.com/treechain/backend/internal/store"
)

// RecountPayload is the payload of a member recount job
type RecountPayload struct {
	ChainID string `json:"chain_id"`
}

// RecountJob recomputes a chain root's descendant count and stores it as
// the root's totalMembers, which chain listings read as the chain size
type RecountJob struct {
	store store.NodeStore
	log   *logger.Logger
}

// NewRecountJob creates a new recount job handler
func NewRecountJob(st store.NodeStore, log *logger.Logger) *RecountJob {
	return &RecountJob{store: st, log: log}
}

// Process handles one recount job
func (j *RecountJob) Process(ctx context.Context, job queue.Job) error {
	var payload RecountPayload
	if err := job.Decode(&payload); err != nil {
		return fmt.Errorf("failed to unmarshal recount payload: %w", err)
	}
	chain, err := j.store.GetChain(ctx, payload.ChainID)
	if err != nil {
		return fmt.Errorf("failed to get chain %s: %w", payload.ChainID, err)
	}
	_, err = j.Recount(ctx, chain)
	return err
}

// Recount counts every node reachable from the chain's root and stores the
// result on the root
func (j *RecountJob) Recount(ctx context.Context, chain *models.Chain) (int64, error) {
	if chain.RootNode == "" {
		return 0, fmt.Errorf("chain %s has no root node: %w", chain.Name, store.ErrNotFound)
	}
	coll := chain.Collection()
	rows, err := j.store.Aggregate(ctx, coll, pipeline.Pipeline{
		pipeline.Match{Filter: pipeline.Eq{Field: pipeline.FieldID, Value: chain.RootNode}},
		pipeline.Descendants(coll),
		pipeline.Project{Fields: []pipeline.Projection{
			pipeline.SizeOf(pipeline.FieldTotalMembers, pipeline.DescendantsAs),
		}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count members of chain %s: %w", chain.Name, err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("root node %s of chain %s: %w", chain.RootNode, chain.Name, store.ErrNotFound)
	}

	total := rows[0].TotalMembers
	if err := j.store.SetTotalMembers(ctx, coll, chain.RootNode, total); err != nil {
		return 0, fmt.Errorf("failed to store member count of chain %s: %w", chain.Name, err)
	}
	j.log.Info("recounted chain members", "chain", chain.Name, "total", total)
	return total, nil
}
