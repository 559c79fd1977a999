package jobs

import (
	"github.com/treechain/backend/internal/logger"
	"github.com/treechain/backend/internal/queue"
	"github.com/treechain/backend/internal/store"
)

// RegisterJobHandlers registers all job handlers with the worker
func RegisterJobHandlers(w *queue.Worker, st store.NodeStore, log *logger.Logger) {
	w.RegisterHandler(queue.JobTypeParentReward, NewParentRewardJob(st, log).Process)
	w.RegisterHandler(queue.JobTypeRecountMembers, NewRecountJob(st, log).Process)
}
