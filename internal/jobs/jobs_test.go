package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/treechain/backend/internal/logger"
	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/queue"
	"github.com/treechain/backend/internal/store"
	"github.com/treechain/backend/internal/store/sqlstore/sqltest"
)

func jobWith(t *testing.T, jobType queue.JobType, payload interface{}) queue.Job {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return queue.Job{ID: "job-1", Type: jobType, Payload: data}
}

func TestParentRewardCreditsParent(t *testing.T) {
	f := sqltest.New(t)
	admin, ada := f.User("admin"), f.User("ada")
	chain := f.Chain("10D", 2, admin)
	child := f.Child(chain, chain.RootNode, ada)
	ctx := context.Background()

	j := NewParentRewardJob(f.Store, logger.Nop())
	payload := ParentRewardPayload{
		Collection: chain.Collection(),
		ParentNode: chain.RootNode,
		ChildNode:  child,
		Amount:     chain.ParentReward(),
	}
	require.NoError(t, j.Process(ctx, jobWith(t, queue.JobTypeParentReward, payload)))
	require.NoError(t, j.Process(ctx, jobWith(t, queue.JobTypeParentReward, payload)))

	root, err := f.Store.FindByID(ctx, chain.Collection(), chain.RootNode)
	require.NoError(t, err)
	assert.Equal(t, 2.0, root.TotalEarning)
}

func TestParentRewardMissingParent(t *testing.T) {
	f := sqltest.New(t)
	admin := f.User("admin")
	chain := f.Chain("10D", 2, admin)

	err := NewParentRewardJob(f.Store, logger.Nop()).Process(context.Background(),
		jobWith(t, queue.JobTypeParentReward, ParentRewardPayload{
			Collection: chain.Collection(),
			ParentNode: "00000000-0000-0000-0000-000000000000",
			Amount:     1,
		}))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestParentRewardRejectsBadPayload(t *testing.T) {
	job := queue.Job{Type: queue.JobTypeParentReward, Payload: json.RawMessage(`"nope"`)}
	err := NewParentRewardJob(nil, logger.Nop()).Process(context.Background(), job)
	assert.Error(t, err)
}

func TestRecountStoresRootTotal(t *testing.T) {
	f := sqltest.New(t)
	admin := f.User("admin")
	chain := f.Chain("10D", 2, admin)
	levels := f.Saturate(chain, chain.RootNode, admin, 2)
	f.Dangling(chain, levels[1][0])
	ctx := context.Background()

	err := NewRecountJob(f.Store, logger.Nop()).Process(ctx,
		jobWith(t, queue.JobTypeRecountMembers, RecountPayload{ChainID: chain.ID}))
	require.NoError(t, err)

	root, err := f.Store.FindByID(ctx, chain.Collection(), chain.RootNode)
	require.NoError(t, err)
	assert.Equal(t, int64(6), root.TotalMembers)
}

func TestRecountUnknownChain(t *testing.T) {
	f := sqltest.New(t)
	err := NewRecountJob(f.Store, logger.Nop()).Process(context.Background(),
		jobWith(t, queue.JobTypeRecountMembers, RecountPayload{ChainID: "missing"}))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEnqueueRecountsSkipsDeletedChains(t *testing.T) {
	f := sqltest.New(t)
	admin := f.User("admin")
	live := f.Chain("10D", 2, admin)
	gone := f.Chain("3D", 3, admin)
	deleted := true
	_, err := f.Store.UpdateChain(context.Background(), gone.ID, models.ChainUpdate{IsDelete: &deleted})
	require.NoError(t, err)

	q := queue.NewMemoryQueue()
	s := NewScheduler(f.Store, q, 0, logger.Nop())
	n, err := s.EnqueueRecounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	job, err := q.Dequeue(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, job)
	var payload RecountPayload
	require.NoError(t, job.Decode(&payload))
	assert.Equal(t, live.ID, payload.ChainID)
}

func TestRegisteredHandlersRunThroughWorker(t *testing.T) {
	f := sqltest.New(t)
	admin := f.User("admin")
	chain := f.Chain("10D", 2, admin)
	f.Saturate(chain, chain.RootNode, admin, 1)

	q := queue.NewMemoryQueue()
	w := queue.NewWorker(q, 1, logger.Nop())
	RegisterJobHandlers(w, f.Store, logger.Nop())

	ctx := context.Background()
	_, err := q.Enqueue(ctx, queue.JobTypeRecountMembers, RecountPayload{ChainID: chain.ID})
	require.NoError(t, err)
	job, err := q.Dequeue(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, job)

	w.Run(ctx, job)
	assert.Equal(t, queue.JobStatusCompleted, job.Status)
	root, err := f.Store.FindByID(ctx, chain.Collection(), chain.RootNode)
	require.NoError(t, err)
	assert.Equal(t, int64(2), root.TotalMembers)
}
