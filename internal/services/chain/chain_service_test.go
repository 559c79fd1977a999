package chain

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/treechain/backend/internal/jobs"
	"github.com/treechain/backend/internal/logger"
	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/queue"
	"github.com/treechain/backend/internal/store"
	"github.com/treechain/backend/internal/store/sqlstore/sqltest"
)

func newService(t *testing.T) (*ChainService, *sqltest.Fixture, *queue.MemoryQueue) {
	t.Helper()
	f := sqltest.New(t)
	q := queue.NewMemoryQueue()
	t.Cleanup(q.Close)
	return NewChainService(f.Store, q, logger.Nop()), f, q
}

func TestCreateChain(t *testing.T) {
	svc, f, _ := newService(t)
	admin := f.User("admin")
	ctx := context.Background()

	chain, err := svc.CreateChain(ctx, CreateChainInput{
		Name:             "Gold10",
		SeedAmount:       10,
		ChildNodes:       3,
		ParentPercentage: 20,
		Owner:            admin,
	})
	require.NoError(t, err)
	assert.Equal(t, "gold10", chain.Slug)
	assert.Equal(t, models.ChainEnabled, chain.Status)
	assert.NotEmpty(t, chain.RootNode)

	root, err := f.Store.FindByID(ctx, chain.Collection(), chain.RootNode)
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Equal(t, admin, root.User)

	bySlug, err := svc.GetChainBySlug(ctx, "gold10")
	require.NoError(t, err)
	assert.Equal(t, chain.ID, bySlug.ID)

	_, err = svc.CreateChain(ctx, CreateChainInput{Name: "Gold10", SeedAmount: 1, ChildNodes: 2, Owner: admin})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestCreateChainValidation(t *testing.T) {
	svc, f, _ := newService(t)
	admin := f.User("admin")

	tests := []struct {
		name string
		in   CreateChainInput
	}{
		{"missing name", CreateChainInput{SeedAmount: 1, ChildNodes: 2, Owner: admin}},
		{"zero seed", CreateChainInput{Name: "A", ChildNodes: 2, Owner: admin}},
		{"no branching", CreateChainInput{Name: "A", SeedAmount: 1, Owner: admin}},
		{"percentage over 100", CreateChainInput{Name: "A", SeedAmount: 1, ChildNodes: 2, ParentPercentage: 101, Owner: admin}},
		{"unknown owner", CreateChainInput{Name: "A", SeedAmount: 1, ChildNodes: 2, Owner: "nobody"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateChain(context.Background(), tt.in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestListChainsInvestment(t *testing.T) {
	svc, f, _ := newService(t)
	admin := f.User("admin")
	ctx := context.Background()
	older := f.Chain("A", 2, admin)
	newer := f.Chain("B", 2, admin)
	require.NoError(t, f.Store.SetTotalMembers(ctx, older.Collection(), older.RootNode, 4))
	require.NoError(t, f.Store.SetTotalMembers(ctx, newer.Collection(), newer.RootNode, 1))

	list, err := svc.ListChains(ctx, models.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), list.Total)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 10, list.Limit)
	require.Len(t, list.Chains, 2)
	assert.Equal(t, "B", list.Chains[0].Name)
	assert.Equal(t, 10.0, list.Chains[0].Investment)
	assert.Equal(t, 40.0, list.Chains[1].Investment)
	assert.Equal(t, 50.0, list.TotalInvestment)

	page2, err := svc.ListChains(ctx, models.PageRequest{Page: 2, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page2.Chains, 1)
	assert.Equal(t, "A", page2.Chains[0].Name)
	assert.Equal(t, 40.0, page2.TotalInvestment)

	_, err = svc.ListChains(ctx, models.PageRequest{Page: math.MaxInt64 / 50, Limit: 100})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateChain(t *testing.T) {
	svc, f, _ := newService(t)
	admin := f.User("admin")
	ctx := context.Background()
	chain := f.Chain("A", 2, admin)
	f.Chain("B", 2, admin)

	icon, pct := "star.png", 50.0
	updated, err := svc.UpdateChain(ctx, chain.ID, UpdateChainInput{Icon: &icon, ParentPercentage: &pct})
	require.NoError(t, err)
	assert.Equal(t, icon, updated.Icon)
	assert.Equal(t, 50.0, updated.ParentPercentage)
	assert.Equal(t, 2, updated.ChildNodes)

	taken := "B"
	_, err = svc.UpdateChain(ctx, chain.ID, UpdateChainInput{Name: &taken})
	assert.ErrorIs(t, err, store.ErrConflict)

	bad := 120.0
	_, err = svc.UpdateChain(ctx, chain.ID, UpdateChainInput{ParentPercentage: &bad})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpdateChain(ctx, "missing", UpdateChainInput{Icon: &icon})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPauseDeleteStatus(t *testing.T) {
	svc, f, _ := newService(t)
	admin := f.User("admin")
	ctx := context.Background()
	chain := f.Chain("A", 2, admin)

	paused, err := svc.TogglePause(ctx, chain.ID)
	require.NoError(t, err)
	assert.True(t, paused.IsPause)
	resumed, err := svc.TogglePause(ctx, chain.ID)
	require.NoError(t, err)
	assert.False(t, resumed.IsPause)

	blocked, err := svc.UpdateStatus(ctx, chain.ID, "Blocked")
	require.NoError(t, err)
	assert.Equal(t, models.ChainBlocked, blocked.Status)
	_, err = svc.UpdateStatus(ctx, chain.ID, "archived")
	assert.ErrorIs(t, err, ErrValidation)

	deleted, err := svc.DeleteChain(ctx, chain.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDelete)
}

func TestJoinPlacesBreadthFirst(t *testing.T) {
	svc, f, q := newService(t)
	admin := f.User("admin")
	ctx := context.Background()
	chain := f.Chain("A", 2, admin)

	var placed []string
	for _, name := range []string{"u1", "u2", "u3", "u4", "u5"} {
		node, err := svc.Join(ctx, chain.ID, f.User(name))
		require.NoError(t, err)
		placed = append(placed, node.ID)
	}

	root, err := f.Store.FindByID(ctx, chain.Collection(), chain.RootNode)
	require.NoError(t, err)
	assert.Equal(t, placed[:2], root.Children)
	first, err := f.Store.FindByID(ctx, chain.Collection(), placed[0])
	require.NoError(t, err)
	assert.Equal(t, placed[2:4], first.Children)
	second, err := f.Store.FindByID(ctx, chain.Collection(), placed[1])
	require.NoError(t, err)
	assert.Equal(t, placed[4:], second.Children)

	stats := q.Stats()
	assert.Equal(t, int64(10), stats.Waiting)

	job, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, queue.JobTypeParentReward, job.Type)
	var reward jobs.ParentRewardPayload
	require.NoError(t, job.Decode(&reward))
	assert.Equal(t, chain.RootNode, reward.ParentNode)
	assert.Equal(t, placed[0], reward.ChildNode)
	assert.Equal(t, chain.ParentReward(), reward.Amount)
}

func TestJoinSkipsDanglingReferences(t *testing.T) {
	svc, f, _ := newService(t)
	admin := f.User("admin")
	ctx := context.Background()
	chain := f.Chain("A", 2, admin)
	f.Dangling(chain, chain.RootNode)
	f.Child(chain, chain.RootNode, admin)

	node, err := svc.Join(ctx, chain.ID, f.User("ada"))
	require.NoError(t, err)

	root, err := f.Store.FindByID(ctx, chain.Collection(), chain.RootNode)
	require.NoError(t, err)
	live, err := f.Store.FindByID(ctx, chain.Collection(), root.Children[1])
	require.NoError(t, err)
	assert.Equal(t, []string{node.ID}, live.Children)
}

func TestJoinRefusesClosedChains(t *testing.T) {
	svc, f, _ := newService(t)
	admin := f.User("admin")
	ctx := context.Background()
	chain := f.Chain("A", 2, admin)
	_, err := svc.TogglePause(ctx, chain.ID)
	require.NoError(t, err)

	_, err = svc.Join(ctx, chain.ID, admin)
	assert.ErrorIs(t, err, ErrNotJoinable)

	_, err = svc.Join(ctx, "missing", admin)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJoinSurvivesQueueFailure(t *testing.T) {
	svc, f, q := newService(t)
	admin := f.User("admin")
	chain := f.Chain("A", 1, admin)
	q.Close()

	node, err := svc.Join(context.Background(), chain.ID, f.User("ada"))
	require.NoError(t, err)
	assert.NotEmpty(t, node.ID)
}
