// Package sqltest builds referral trees in an in-memory SQLite store for
// tests of the packages layered on the node store.
package sqltest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/treechain/backend/internal/config"
	"github.com/treechain/backend/internal/database"
	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/store/sqlstore"
)

// Fixture wraps a migrated store with tree-building helpers
type Fixture struct {
	t     testing.TB
	Store *sqlstore.Store
	clock time.Time
}

// New opens a fresh in-memory database
func New(t testing.TB) *Fixture {
	t.Helper()
	db, err := database.InitDB(config.DatabaseConfig{URL: "file::memory:"}, config.BackendSQLite)
	require.NoError(t, err)
	st := sqlstore.New(db)
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	return &Fixture{t: t, Store: st, clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// User creates a user and returns its id
func (f *Fixture) User(name string) string {
	f.t.Helper()
	u, err := database.CreateUser(f.Store.DB(), name, name+"@example.com")
	require.NoError(f.t, err)
	return u.ID
}

// Chain creates an enabled chain owned by owner. Each call is one minute
// newer than the last, so registry order is creation order reversed.
func (f *Fixture) Chain(name string, branching int, owner string) models.Chain {
	f.t.Helper()
	f.clock = f.clock.Add(time.Minute)
	chain := models.Chain{
		Name:             name,
		Slug:             name,
		SeedAmount:       10,
		ChildNodes:       branching,
		ParentPercentage: 10,
		Status:           models.ChainEnabled,
		CreatedAt:        f.clock,
	}
	root := models.Node{User: owner}
	require.NoError(f.t, f.Store.CreateChain(context.Background(), &chain, &root))
	return chain
}

// Child inserts a node owned by owner under parent and returns its id
func (f *Fixture) Child(chain models.Chain, parent, owner string) string {
	f.t.Helper()
	node := models.Node{User: owner}
	ctx := context.Background()
	require.NoError(f.t, f.Store.InsertNode(ctx, chain.Collection(), &node))
	require.NoError(f.t, f.Store.AppendChild(ctx, chain.Collection(), parent, node.ID, chain.ChildNodes))
	return node.ID
}

// Dangling appends a child reference that resolves to no node
func (f *Fixture) Dangling(chain models.Chain, parent string) string {
	f.t.Helper()
	id := uuid.NewString()
	require.NoError(f.t, f.Store.AppendChild(context.Background(), chain.Collection(), parent, id, chain.ChildNodes))
	return id
}

// Saturate grows a perfect tree of the given depth below parent, every node
// owned by owner. It returns the ids level by level, parent excluded.
func (f *Fixture) Saturate(chain models.Chain, parent, owner string, depth int) [][]string {
	f.t.Helper()
	var levels [][]string
	frontier := []string{parent}
	for d := 0; d < depth; d++ {
		var next []string
		for _, p := range frontier {
			for i := 0; i < chain.ChildNodes; i++ {
				next = append(next, f.Child(chain, p, owner))
			}
		}
		levels = append(levels, next)
		frontier = next
	}
	return levels
}
