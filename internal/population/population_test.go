package population_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/pipeline"
	"github.com/treechain/backend/internal/population"
	"github.com/treechain/backend/internal/store"
	"github.com/treechain/backend/internal/store/sqlstore/sqltest"
)

func TestClassifyAcrossChains(t *testing.T) {
	f := sqltest.New(t)
	admin, ada := f.User("admin"), f.User("ada")
	a := f.Chain("10D", 2, admin)
	b := f.Chain("3D", 3, admin)

	// 10D: ada owns one full node, one partial node and two leaves
	full := f.Child(a, a.RootNode, ada)
	f.Saturate(a, full, ada, 1)
	partial := f.Child(a, a.RootNode, ada)
	f.Child(a, partial, admin)
	// 3D: ada owns one leaf
	f.Child(b, b.RootNode, ada)

	chains, err := f.Store.Chains(context.Background())
	require.NoError(t, err)

	report, err := population.NewClassifier(f.Store, 2).Classify(context.Background(), chains, ada, models.FilterNone)
	require.NoError(t, err)

	assert.Equal(t, int64(1), report.FullyPopulated)
	assert.Equal(t, int64(4), report.UnderPopulated)
	assert.Equal(t, int64(5), report.Matching)
	require.Len(t, report.Chains, 2)
	assert.Equal(t, models.ChainPopulation{Chain: "3D", FullyPopulated: 0, UnderPopulated: 1, Matching: 1}, report.Chains[0])
	assert.Equal(t, models.ChainPopulation{Chain: "10D", FullyPopulated: 1, UnderPopulated: 3, Matching: 4}, report.Chains[1])

	for _, c := range report.Chains {
		assert.LessOrEqual(t, c.FullyPopulated+c.UnderPopulated, c.Matching)
	}
}

func TestClassifyMatchingFollowsMode(t *testing.T) {
	f := sqltest.New(t)
	admin, ada := f.User("admin"), f.User("ada")
	a := f.Chain("10D", 2, admin)
	f.Saturate(a, a.RootNode, ada, 2)

	chains, err := f.Store.Chains(context.Background())
	require.NoError(t, err)
	c := population.NewClassifier(f.Store, 4)

	report, err := c.Classify(context.Background(), chains, ada, models.FilterFullyPopulated)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Matching)

	report, err = c.Classify(context.Background(), chains, ada, models.FilterUnderPopulated)
	require.NoError(t, err)
	assert.Equal(t, int64(4), report.Matching)
}

func TestClassifyUnknownUser(t *testing.T) {
	f := sqltest.New(t)
	admin := f.User("admin")
	f.Chain("10D", 2, admin)
	chains, err := f.Store.Chains(context.Background())
	require.NoError(t, err)

	report, err := population.NewClassifier(f.Store, 1).Classify(context.Background(), chains, "nobody", models.FilterNone)
	require.NoError(t, err)
	assert.Zero(t, report.FullyPopulated)
	assert.Zero(t, report.UnderPopulated)
	assert.Zero(t, report.Matching)
}

type failingReader struct {
	store.Reader
}

func (failingReader) CountMatching(context.Context, string, pipeline.Filter) (int64, error) {
	return 0, errors.Join(store.ErrUnavailable, errors.New("connection reset"))
}

func TestClassifyPropagatesStoreFailure(t *testing.T) {
	chains := []models.Chain{{Name: "10D", ChildNodes: 2}, {Name: "3D", ChildNodes: 3}}

	_, err := population.NewClassifier(failingReader{}, 2).Classify(context.Background(), chains, "u", models.FilterNone)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}
