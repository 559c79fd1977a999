package tree

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/treechain/backend/internal/logger"
	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/observability"
	"github.com/treechain/backend/internal/store"
)

const coll = "treeNodes10D"

type fakeFinder struct {
	mu    sync.Mutex
	nodes map[string]*models.Node
	errs  map[string]error
	calls map[string]int
}

func newFakeFinder() *fakeFinder {
	return &fakeFinder{
		nodes: map[string]*models.Node{},
		errs:  map[string]error{},
		calls: map[string]int{},
	}
}

func (f *fakeFinder) FindByID(_ context.Context, collection, id string) (*models.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	if collection != coll {
		return nil, nil
	}
	return f.nodes[id], nil
}

func (f *fakeFinder) add(id string, children ...string) {
	f.nodes[id] = &models.Node{ID: id, Children: children}
}

// saturate builds a perfect tree of the given depth rooted at "r" and
// returns the number of nodes.
func (f *fakeFinder) saturate(branching, depth int) int {
	count := 0
	var build func(id string, d int)
	build = func(id string, d int) {
		count++
		if d == depth {
			f.add(id)
			return
		}
		var kids []string
		for i := 0; i < branching; i++ {
			kids = append(kids, fmt.Sprintf("%s.%d", id, i))
		}
		f.add(id, kids...)
		for _, k := range kids {
			build(k, d+1)
		}
	}
	build("r", 0)
	return count
}

func newEngine(f *fakeFinder) *Engine {
	return NewEngine(f, logger.Nop(), 4)
}

func TestLeafNode(t *testing.T) {
	f := newFakeFinder()
	f.add("r")

	m, err := newEngine(f).Levels(context.Background(), coll, "r", 2)
	require.NoError(t, err)
	assert.Equal(t, Metrics{Level: 0, LevelComplete: 0}, m)
}

func TestSaturatedTrees(t *testing.T) {
	for _, tc := range []struct{ branching, depth int }{{1, 5}, {2, 1}, {2, 3}, {3, 2}} {
		t.Run(fmt.Sprintf("b%d_d%d", tc.branching, tc.depth), func(t *testing.T) {
			f := newFakeFinder()
			f.saturate(tc.branching, tc.depth)

			m, err := newEngine(f).Levels(context.Background(), coll, "r", tc.branching)
			require.NoError(t, err)
			assert.Equal(t, Metrics{Level: tc.depth, LevelComplete: tc.depth}, m)
		})
	}
}

func TestPartiallyFilledRoot(t *testing.T) {
	f := newFakeFinder()
	f.add("r", "a")
	f.add("a")

	m, err := newEngine(f).Levels(context.Background(), coll, "r", 2)
	require.NoError(t, err)
	assert.Equal(t, Metrics{Level: 1, LevelComplete: 0}, m)
}

func TestShallowGapMasksDeeperSaturation(t *testing.T) {
	f := newFakeFinder()
	// level 1 holds one of two nodes; level 2 below it is full
	f.add("r", "a")
	f.add("a", "b", "c")
	f.add("b")
	f.add("c")

	m, err := newEngine(f).Levels(context.Background(), coll, "r", 2)
	require.NoError(t, err)
	assert.Equal(t, Metrics{Level: 2, LevelComplete: 0}, m)
}

func TestMissingStartNode(t *testing.T) {
	f := newFakeFinder()

	m, err := newEngine(f).Levels(context.Background(), coll, "ghost", 2)
	require.NoError(t, err)
	assert.Equal(t, Metrics{}, m)
}

func TestMissingChildIsSkippedAndCounted(t *testing.T) {
	f := newFakeFinder()
	f.add("r", "a", "gone")
	f.add("a", "x")
	f.add("x")
	missing := observability.MalformedChildRefs.WithLabelValues(observability.ReasonMissing)
	before := testutil.ToFloat64(missing)

	m, err := newEngine(f).Levels(context.Background(), coll, "r", 2)
	require.NoError(t, err)
	assert.Equal(t, Metrics{Level: 2, LevelComplete: 0}, m)
	assert.Equal(t, before+1, testutil.ToFloat64(missing))
}

func TestAllChildrenMissingActsAsLeaf(t *testing.T) {
	f := newFakeFinder()
	f.add("r", "a")
	f.add("a", "gone1", "gone2")

	m, err := newEngine(f).Levels(context.Background(), coll, "r", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Level)
	assert.Equal(t, 1, m.LevelComplete)
}

func TestCycleTerminates(t *testing.T) {
	f := newFakeFinder()
	f.add("r", "a")
	f.add("a", "r")
	cycles := observability.MalformedChildRefs.WithLabelValues(observability.ReasonCycle)
	before := testutil.ToFloat64(cycles)

	m, err := newEngine(f).Levels(context.Background(), coll, "r", 1)
	require.NoError(t, err)
	assert.Equal(t, Metrics{Level: 1, LevelComplete: 1}, m)
	assert.Greater(t, testutil.ToFloat64(cycles), before)
}

func TestSharedChildrenCountPerReference(t *testing.T) {
	f := newFakeFinder()
	f.add("r", "a", "b")
	f.add("a", "x", "y")
	f.add("b", "x", "y")
	f.add("x")
	f.add("y")
	cycles := observability.MalformedChildRefs.WithLabelValues(observability.ReasonCycle)
	before := testutil.ToFloat64(cycles)

	m, err := newEngine(f).Levels(context.Background(), coll, "r", 2)
	require.NoError(t, err)
	assert.Equal(t, Metrics{Level: 2, LevelComplete: 2}, m)
	assert.Equal(t, before, testutil.ToFloat64(cycles))

	g := newFakeFinder()
	g.add("r", "a", "a")
	g.add("a")
	m, err = newEngine(g).Levels(context.Background(), coll, "r", 2)
	require.NoError(t, err)
	assert.Equal(t, Metrics{Level: 1, LevelComplete: 1}, m)
}

func TestLevelIgnoresChildOrder(t *testing.T) {
	build := func(order ...string) *fakeFinder {
		f := newFakeFinder()
		f.add("r", order...)
		f.add("short")
		f.add("long", "l1")
		f.add("l1", "l2")
		f.add("l2")
		return f
	}

	a, err := newEngine(build("short", "long")).Levels(context.Background(), coll, "r", 2)
	require.NoError(t, err)
	b, err := newEngine(build("long", "short")).Levels(context.Background(), coll, "r", 2)
	require.NoError(t, err)
	assert.Equal(t, a.Level, b.Level)
	assert.Equal(t, 3, a.Level)
}

func TestStoreUnavailableIsFatal(t *testing.T) {
	f := newFakeFinder()
	f.add("r", "a", "b")
	f.add("a")
	f.errs["b"] = fmt.Errorf("dial tcp: %w", store.ErrUnavailable)

	_, err := newEngine(f).Levels(context.Background(), coll, "r", 2)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestOtherChildLookupErrorsAreAbsorbed(t *testing.T) {
	f := newFakeFinder()
	f.add("r", "a", "b")
	f.add("a")
	f.errs["b"] = errors.New("cannot decode node")

	m, err := newEngine(f).Levels(context.Background(), coll, "r", 2)
	require.NoError(t, err)
	assert.Equal(t, Metrics{Level: 1, LevelComplete: 0}, m)
}

func TestStartLookupErrorIsReturned(t *testing.T) {
	f := newFakeFinder()
	f.errs["r"] = store.ErrUnavailable

	_, err := newEngine(f).Levels(context.Background(), coll, "r", 2)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestEachNodeFetchedOncePerCall(t *testing.T) {
	f := newFakeFinder()
	total := f.saturate(2, 4)

	_, err := newEngine(f).Levels(context.Background(), coll, "r", 2)
	require.NoError(t, err)
	assert.Len(t, f.calls, total)
	for id, n := range f.calls {
		assert.Equal(t, 1, n, id)
	}
}

func TestDeepChainWithSingleWorker(t *testing.T) {
	f := newFakeFinder()
	const depth = 500
	for i := 0; i < depth; i++ {
		f.add(fmt.Sprintf("n%d", i), fmt.Sprintf("n%d", i+1))
	}
	f.add(fmt.Sprintf("n%d", depth))

	m, err := NewEngine(f, logger.Nop(), 1).Levels(context.Background(), coll, "n0", 1)
	require.NoError(t, err)
	assert.Equal(t, Metrics{Level: depth, LevelComplete: depth}, m)
}

func TestConcurrentCallsShareEngine(t *testing.T) {
	f := newFakeFinder()
	f.saturate(3, 3)
	e := newEngine(f)

	var wg sync.WaitGroup
	results := make([]Metrics, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := e.Levels(context.Background(), coll, "r", 3)
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}
	wg.Wait()
	for _, m := range results {
		assert.Equal(t, Metrics{Level: 3, LevelComplete: 3}, m)
	}
}
