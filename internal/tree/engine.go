// Package tree computes per-node depth metrics over one chain's tree.
package tree

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/treechain/backend/internal/logger"
	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/observability"
	"github.com/treechain/backend/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Metrics are the depth figures of one node
type Metrics struct {
	// Level is the number of edges on the longest path to a resolvable leaf.
	Level int `json:"level"`
	// LevelComplete is the deepest breadth-first level holding exactly
	// branching^level nodes, counting from 0 at the node itself. It stops at
	// the first level that falls short even if deeper levels are full.
	LevelComplete int `json:"level_complete"`
}

// Engine computes Metrics. It is safe for concurrent use.
type Engine struct {
	finder store.NodeFinder
	log    *logger.Logger
	// workers bounds the goroutines fanning out over children, engine-wide.
	// When none is free the subtree is walked inline instead.
	workers *semaphore.Weighted
	limit   int
}

// NewEngine creates an engine reading nodes through finder
func NewEngine(finder store.NodeFinder, log *logger.Logger, concurrency int) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		finder:  finder,
		log:     log,
		workers: semaphore.NewWeighted(int64(concurrency)),
		limit:   concurrency,
	}
}

// Levels computes Metrics for nodeID in collection. A missing start node
// yields zero Metrics. Unresolvable or cyclic child references are skipped
// and reported; store unavailability aborts the whole computation.
func (e *Engine) Levels(ctx context.Context, collection, nodeID string, branching int) (Metrics, error) {
	ctx, span := observability.Tracer().Start(ctx, "tree.Levels")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection), attribute.String("node", nodeID))

	w := &walk{
		engine:     e,
		collection: collection,
		nodes:      make(map[string]*models.Node),
		reported:   make(map[string]bool),
	}

	root, err := w.fetch(ctx, nodeID)
	if err != nil {
		span.RecordError(err)
		return Metrics{}, err
	}
	if root == nil {
		return Metrics{}, nil
	}

	level, err := w.depth(ctx, root, []string{root.ID})
	if err != nil {
		span.RecordError(err)
		return Metrics{}, err
	}
	complete, err := w.levelComplete(ctx, root, branching)
	if err != nil {
		span.RecordError(err)
		return Metrics{}, err
	}
	return Metrics{Level: level, LevelComplete: complete}, nil
}

// walk is the scope of one Levels call. nodes caches every lookup, absent
// ones as nil, so the breadth-first pass reuses what the depth pass read.
type walk struct {
	engine     *Engine
	collection string

	mu       sync.Mutex
	nodes    map[string]*models.Node
	reported map[string]bool
}

func (w *walk) fetch(ctx context.Context, id string) (*models.Node, error) {
	w.mu.Lock()
	node, ok := w.nodes[id]
	w.mu.Unlock()
	if ok {
		return node, nil
	}

	observability.NodeLookups.Inc()
	node, err := w.engine.finder.FindByID(ctx, w.collection, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find node %s: %w", id, err)
	}

	w.mu.Lock()
	w.nodes[id] = node
	w.mu.Unlock()
	return node, nil
}

// child resolves a child reference. Only store unavailability and
// cancellation are returned as errors; anything else is a malformed branch
// reported and treated as absent.
func (w *walk) child(ctx context.Context, parentID, childID string) (*models.Node, error) {
	node, err := w.fetch(ctx, childID)
	switch {
	case err == nil && node != nil:
		return node, nil
	case err == nil:
		w.malformed(observability.ReasonMissing, parentID, childID, nil)
		return nil, nil
	case errors.Is(err, store.ErrUnavailable), ctx.Err() != nil:
		return nil, err
	default:
		w.malformed(observability.ReasonLookupErr, parentID, childID, err)
		return nil, nil
	}
}

// malformed reports a skipped reference once per walk; both passes see it.
func (w *walk) malformed(reason, parentID, childID string, err error) {
	key := reason + "|" + parentID + "|" + childID
	w.mu.Lock()
	dup := w.reported[key]
	w.reported[key] = true
	w.mu.Unlock()
	if dup {
		return
	}

	observability.MalformedChildRefs.WithLabelValues(reason).Inc()
	kv := []interface{}{"collection", w.collection, "parent", parentID, "child", childID, "reason", reason}
	if err != nil {
		kv = append(kv, "error", err)
	}
	w.engine.log.Warn("skipping child reference", kv...)
}

// depth returns 1 + the deepest resolvable child, or 0 when none resolves.
// path holds the ids from the start node down to node.
func (w *walk) depth(ctx context.Context, node *models.Node, path []string) (int, error) {
	if len(node.Children) == 0 {
		return 0, nil
	}

	depths := make([]int, len(node.Children))
	g, gctx := errgroup.WithContext(ctx)
	for i, childID := range node.Children {
		if contains(path, childID) {
			w.malformed(observability.ReasonCycle, node.ID, childID, nil)
			depths[i] = -1
			continue
		}
		i, childID := i, childID
		visit := func() error {
			child, err := w.child(gctx, node.ID, childID)
			if err != nil {
				return err
			}
			if child == nil {
				depths[i] = -1
				return nil
			}
			d, err := w.depth(gctx, child, append(path[:len(path):len(path)], childID))
			if err != nil {
				return err
			}
			depths[i] = d
			return nil
		}
		if w.engine.workers.TryAcquire(1) {
			g.Go(func() error {
				defer w.engine.workers.Release(1)
				return visit()
			})
			continue
		}
		if err := visit(); err != nil {
			_ = g.Wait()
			return 0, err
		}
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	deepest := -1
	for _, d := range depths {
		if d > deepest {
			deepest = d
		}
	}
	return deepest + 1, nil
}

// levelComplete expands breadth-first, keeping each node's children in
// order, while every level holds exactly branching^level nodes. Each entry
// counts once per reference, so a child listed twice is counted twice; only
// a reference back to an ancestor on the entry's own path is cut.
func (w *walk) levelComplete(ctx context.Context, root *models.Node, branching int) (int, error) {
	type entry struct {
		node *models.Node
		path []string
	}
	complete := -1
	expected := 1
	frontier := []entry{{node: root, path: []string{root.ID}}}

	for len(frontier) > 0 {
		if len(frontier) != expected {
			break
		}
		complete++

		type ref struct {
			parent string
			child  string
			path   []string
		}
		var refs []ref
		for _, e := range frontier {
			for _, c := range e.node.Children {
				if contains(e.path, c) {
					w.malformed(observability.ReasonCycle, e.node.ID, c, nil)
					continue
				}
				refs = append(refs, ref{
					parent: e.node.ID,
					child:  c,
					path:   append(e.path[:len(e.path):len(e.path)], c),
				})
			}
		}

		resolved := make([]*models.Node, len(refs))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(w.engine.limit)
		for i, r := range refs {
			i, r := i, r
			g.Go(func() error {
				node, err := w.child(gctx, r.parent, r.child)
				resolved[i] = node
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return 0, err
		}

		next := make([]entry, 0, len(resolved))
		for i, n := range resolved {
			if n != nil {
				next = append(next, entry{node: n, path: refs[i].path})
			}
		}
		frontier = next

		if branching > 0 && expected > math.MaxInt/branching {
			// no frontier can be this large
			break
		}
		expected *= branching
	}
	return complete, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
