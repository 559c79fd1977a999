package aggregate

import (
	"context"
	"fmt"

	"github.com/treechain/backend/internal/logger"
	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/observability"
	"github.com/treechain/backend/internal/store"
	"github.com/treechain/backend/internal/tree"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Aggregator runs cross-chain pipelines and annotates their rows with tree
// metrics
type Aggregator struct {
	reader      store.Reader
	engine      *tree.Engine
	log         *logger.Logger
	concurrency int
}

// New creates an Aggregator. concurrency bounds the rows annotated at once.
func New(reader store.Reader, engine *tree.Engine, log *logger.Logger, concurrency int) *Aggregator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Aggregator{reader: reader, engine: engine, log: log, concurrency: concurrency}
}

// UserNodes returns one page of q.UserID's nodes across chains, each
// annotated with its level metrics. sortField must come from ParseSort.
func (a *Aggregator) UserNodes(ctx context.Context, chains []models.Chain, q models.UserNodesQuery, sortField string) ([]models.LeveledNode, error) {
	ctx, span := observability.Tracer().Start(ctx, "aggregate.UserNodes")
	defer span.End()
	span.SetAttributes(attribute.String("user", q.UserID), attribute.Int("chains", len(chains)))

	root, p, err := UserNodesPipeline(chains, q.UserID, q.Filter, sortField, q.Page)
	if err != nil {
		return nil, err
	}
	rows, err := a.reader.Aggregate(ctx, root, p)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to aggregate user nodes: %w", err)
	}
	return a.annotate(ctx, chains, rows)
}

// TopN returns the n highest-earning nodes across chains, annotated with
// level metrics
func (a *Aggregator) TopN(ctx context.Context, chains []models.Chain, n int) ([]models.LeveledNode, error) {
	ctx, span := observability.Tracer().Start(ctx, "aggregate.TopN")
	defer span.End()
	span.SetAttributes(attribute.Int("n", n), attribute.Int("chains", len(chains)))

	root, p, err := TopNPipeline(chains, n)
	if err != nil {
		return nil, err
	}
	rows, err := a.reader.Aggregate(ctx, root, p)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to aggregate top nodes: %w", err)
	}
	return a.annotate(ctx, chains, rows)
}

// Filter returns every node of userID across chains with descendant counts
func (a *Aggregator) Filter(ctx context.Context, chains []models.Chain, userID, sortField string) ([]models.NodeRow, error) {
	ctx, span := observability.Tracer().Start(ctx, "aggregate.Filter")
	defer span.End()

	root, p, err := FilterPipeline(chains, userID, sortField)
	if err != nil {
		return nil, err
	}
	rows, err := a.reader.Aggregate(ctx, root, p)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to aggregate filtered nodes: %w", err)
	}
	return rows, nil
}

// annotate computes level metrics for each row through the chain whose
// collection produced it, then drops the collection marker. Row order is
// kept.
func (a *Aggregator) annotate(ctx context.Context, chains []models.Chain, rows []models.NodeRow) ([]models.LeveledNode, error) {
	byCollection := make(map[string]models.Chain, len(chains))
	for _, c := range chains {
		byCollection[c.Collection()] = c
	}

	for _, row := range rows {
		if _, ok := byCollection[row.CollectionName]; !ok {
			return nil, fmt.Errorf("%w: row %s from collection %q", ErrUnknownChain, row.ID, row.CollectionName)
		}
	}

	out := make([]models.LeveledNode, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i := range rows {
		i, row := i, rows[i]
		chain := byCollection[row.CollectionName]
		g.Go(func() error {
			m, err := a.engine.Levels(gctx, row.CollectionName, row.ID, chain.ChildNodes)
			if err != nil {
				return fmt.Errorf("failed to compute levels for node %s: %w", row.ID, err)
			}
			row.CollectionName = ""
			out[i] = models.LeveledNode{NodeRow: row, Level: m.Level, LevelComplete: m.LevelComplete}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
