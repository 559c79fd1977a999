// Package population counts a user's fully and under-populated nodes per
// chain and across chains.
package population

import (
	"context"
	"fmt"

	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/observability"
	"github.com/treechain/backend/internal/pipeline"
	"github.com/treechain/backend/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Classifier computes population reports
type Classifier struct {
	reader      store.Reader
	concurrency int
}

// NewClassifier creates a Classifier querying at most concurrency chains at
// once
func NewClassifier(reader store.Reader, concurrency int) *Classifier {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Classifier{reader: reader, concurrency: concurrency}
}

// Classify counts, per chain, userID's nodes with exactly the chain's
// branching factor in children, with fewer, and those matching mode. The
// counts cover the whole population, not a page of it.
func (c *Classifier) Classify(ctx context.Context, chains []models.Chain, userID string, mode models.FilterMode) (*models.PopulationReport, error) {
	ctx, span := observability.Tracer().Start(ctx, "population.Classify")
	defer span.End()
	span.SetAttributes(attribute.String("user", userID), attribute.Int("chains", len(chains)))

	perChain := make([]models.ChainPopulation, len(chains))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, chain := range chains {
		i, chain := i, chain
		g.Go(func() error {
			counts, err := c.classifyChain(gctx, chain, userID, mode)
			if err != nil {
				return fmt.Errorf("failed to classify chain %s: %w", chain.Name, err)
			}
			perChain[i] = counts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	report := &models.PopulationReport{Chains: perChain}
	for _, p := range perChain {
		report.FullyPopulated += p.FullyPopulated
		report.UnderPopulated += p.UnderPopulated
		report.Matching += p.Matching
	}
	return report, nil
}

func (c *Classifier) classifyChain(ctx context.Context, chain models.Chain, userID string, mode models.FilterMode) (models.ChainPopulation, error) {
	coll := chain.Collection()
	owned := pipeline.Eq{Field: pipeline.FieldUser, Value: userID}
	out := models.ChainPopulation{Chain: chain.Name}

	full, err := c.reader.CountMatching(ctx, coll,
		pipeline.All(owned, pipeline.PopulationFilter(models.FilterFullyPopulated, chain.ChildNodes)))
	if err != nil {
		return out, err
	}
	out.FullyPopulated = full

	rows, err := c.reader.Aggregate(ctx, coll, pipeline.Pipeline{
		pipeline.Match{Filter: pipeline.All(owned, pipeline.PopulationFilter(models.FilterUnderPopulated, chain.ChildNodes))},
		pipeline.Count{As: "count"},
	})
	if err != nil {
		return out, err
	}
	if len(rows) > 0 {
		out.UnderPopulated = rows[0].Count
	}

	switch mode {
	case models.FilterFullyPopulated:
		out.Matching = out.FullyPopulated
	case models.FilterUnderPopulated:
		out.Matching = out.UnderPopulated
	default:
		out.Matching, err = c.reader.CountMatching(ctx, coll, owned)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}
