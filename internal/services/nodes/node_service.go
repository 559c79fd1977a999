// Package nodes is the query facade over the referral trees: a user's nodes
// across chains, the top earners, and descendant-count listings.
package nodes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/treechain/backend/internal/aggregate"
	"github.com/treechain/backend/internal/config"
	"github.com/treechain/backend/internal/logger"
	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/observability"
	"github.com/treechain/backend/internal/population"
	"github.com/treechain/backend/internal/store"
	"github.com/treechain/backend/internal/tree"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrEmptyRegistry means no chain exists; it is a data-integrity error.
	ErrEmptyRegistry = aggregate.ErrEmptyRegistry
	// ErrUnknownChain means a configured or referenced chain is missing.
	ErrUnknownChain = aggregate.ErrUnknownChain
	ErrInvalidSort  = aggregate.ErrInvalidSort
	// ErrInvalidQuery reports a malformed request.
	ErrInvalidQuery = errors.New("invalid query")
)

// NodeService answers node queries across every chain
type NodeService struct {
	reader     store.Reader
	aggregator *aggregate.Aggregator
	classifier *population.Classifier
	cfg        config.QueryConfig
	log        *logger.Logger
}

// NewNodeService creates a new node service
func NewNodeService(reader store.Reader, engine *tree.Engine, cfg config.QueryConfig, log *logger.Logger) *NodeService {
	return &NodeService{
		reader:     reader,
		aggregator: aggregate.New(reader, engine, log, cfg.Concurrency),
		classifier: population.NewClassifier(reader, cfg.Concurrency),
		cfg:        cfg,
		log:        log,
	}
}

// GetUserNodesAcrossChains returns one page of the user's nodes with level
// metrics, plus population counts over all of the user's nodes
func (s *NodeService) GetUserNodesAcrossChains(ctx context.Context, q models.UserNodesQuery) (result *models.UserNodesResult, err error) {
	defer observe("user_nodes", time.Now(), &err)

	if q.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidQuery)
	}
	mode, err := models.ParseFilterMode(string(q.Filter))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	q.Filter = mode
	sortField, err := aggregate.ParseSort(q.Sort)
	if err != nil {
		return nil, err
	}
	q.Page = s.clampPage(q.Page)
	if err := q.Page.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	chains, err := s.registry(ctx)
	if err != nil {
		return nil, err
	}

	var (
		nodes  []models.LeveledNode
		report *models.PopulationReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		nodes, err = s.aggregator.UserNodes(gctx, chains, q, sortField)
		return err
	})
	g.Go(func() error {
		var err error
		report, err = s.classifier.Classify(gctx, chains, q.UserID, q.Filter)
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.Error("user nodes query failed", "user", q.UserID, "error", err)
		return nil, err
	}

	if nodes == nil {
		nodes = []models.LeveledNode{}
	}
	return &models.UserNodesResult{
		Nodes:          nodes,
		Total:          report.Matching,
		FullyPopulated: report.FullyPopulated,
		UnderPopulated: report.UnderPopulated,
		Page:           q.Page.Page,
		Limit:          q.Page.Limit,
	}, nil
}

// GetTopNNodes returns the n highest-earning nodes across chains. n <= 0
// selects the configured default; n is capped at the maximum page size.
func (s *NodeService) GetTopNNodes(ctx context.Context, n int) (nodes []models.LeveledNode, err error) {
	defer observe("top_nodes", time.Now(), &err)

	if n <= 0 {
		n = s.cfg.TopN
	}
	if n > s.cfg.MaxPageSize {
		n = s.cfg.MaxPageSize
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	chains, err := s.registry(ctx)
	if err != nil {
		return nil, err
	}
	nodes, err = s.aggregator.TopN(ctx, chains, n)
	if err != nil {
		s.log.Error("top nodes query failed", "n", n, "error", err)
		return nil, err
	}
	if nodes == nil {
		nodes = []models.LeveledNode{}
	}
	return nodes, nil
}

// FilterNodes returns every node of userID in the filter chains, with
// descendant counts, ordered descending when sortField is "totalmembers"
// and ascending otherwise
func (s *NodeService) FilterNodes(ctx context.Context, userID, sortField string) (rows []models.NodeRow, err error) {
	defer observe("filter_nodes", time.Now(), &err)

	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidQuery)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	chains, err := s.registry(ctx)
	if err != nil {
		return nil, err
	}
	chains, err = s.filterChains(chains)
	if err != nil {
		return nil, err
	}
	rows, err = s.aggregator.Filter(ctx, chains, userID, sortField)
	if err != nil {
		s.log.Error("filter nodes query failed", "user", userID, "error", err)
		return nil, err
	}
	if rows == nil {
		rows = []models.NodeRow{}
	}
	return rows, nil
}

// registry loads the chain registry, refusing to continue without chains
func (s *NodeService) registry(ctx context.Context) ([]models.Chain, error) {
	chains, err := s.reader.Chains(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain registry: %w", err)
	}
	if len(chains) == 0 {
		s.log.Error("chain registry is empty")
		return nil, ErrEmptyRegistry
	}
	return chains, nil
}

// filterChains narrows the registry to the configured filter chains, in
// configured order. No configuration keeps the whole registry.
func (s *NodeService) filterChains(chains []models.Chain) ([]models.Chain, error) {
	if len(s.cfg.FilterChains) == 0 {
		return chains, nil
	}
	byName := make(map[string]models.Chain, len(chains))
	for _, c := range chains {
		byName[c.Name] = c
	}
	out := make([]models.Chain, 0, len(s.cfg.FilterChains))
	for _, name := range s.cfg.FilterChains {
		c, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownChain, name)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *NodeService) clampPage(p models.PageRequest) models.PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = s.cfg.DefaultPageSize
	}
	if p.Limit > s.cfg.MaxPageSize {
		p.Limit = s.cfg.MaxPageSize
	}
	return p
}

func (s *NodeService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

func observe(operation string, start time.Time, err *error) {
	observability.QueryDuration.
		WithLabelValues(operation, observability.Outcome(*err)).
		Observe(time.Since(start).Seconds())
}
