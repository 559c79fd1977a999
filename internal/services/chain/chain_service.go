// Package chain administers the chain registry and places joining members
// into chain trees.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"github.com/treechain/backend/internal/logger"
	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/queue"
	"github.com/treechain/backend/internal/store"
)

var (
	// ErrValidation reports invalid chain input.
	ErrValidation = errors.New("validation failed")
	// ErrNotJoinable reports a paused, deleted or non-enabled chain.
	ErrNotJoinable = errors.New("chain is not accepting members")
	// ErrTreeFull reports that no node of the tree has a free slot.
	ErrTreeFull = errors.New("no free slot in chain tree")
)

const (
	defaultPlacementRetries = 3
	defaultListLimit        = 10
)

// CreateChainInput is the payload for creating a chain
type CreateChainInput struct {
	Name             string  `json:"name" validate:"required,alphanum,max=64"`
	Icon             string  `json:"icon" validate:"omitempty,max=512"`
	SeedAmount       float64 `json:"seed_amount" validate:"gt=0"`
	ChildNodes       int     `json:"child_nodes" validate:"gte=1,lte=64"`
	ParentPercentage float64 `json:"parent_percentage" validate:"gte=0,lte=100"`
	// Owner holds the root node.
	Owner string `json:"user" validate:"required"`
}

// UpdateChainInput carries the editable chain fields; nil leaves a field
// unchanged. The branching factor cannot be changed.
type UpdateChainInput struct {
	Name             *string  `json:"name" validate:"omitempty,alphanum,max=64"`
	Icon             *string  `json:"icon" validate:"omitempty,max=512"`
	ParentPercentage *float64 `json:"parent_percentage" validate:"omitempty,gte=0,lte=100"`
}

// ChainService handles chain registry operations
type ChainService struct {
	store    store.NodeStore
	queue    queue.Enqueuer
	validate *validator.Validate
	log      *logger.Logger
	retries  int
	jobOpts  []queue.EnqueueOption
}

// Option configures a ChainService
type Option func(*ChainService)

// WithJobRetries sets the retry budget of the jobs a join enqueues
func WithJobRetries(n int) Option {
	return func(s *ChainService) {
		if n > 0 {
			s.jobOpts = append(s.jobOpts, queue.WithMaxRetries(n))
		}
	}
}

// NewChainService creates a new chain service
func NewChainService(st store.NodeStore, q queue.Enqueuer, log *logger.Logger, opts ...Option) *ChainService {
	s := &ChainService{
		store:    st,
		queue:    q,
		validate: validator.New(),
		log:      log,
		retries:  defaultPlacementRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ChainService) check(v interface{}) error {
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// CreateChain creates a chain together with its root node, owned by
// in.Owner
func (s *ChainService) CreateChain(ctx context.Context, in CreateChainInput) (*models.Chain, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	if _, err := s.store.FindUser(ctx, in.Owner); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user %s", ErrValidation, in.Owner)
		}
		return nil, fmt.Errorf("failed to find chain owner: %w", err)
	}

	chain := &models.Chain{
		Name:             in.Name,
		Slug:             slug.Make(in.Name),
		Icon:             in.Icon,
		SeedAmount:       in.SeedAmount,
		ChildNodes:       in.ChildNodes,
		ParentPercentage: in.ParentPercentage,
		Status:           models.ChainEnabled,
	}
	root := &models.Node{User: in.Owner, Status: models.NodeActive, Children: []string{}}
	if err := s.store.CreateChain(ctx, chain, root); err != nil {
		return nil, fmt.Errorf("failed to create chain: %w", err)
	}

	s.log.Info("chain created", "chain", chain.Name, "id", chain.ID, "root", chain.RootNode)
	return chain, nil
}

// ListChains returns one page of the registry. Each chain's investment is
// its root's stored member count times the seed amount.
func (s *ChainService) ListChains(ctx context.Context, page models.PageRequest) (*models.ChainList, error) {
	if page.Page < 1 {
		page.Page = 1
	}
	if page.Limit < 1 {
		page.Limit = defaultListLimit
	}
	if err := page.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	chains, err := s.store.ListChains(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list chains: %w", err)
	}
	total, err := s.store.CountChains(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chains: %w", err)
	}

	list := &models.ChainList{
		Chains: make([]models.ChainSummary, 0, len(chains)),
		Total:  total,
		Page:   page.Page,
		Limit:  page.Limit,
	}
	for _, c := range chains {
		var members int64
		if c.RootNode != "" {
			root, err := s.store.FindByID(ctx, c.Collection(), c.RootNode)
			if err != nil {
				return nil, fmt.Errorf("failed to read root of chain %s: %w", c.Name, err)
			}
			if root != nil {
				members = root.TotalMembers
			}
		}
		investment := float64(members) * c.SeedAmount
		list.Chains = append(list.Chains, models.ChainSummary{Chain: c, Investment: investment})
		list.TotalInvestment += investment
	}
	return list, nil
}

// GetChain returns a chain by id
func (s *ChainService) GetChain(ctx context.Context, id string) (*models.Chain, error) {
	return s.store.GetChain(ctx, id)
}

// GetChainBySlug returns a chain by slug
func (s *ChainService) GetChainBySlug(ctx context.Context, slugValue string) (*models.Chain, error) {
	return s.store.GetChainBySlug(ctx, slugValue)
}

// UpdateChain applies in to the chain. Renaming also renames the chain's
// slug and node collection.
func (s *ChainService) UpdateChain(ctx context.Context, id string, in UpdateChainInput) (*models.Chain, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	update := models.ChainUpdate{Icon: in.Icon, ParentPercentage: in.ParentPercentage}
	if in.Name != nil {
		newSlug := slug.Make(*in.Name)
		update.Name = in.Name
		update.Slug = &newSlug
	}
	chain, err := s.store.UpdateChain(ctx, id, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update chain: %w", err)
	}
	return chain, nil
}

// TogglePause flips the chain's paused flag
func (s *ChainService) TogglePause(ctx context.Context, id string) (*models.Chain, error) {
	chain, err := s.store.GetChain(ctx, id)
	if err != nil {
		return nil, err
	}
	paused := !chain.IsPause
	return s.store.UpdateChain(ctx, id, models.ChainUpdate{IsPause: &paused})
}

// DeleteChain soft-deletes the chain
func (s *ChainService) DeleteChain(ctx context.Context, id string) (*models.Chain, error) {
	deleted := true
	return s.store.UpdateChain(ctx, id, models.ChainUpdate{IsDelete: &deleted})
}

// UpdateStatus sets the chain status
func (s *ChainService) UpdateStatus(ctx context.Context, id, status string) (*models.Chain, error) {
	st := models.ChainStatus(status)
	if !st.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	return s.store.UpdateChain(ctx, id, models.ChainUpdate{Status: &st})
}
