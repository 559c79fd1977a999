// Package sqlstore implements the node store on a relational database via
// GORM. Every chain's nodes live in one tree_nodes table keyed by chain_id,
// with ordered child references in tree_node_children.
package sqlstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/treechain/backend/internal/database"
	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/pipeline"
	"github.com/treechain/backend/internal/store"
	"gorm.io/gorm"
)

// Store is a store.NodeStore over GORM
type Store struct {
	db *gorm.DB
}

var _ store.NodeStore = (*Store)(nil)

// New creates a Store on an open, migrated database
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle
func (s *Store) DB() *gorm.DB {
	return s.db
}

func unavailable(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, store.ErrUnavailable, err)
}

// chainName resolves a collection to the chain name it belongs to. ok is
// false for names outside the tree collection namespace.
func chainName(collection string) (string, bool) {
	return models.ChainNameFromCollection(collection)
}

// Chains returns the chain registry, newest first
func (s *Store) Chains(ctx context.Context) ([]models.Chain, error) {
	var rows []database.Chain
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id").Find(&rows).Error; err != nil {
		return nil, unavailable("list chains", err)
	}
	chains := make([]models.Chain, 0, len(rows))
	for i := range rows {
		chains = append(chains, toChain(&rows[i]))
	}
	return chains, nil
}

// FindByID returns the node or nil when the collection holds no such node
func (s *Store) FindByID(ctx context.Context, collection, id string) (*models.Node, error) {
	name, ok := chainName(collection)
	if !ok {
		return nil, nil
	}

	var row database.TreeNode
	err := s.db.WithContext(ctx).
		Joins("JOIN chains ON chains.id = tree_nodes.chain_id").
		Where("tree_nodes.id = ? AND chains.name = ?", id, name).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("find node", err)
	}

	children, err := s.childrenOf(ctx, []string{row.ID})
	if err != nil {
		return nil, err
	}
	node := toNode(&row)
	node.Children = children[row.ID]
	return node, nil
}

// childrenOf returns ordered child references keyed by parent id. Every
// requested parent gets a non-nil slice.
func (s *Store) childrenOf(ctx context.Context, parents []string) (map[string][]string, error) {
	out := make(map[string][]string, len(parents))
	for _, id := range parents {
		out[id] = []string{}
	}
	if len(parents) == 0 {
		return out, nil
	}

	var edges []database.TreeNodeChild
	err := s.db.WithContext(ctx).
		Where("parent_id IN ?", parents).
		Order("parent_id").Order("position").
		Find(&edges).Error
	if err != nil {
		return nil, unavailable("load children", err)
	}
	for _, e := range edges {
		out[e.ParentID] = append(out[e.ParentID], e.ChildID)
	}
	return out, nil
}

// chainIDs maps every tree collection to its chain id
func (s *Store) chainIDs(ctx context.Context) (map[string]string, error) {
	var rows []database.Chain
	if err := s.db.WithContext(ctx).Select("id", "name").Find(&rows).Error; err != nil {
		return nil, unavailable("resolve collections", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[models.CollectionName(r.Name)] = r.ID
	}
	return out, nil
}

// resultRow is one row of a compiled pipeline
type resultRow struct {
	ID             string
	ChainID        string
	UserID         string
	TotalMembers   int64
	TotalEarning   float64
	Value          float64
	Username       string
	CollectionName string
}

// Aggregate compiles p to SQL and runs it with collection as the head
// segment's collection.
func (s *Store) Aggregate(ctx context.Context, collection string, p pipeline.Pipeline) ([]models.NodeRow, error) {
	pl, err := buildPlan(collection, p)
	if err != nil {
		return nil, err
	}
	ids, err := s.chainIDs(ctx)
	if err != nil {
		return nil, err
	}
	query, args, err := pl.render(ids, s.unlimited())
	if err != nil {
		return nil, err
	}

	if pl.count {
		var n int64
		if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&n).Error; err != nil {
			return nil, unavailable("count pipeline rows", err)
		}
		return []models.NodeRow{{Count: n}}, nil
	}

	var rows []resultRow
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, unavailable("run pipeline", err)
	}

	parents := make([]string, 0, len(rows))
	for _, r := range rows {
		parents = append(parents, r.ID)
	}
	children, err := s.childrenOf(ctx, parents)
	if err != nil {
		return nil, err
	}

	out := make([]models.NodeRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.NodeRow{
			ID:             r.ID,
			Chain:          r.ChainID,
			User:           r.UserID,
			Children:       children[r.ID],
			TotalMembers:   r.TotalMembers,
			TotalEarning:   r.TotalEarning,
			Value:          r.Value,
			Username:       r.Username,
			CollectionName: r.CollectionName,
		})
	}
	return out, nil
}

// CountMatching counts nodes of collection satisfying f
func (s *Store) CountMatching(ctx context.Context, collection string, f pipeline.Filter) (int64, error) {
	name, ok := chainName(collection)
	if !ok {
		return 0, nil
	}
	where, args, err := compileFilter(f)
	if err != nil {
		return 0, err
	}

	var n int64
	err = s.db.WithContext(ctx).
		Table("tree_nodes AS n").
		Joins("JOIN chains c ON c.id = n.chain_id").
		Where("c.name = ?", name).
		Where(where, args...).
		Count(&n).Error
	if err != nil {
		return 0, unavailable("count nodes", err)
	}
	return n, nil
}

// FindUser returns the user or store.ErrNotFound
func (s *Store) FindUser(ctx context.Context, id string) (*models.User, error) {
	row, err := database.FindUserByID(s.db.WithContext(ctx), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("find user", err)
	}
	return &models.User{ID: row.ID, UserName: row.UserName, Email: row.Email}, nil
}

// Close releases the connection pool
func (s *Store) Close(context.Context) error {
	return database.Close(s.db)
}

func (s *Store) unlimited() string {
	if s.db.Dialector.Name() == "postgres" {
		return "ALL"
	}
	return "-1"
}

func toChain(r *database.Chain) models.Chain {
	return models.Chain{
		ID:               r.ID,
		Name:             r.Name,
		Slug:             r.Slug,
		Icon:             r.Icon,
		SeedAmount:       r.SeedAmount,
		ChildNodes:       r.ChildNodes,
		ParentPercentage: r.ParentPercentage,
		IsPause:          r.IsPause,
		IsDelete:         r.IsDelete,
		Status:           models.ChainStatus(r.Status),
		RootNode:         r.RootNode,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func toNode(r *database.TreeNode) *models.Node {
	return &models.Node{
		ID:           r.ID,
		User:         r.UserID,
		Chain:        r.ChainID,
		Children:     []string{},
		TotalMembers: r.TotalMembers,
		TotalEarning: r.TotalEarning,
		Value:        r.Value,
		Status:       r.Status,
		IsDelete:     r.IsDelete,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}
