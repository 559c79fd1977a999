package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/treechain/backend/internal/database"
	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/store"
	"gorm.io/gorm"
)

// CreateChain inserts chain and its root node in one transaction and sets
// chain.RootNode. Name or slug clashes return store.ErrConflict.
func (s *Store) CreateChain(ctx context.Context, chain *models.Chain, root *models.Node) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var clash int64
		if err := tx.Model(&database.Chain{}).
			Where("name = ? OR slug = ?", chain.Name, chain.Slug).
			Count(&clash).Error; err != nil {
			return unavailable("check chain name", err)
		}
		if clash > 0 {
			return fmt.Errorf("chain %q: %w", chain.Name, store.ErrConflict)
		}

		row := database.Chain{
			ID:               chain.ID,
			Name:             chain.Name,
			Slug:             chain.Slug,
			Icon:             chain.Icon,
			SeedAmount:       chain.SeedAmount,
			ChildNodes:       chain.ChildNodes,
			ParentPercentage: chain.ParentPercentage,
			IsPause:          chain.IsPause,
			IsDelete:         chain.IsDelete,
			Status:           string(chain.Status),
			CreatedAt:        chain.CreatedAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return writeError("create chain", err)
		}

		rootRow := fromNode(root)
		rootRow.ChainID = row.ID
		if err := tx.Create(rootRow).Error; err != nil {
			return writeError("create root node", err)
		}
		if err := tx.Model(&row).Update("root_node", rootRow.ID).Error; err != nil {
			return unavailable("link root node", err)
		}

		row.RootNode = rootRow.ID
		*chain = toChain(&row)
		root.ID = rootRow.ID
		root.Chain = row.ID
		root.CreatedAt, root.UpdatedAt = rootRow.CreatedAt, rootRow.UpdatedAt
		return nil
	})
}

// GetChain returns the chain with id or store.ErrNotFound
func (s *Store) GetChain(ctx context.Context, id string) (*models.Chain, error) {
	return s.getChainWhere(ctx, "id = ?", id)
}

// GetChainBySlug returns the chain with slug or store.ErrNotFound
func (s *Store) GetChainBySlug(ctx context.Context, slug string) (*models.Chain, error) {
	return s.getChainWhere(ctx, "slug = ?", slug)
}

func (s *Store) getChainWhere(ctx context.Context, query string, arg interface{}) (*models.Chain, error) {
	var row database.Chain
	err := s.db.WithContext(ctx).Where(query, arg).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get chain", err)
	}
	chain := toChain(&row)
	return &chain, nil
}

// ListChains returns one page of the registry, newest first
func (s *Store) ListChains(ctx context.Context, page models.PageRequest) ([]models.Chain, error) {
	var rows []database.Chain
	err := s.db.WithContext(ctx).
		Order("created_at DESC").Order("id").
		Offset(int(page.Skip())).Limit(page.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, unavailable("list chains", err)
	}
	chains := make([]models.Chain, 0, len(rows))
	for i := range rows {
		chains = append(chains, toChain(&rows[i]))
	}
	return chains, nil
}

// CountChains counts every chain, soft-deleted included
func (s *Store) CountChains(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&database.Chain{}).Count(&n).Error; err != nil {
		return 0, unavailable("count chains", err)
	}
	return n, nil
}

// UpdateChain applies the non-nil fields of update
func (s *Store) UpdateChain(ctx context.Context, id string, update models.ChainUpdate) (*models.Chain, error) {
	changes := map[string]interface{}{}
	if update.Name != nil {
		changes["name"] = *update.Name
	}
	if update.Slug != nil {
		changes["slug"] = *update.Slug
	}
	if update.Icon != nil {
		changes["icon"] = *update.Icon
	}
	if update.ParentPercentage != nil {
		changes["parent_percentage"] = *update.ParentPercentage
	}
	if update.IsPause != nil {
		changes["is_pause"] = *update.IsPause
	}
	if update.IsDelete != nil {
		changes["is_delete"] = *update.IsDelete
	}
	if update.Status != nil {
		changes["status"] = string(*update.Status)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row database.Chain
		if err := tx.Where("id = ?", id).Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return store.ErrNotFound
			}
			return unavailable("get chain", err)
		}
		if update.Name != nil && *update.Name != row.Name {
			slug := *update.Name
			if update.Slug != nil {
				slug = *update.Slug
			}
			var clash int64
			if err := tx.Model(&database.Chain{}).
				Where("(name = ? OR slug = ?) AND id <> ?", *update.Name, slug, id).
				Count(&clash).Error; err != nil {
				return unavailable("check chain name", err)
			}
			if clash > 0 {
				return fmt.Errorf("chain %q: %w", *update.Name, store.ErrConflict)
			}
		}
		if len(changes) == 0 {
			return nil
		}
		changes["updated_at"] = time.Now()
		if err := tx.Model(&row).Updates(changes).Error; err != nil {
			return writeError("update chain", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetChain(ctx, id)
}

// InsertNode adds node to collection, assigning its id
func (s *Store) InsertNode(ctx context.Context, collection string, node *models.Node) error {
	chainID, err := s.chainIDFor(ctx, s.db, collection)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := fromNode(node)
		row.ChainID = chainID
		if err := tx.Create(row).Error; err != nil {
			return writeError("insert node", err)
		}
		for i, child := range node.Children {
			edge := database.TreeNodeChild{ParentID: row.ID, Position: i, ChildID: child}
			if err := tx.Create(&edge).Error; err != nil {
				return writeError("insert child reference", err)
			}
		}
		node.ID, node.Chain = row.ID, chainID
		node.CreatedAt, node.UpdatedAt = row.CreatedAt, row.UpdatedAt
		return nil
	})
}

// AppendChild adds childID as the next child of parentID when a slot is free
func (s *Store) AppendChild(ctx context.Context, collection, parentID, childID string, branching int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chainID, err := s.chainIDFor(ctx, tx, collection)
		if err != nil {
			return err
		}
		var parents int64
		if err := tx.Model(&database.TreeNode{}).
			Where("id = ? AND chain_id = ?", parentID, chainID).
			Count(&parents).Error; err != nil {
			return unavailable("find parent", err)
		}
		if parents == 0 {
			return fmt.Errorf("parent %s: %w", parentID, store.ErrNotFound)
		}

		var used int64
		if err := tx.Model(&database.TreeNodeChild{}).Where("parent_id = ?", parentID).Count(&used).Error; err != nil {
			return unavailable("count children", err)
		}
		if used >= int64(branching) {
			return fmt.Errorf("parent %s is full: %w", parentID, store.ErrConflict)
		}

		edge := database.TreeNodeChild{ParentID: parentID, Position: int(used), ChildID: childID}
		if err := tx.Create(&edge).Error; err != nil {
			return writeError("append child", err)
		}
		return nil
	})
}

// SetTotalMembers stores the denormalized descendant count of a node
func (s *Store) SetTotalMembers(ctx context.Context, collection, nodeID string, total int64) error {
	return s.updateNode(ctx, collection, nodeID, map[string]interface{}{"total_members": total})
}

// AddEarning adds amount to a node's earnings
func (s *Store) AddEarning(ctx context.Context, collection, nodeID string, amount float64) error {
	return s.updateNode(ctx, collection, nodeID, map[string]interface{}{
		"total_earning": gorm.Expr("total_earning + ?", amount),
	})
}

func (s *Store) updateNode(ctx context.Context, collection, nodeID string, changes map[string]interface{}) error {
	chainID, err := s.chainIDFor(ctx, s.db, collection)
	if err != nil {
		return err
	}
	changes["updated_at"] = time.Now()
	res := s.db.WithContext(ctx).Model(&database.TreeNode{}).
		Where("id = ? AND chain_id = ?", nodeID, chainID).
		Updates(changes)
	if res.Error != nil {
		return unavailable("update node", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("node %s: %w", nodeID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) chainIDFor(ctx context.Context, db *gorm.DB, collection string) (string, error) {
	name, ok := chainName(collection)
	if !ok {
		return "", fmt.Errorf("collection %q: %w", collection, store.ErrNotFound)
	}
	var row database.Chain
	err := db.WithContext(ctx).Select("id").Where("name = ?", name).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("collection %q: %w", collection, store.ErrNotFound)
	}
	if err != nil {
		return "", unavailable("resolve collection", err)
	}
	return row.ID, nil
}

func writeError(op string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("failed to %s: %w", op, store.ErrConflict)
	}
	return unavailable(op, err)
}

func fromNode(n *models.Node) *database.TreeNode {
	status := n.Status
	if status == "" {
		status = models.NodeActive
	}
	return &database.TreeNode{
		ID:           n.ID,
		ChainID:      n.Chain,
		UserID:       n.User,
		TotalMembers: n.TotalMembers,
		TotalEarning: n.TotalEarning,
		Value:        n.Value,
		Status:       status,
		IsDelete:     n.IsDelete,
	}
}
