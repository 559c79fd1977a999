package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/treechain/backend/internal/jobs"
	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/queue"
	"github.com/treechain/backend/internal/store"
)

// Join places a new node for userID in the chain's tree under the first
// node, in breadth-first order, with a free slot. The slot append is
// conditional; a lost race re-runs the search. The parent reward and the
// member recount are enqueued as background jobs.
func (s *ChainService) Join(ctx context.Context, chainID, userID string) (*models.Node, error) {
	chain, err := s.store.GetChain(ctx, chainID)
	if err != nil {
		return nil, err
	}
	if !chain.Joinable() {
		return nil, fmt.Errorf("%w: %s", ErrNotJoinable, chain.Name)
	}
	if _, err := s.store.FindUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user %s", ErrValidation, userID)
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	coll := chain.Collection()
	parent, err := s.freeSlot(ctx, chain)
	if err != nil {
		return nil, err
	}

	node := &models.Node{User: userID, Status: models.NodeActive, Children: []string{}}
	if err := s.store.InsertNode(ctx, coll, node); err != nil {
		return nil, fmt.Errorf("failed to insert node: %w", err)
	}

	for attempt := 1; ; attempt++ {
		err = s.store.AppendChild(ctx, coll, parent.ID, node.ID, chain.ChildNodes)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConflict) || attempt >= s.retries {
			s.log.Warn("node left unplaced", "chain", chain.Name, "node", node.ID, "error", err)
			return nil, fmt.Errorf("failed to place node: %w", err)
		}
		s.log.Debug("slot taken, retrying placement", "chain", chain.Name, "parent", parent.ID, "attempt", attempt)
		if parent, err = s.freeSlot(ctx, chain); err != nil {
			return nil, err
		}
	}

	s.log.Info("member joined chain", "chain", chain.Name, "user", userID, "node", node.ID, "parent", parent.ID)
	s.enqueueJoinJobs(ctx, chain, parent.ID, node.ID)
	return node, nil
}

// freeSlot walks the tree breadth-first from the root, children in order,
// and returns the first node holding fewer than ChildNodes children.
// Missing children are skipped.
func (s *ChainService) freeSlot(ctx context.Context, chain *models.Chain) (*models.Node, error) {
	coll := chain.Collection()
	root, err := s.store.FindByID(ctx, coll, chain.RootNode)
	if err != nil {
		return nil, fmt.Errorf("failed to read root node: %w", err)
	}
	if root == nil {
		return nil, fmt.Errorf("root node %s of chain %s: %w", chain.RootNode, chain.Name, store.ErrNotFound)
	}

	seen := map[string]bool{root.ID: true}
	frontier := []*models.Node{root}
	for len(frontier) > 0 {
		var next []*models.Node
		for _, n := range frontier {
			if len(n.Children) < chain.ChildNodes {
				return n, nil
			}
			for _, id := range n.Children {
				if seen[id] {
					continue
				}
				seen[id] = true
				child, err := s.store.FindByID(ctx, coll, id)
				if err != nil {
					return nil, fmt.Errorf("failed to read node %s: %w", id, err)
				}
				if child != nil {
					next = append(next, child)
				}
			}
		}
		frontier = next
	}
	return nil, fmt.Errorf("%w: %s", ErrTreeFull, chain.Name)
}

func (s *ChainService) enqueueJoinJobs(ctx context.Context, chain *models.Chain, parentID, nodeID string) {
	reward := jobs.ParentRewardPayload{
		Collection: chain.Collection(),
		ParentNode: parentID,
		ChildNode:  nodeID,
		Amount:     chain.ParentReward(),
	}
	if _, err := s.queue.Enqueue(ctx, queue.JobTypeParentReward, reward, s.jobOpts...); err != nil {
		s.log.Error("failed to enqueue parent reward", "chain", chain.Name, "parent", parentID, "error", err)
	}
	if _, err := s.queue.Enqueue(ctx, queue.JobTypeRecountMembers, jobs.RecountPayload{ChainID: chain.ID}, s.jobOpts...); err != nil {
		s.log.Error("failed to enqueue member recount", "chain", chain.Name, "error", err)
	}
}
