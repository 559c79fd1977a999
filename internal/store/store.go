// Package store defines the node store adapter: uniform read, write and
// aggregate access to the per-chain node collections.
package store

import (
	"context"
	"errors"

	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/pipeline"
)

var (
	// ErrNotFound reports an absent chain, node or user.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable reports a connection or query failure. It is retryable.
	ErrUnavailable = errors.New("store unavailable")
	// ErrConflict reports a unique-name clash or a child slot already taken.
	ErrConflict = errors.New("conflict")
	// ErrUnsupportedPipeline reports a pipeline shape the backend cannot run.
	ErrUnsupportedPipeline = errors.New("unsupported pipeline")
)

// NodeFinder resolves single nodes. Absent nodes return nil, nil.
type NodeFinder interface {
	FindByID(ctx context.Context, collection, id string) (*models.Node, error)
}

// Reader is the read side used by the query engine.
type Reader interface {
	NodeFinder
	// Chains returns the registry ordered by creation time, newest first.
	Chains(ctx context.Context) ([]models.Chain, error)
	Aggregate(ctx context.Context, collection string, p pipeline.Pipeline) ([]models.NodeRow, error)
	CountMatching(ctx context.Context, collection string, f pipeline.Filter) (int64, error)
}

// NodeStore is the full adapter, including chain administration and the
// mutations performed by joins and background jobs.
type NodeStore interface {
	Reader

	CreateChain(ctx context.Context, chain *models.Chain, root *models.Node) error
	GetChain(ctx context.Context, id string) (*models.Chain, error)
	GetChainBySlug(ctx context.Context, slug string) (*models.Chain, error)
	ListChains(ctx context.Context, page models.PageRequest) ([]models.Chain, error)
	CountChains(ctx context.Context) (int64, error)
	UpdateChain(ctx context.Context, id string, update models.ChainUpdate) (*models.Chain, error)

	InsertNode(ctx context.Context, collection string, node *models.Node) error
	// AppendChild adds childID as the next child of parentID provided the
	// parent holds fewer than branching children; ErrConflict otherwise.
	AppendChild(ctx context.Context, collection, parentID, childID string, branching int) error
	SetTotalMembers(ctx context.Context, collection, nodeID string, total int64) error
	AddEarning(ctx context.Context, collection, nodeID string, amount float64) error

	FindUser(ctx context.Context, id string) (*models.User, error)
	Close(ctx context.Context) error
}

// Retryable reports whether err is worth retrying
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
