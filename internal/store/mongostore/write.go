package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// namespaceNotFound is the server error code for a missing collection
const namespaceNotFound = 26

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("id %q: %w", id, store.ErrNotFound)
	}
	return oid, nil
}

func writeError(op string, err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to %s: %w", op, store.ErrConflict)
	}
	return unavailable(op, err)
}

// CreateChain inserts chain, then its root node into the chain's own
// collection. Without a replica set there is no transaction, so a failed
// root insert removes the chain again.
func (s *Store) CreateChain(ctx context.Context, chain *models.Chain, root *models.Node) error {
	n, err := s.db.Collection(chainsCollection).CountDocuments(ctx, bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "name", Value: chain.Name}},
		bson.D{{Key: "slug", Value: chain.Slug}},
	}}})
	if err != nil {
		return unavailable("check chain name", err)
	}
	if n > 0 {
		return fmt.Errorf("chain %q: %w", chain.Name, store.ErrConflict)
	}

	now := time.Now().UTC()
	created := chain.CreatedAt
	if created.IsZero() {
		created = now
	}
	doc := chainDoc{
		ID:               primitive.NewObjectID(),
		Name:             chain.Name,
		Slug:             chain.Slug,
		Icon:             chain.Icon,
		SeedAmount:       chain.SeedAmount,
		ChildNodes:       chain.ChildNodes,
		ParentPercentage: chain.ParentPercentage,
		IsPause:          chain.IsPause,
		IsDelete:         chain.IsDelete,
		Status:           string(chain.Status),
		CreatedAt:        created,
		UpdatedAt:        now,
	}
	if _, err := s.db.Collection(chainsCollection).InsertOne(ctx, doc); err != nil {
		return writeError("create chain", err)
	}

	root.Chain = doc.ID.Hex()
	if err := s.InsertNode(ctx, chain.Collection(), root); err != nil {
		_, _ = s.db.Collection(chainsCollection).DeleteOne(ctx, bson.D{{Key: "_id", Value: doc.ID}})
		return err
	}
	rootID, _ := primitive.ObjectIDFromHex(root.ID)
	if _, err := s.db.Collection(chainsCollection).UpdateByID(ctx, doc.ID,
		bson.D{{Key: "$set", Value: bson.D{{Key: "rootNode", Value: rootID}}}}); err != nil {
		return unavailable("link root node", err)
	}
	if _, err := s.db.Collection(chain.Collection()).Indexes().CreateOne(ctx,
		mongo.IndexModel{Keys: bson.D{{Key: "user", Value: 1}}}); err != nil {
		return unavailable("index chain collection", err)
	}

	doc.RootNode = rootID
	*chain = toChain(&doc)
	return nil
}

// GetChain returns the chain with id or store.ErrNotFound
func (s *Store) GetChain(ctx context.Context, id string) (*models.Chain, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, store.ErrNotFound
	}
	return s.getChainWhere(ctx, bson.D{{Key: "_id", Value: oid}})
}

// GetChainBySlug returns the chain with slug or store.ErrNotFound
func (s *Store) GetChainBySlug(ctx context.Context, slug string) (*models.Chain, error) {
	return s.getChainWhere(ctx, bson.D{{Key: "slug", Value: slug}})
}

func (s *Store) getChainWhere(ctx context.Context, filter bson.D) (*models.Chain, error) {
	var doc chainDoc
	err := s.db.Collection(chainsCollection).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get chain", err)
	}
	chain := toChain(&doc)
	return &chain, nil
}

// ListChains returns one page of the registry, newest first
func (s *Store) ListChains(ctx context.Context, page models.PageRequest) ([]models.Chain, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(page.Skip()).
		SetLimit(int64(page.Limit))
	return s.findChains(ctx, opts)
}

// CountChains counts every chain, soft-deleted included
func (s *Store) CountChains(ctx context.Context) (int64, error) {
	n, err := s.db.Collection(chainsCollection).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, unavailable("count chains", err)
	}
	return n, nil
}

// UpdateChain applies the non-nil fields of update. A rename moves the
// chain's node collection along with it.
func (s *Store) UpdateChain(ctx context.Context, id string, update models.ChainUpdate) (*models.Chain, error) {
	current, err := s.GetChain(ctx, id)
	if err != nil {
		return nil, err
	}
	oid, _ := primitive.ObjectIDFromHex(current.ID)

	set := bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}
	if update.Name != nil && *update.Name != current.Name {
		slug := *update.Name
		if update.Slug != nil {
			slug = *update.Slug
		}
		n, err := s.db.Collection(chainsCollection).CountDocuments(ctx, bson.D{
			{Key: "_id", Value: bson.D{{Key: "$ne", Value: oid}}},
			{Key: "$or", Value: bson.A{bson.D{{Key: "name", Value: *update.Name}}, bson.D{{Key: "slug", Value: slug}}}},
		})
		if err != nil {
			return nil, unavailable("check chain name", err)
		}
		if n > 0 {
			return nil, fmt.Errorf("chain %q: %w", *update.Name, store.ErrConflict)
		}
		if err := s.renameCollection(ctx, current.Collection(), models.CollectionName(*update.Name)); err != nil {
			return nil, err
		}
		set = append(set, bson.E{Key: "name", Value: *update.Name})
	}
	if update.Slug != nil {
		set = append(set, bson.E{Key: "slug", Value: *update.Slug})
	}
	if update.Icon != nil {
		set = append(set, bson.E{Key: "icon", Value: *update.Icon})
	}
	if update.ParentPercentage != nil {
		set = append(set, bson.E{Key: "parentPercentage", Value: *update.ParentPercentage})
	}
	if update.IsPause != nil {
		set = append(set, bson.E{Key: "isPause", Value: *update.IsPause})
	}
	if update.IsDelete != nil {
		set = append(set, bson.E{Key: "isDelete", Value: *update.IsDelete})
	}
	if update.Status != nil {
		set = append(set, bson.E{Key: "status", Value: string(*update.Status)})
	}

	if _, err := s.db.Collection(chainsCollection).UpdateByID(ctx, oid, bson.D{{Key: "$set", Value: set}}); err != nil {
		return nil, writeError("update chain", err)
	}
	return s.GetChain(ctx, id)
}

func (s *Store) renameCollection(ctx context.Context, from, to string) error {
	name := s.db.Name()
	err := s.client.Database("admin").RunCommand(ctx, bson.D{
		{Key: "renameCollection", Value: name + "." + from},
		{Key: "to", Value: name + "." + to},
	}).Err()
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == namespaceNotFound {
		return nil
	}
	if err != nil {
		return unavailable("rename node collection", err)
	}
	return nil
}

// InsertNode adds node to collection, assigning its id
func (s *Store) InsertNode(ctx context.Context, collection string, node *models.Node) error {
	user, err := objectID(node.User)
	if err != nil {
		return err
	}
	chainID, err := s.chainIDFor(ctx, collection, node.Chain)
	if err != nil {
		return err
	}
	children := make([]primitive.ObjectID, 0, len(node.Children))
	for _, c := range node.Children {
		oid, err := objectID(c)
		if err != nil {
			return err
		}
		children = append(children, oid)
	}

	status := node.Status
	if status == "" {
		status = models.NodeActive
	}
	now := time.Now().UTC()
	doc := nodeDoc{
		ID:           primitive.NewObjectID(),
		User:         user,
		Chain:        chainID,
		Children:     children,
		TotalMembers: node.TotalMembers,
		TotalEarning: node.TotalEarning,
		Value:        node.Value,
		Status:       status,
		IsDelete:     node.IsDelete,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return writeError("insert node", err)
	}
	node.ID, node.Chain = doc.ID.Hex(), chainID.Hex()
	node.Status, node.CreatedAt, node.UpdatedAt = status, now, now
	return nil
}

// chainIDFor returns hint when set, or the id of the chain owning collection
func (s *Store) chainIDFor(ctx context.Context, collection, hint string) (primitive.ObjectID, error) {
	if hint != "" {
		return objectID(hint)
	}
	name, ok := models.ChainNameFromCollection(collection)
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("collection %q: %w", collection, store.ErrNotFound)
	}
	var doc chainDoc
	err := s.db.Collection(chainsCollection).FindOne(ctx, bson.D{{Key: "name", Value: name}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return primitive.NilObjectID, fmt.Errorf("collection %q: %w", collection, store.ErrNotFound)
	}
	if err != nil {
		return primitive.NilObjectID, unavailable("resolve collection", err)
	}
	return doc.ID, nil
}

// AppendChild pushes childID onto the parent's children only while slot
// branching-1 is still empty, so concurrent joins cannot overfill a node.
func (s *Store) AppendChild(ctx context.Context, collection, parentID, childID string, branching int) error {
	parent, err := objectID(parentID)
	if err != nil {
		return err
	}
	child, err := objectID(childID)
	if err != nil {
		return err
	}

	lastSlot := "children." + strconv.Itoa(branching-1)
	res, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: parent}, {Key: lastSlot, Value: bson.D{{Key: "$exists", Value: false}}}},
		bson.D{
			{Key: "$push", Value: bson.D{{Key: "children", Value: child}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}},
		})
	if err != nil {
		return unavailable("append child", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := s.db.Collection(collection).CountDocuments(ctx, bson.D{{Key: "_id", Value: parent}})
	if err != nil {
		return unavailable("find parent", err)
	}
	if n == 0 {
		return fmt.Errorf("parent %s: %w", parentID, store.ErrNotFound)
	}
	return fmt.Errorf("parent %s is full: %w", parentID, store.ErrConflict)
}

// SetTotalMembers stores the denormalized descendant count of a node
func (s *Store) SetTotalMembers(ctx context.Context, collection, nodeID string, total int64) error {
	return s.updateNode(ctx, collection, nodeID, bson.D{{Key: "$set", Value: bson.D{
		{Key: "totalMembers", Value: total},
		{Key: "updatedAt", Value: time.Now().UTC()},
	}}})
}

// AddEarning adds amount to a node's earnings
func (s *Store) AddEarning(ctx context.Context, collection, nodeID string, amount float64) error {
	return s.updateNode(ctx, collection, nodeID, bson.D{
		{Key: "$inc", Value: bson.D{{Key: "totalEarning", Value: amount}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}},
	})
}

func (s *Store) updateNode(ctx context.Context, collection, nodeID string, update bson.D) error {
	oid, err := objectID(nodeID)
	if err != nil {
		return err
	}
	res, err := s.db.Collection(collection).UpdateByID(ctx, oid, update)
	if err != nil {
		return unavailable("update node", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("node %s: %w", nodeID, store.ErrNotFound)
	}
	return nil
}
