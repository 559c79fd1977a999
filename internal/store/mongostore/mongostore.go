// Package mongostore implements the node store on MongoDB, one collection
// per chain, with pipelines translated stage for stage.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/treechain/backend/internal/config"
	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/pipeline"
	"github.com/treechain/backend/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	chainsCollection = "chains"
	usersCollection  = pipeline.UsersCollection
)

// Store is a store.NodeStore over a MongoDB database
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.NodeStore = (*Store)(nil)

// Connect dials MongoDB, verifies the connection and ensures indexes
func Connect(ctx context.Context, cfg config.MongoConfig) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w: %w", store.ErrUnavailable, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w: %w", store.ErrUnavailable, err)
	}

	s := &Store{client: client, db: client.Database(cfg.Database)}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the unique chain name and slug indexes
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(chainsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return unavailable("create chain indexes", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, store.ErrUnavailable, err)
}

type chainDoc struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	Name             string             `bson:"name"`
	Slug             string             `bson:"slug"`
	Icon             string             `bson:"icon"`
	SeedAmount       float64            `bson:"seedAmount"`
	ChildNodes       int                `bson:"childNodes"`
	ParentPercentage float64            `bson:"parentPercentage"`
	IsPause          bool               `bson:"isPause"`
	IsDelete         bool               `bson:"isDelete"`
	Status           string             `bson:"status"`
	RootNode         primitive.ObjectID `bson:"rootNode,omitempty"`
	CreatedAt        time.Time          `bson:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt"`
}

type nodeDoc struct {
	ID           primitive.ObjectID   `bson:"_id,omitempty"`
	User         primitive.ObjectID   `bson:"user"`
	Chain        primitive.ObjectID   `bson:"chain"`
	Children     []primitive.ObjectID `bson:"children"`
	TotalMembers int64                `bson:"totalMembers"`
	TotalEarning float64              `bson:"totalEarning"`
	Value        float64              `bson:"value"`
	Status       string               `bson:"status"`
	IsDelete     bool                 `bson:"isDelete"`
	CreatedAt    time.Time            `bson:"createdAt"`
	UpdatedAt    time.Time            `bson:"updatedAt"`
}

type userDoc struct {
	ID       primitive.ObjectID `bson:"_id"`
	UserName string             `bson:"userName"`
	Email    string             `bson:"email"`
}

// Chains returns the chain registry, newest first
func (s *Store) Chains(ctx context.Context) ([]models.Chain, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	return s.findChains(ctx, opts)
}

func (s *Store) findChains(ctx context.Context, opts *options.FindOptions) ([]models.Chain, error) {
	cur, err := s.db.Collection(chainsCollection).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, unavailable("list chains", err)
	}
	var docs []chainDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, unavailable("decode chains", err)
	}
	chains := make([]models.Chain, 0, len(docs))
	for i := range docs {
		chains = append(chains, toChain(&docs[i]))
	}
	return chains, nil
}

// FindByID returns the node or nil when the collection holds no such node
func (s *Store) FindByID(ctx context.Context, collection, id string) (*models.Node, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	var doc nodeDoc
	err = s.db.Collection(collection).FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("find node", err)
	}
	return toNode(&doc), nil
}

// Aggregate runs p against collection
func (s *Store) Aggregate(ctx context.Context, collection string, p pipeline.Pipeline) ([]models.NodeRow, error) {
	stages, err := translatePipeline(p)
	if err != nil {
		return nil, err
	}
	cur, err := s.db.Collection(collection).Aggregate(ctx, stages)
	if err != nil {
		return nil, unavailable("run pipeline", err)
	}
	rows := []models.NodeRow{}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, unavailable("decode pipeline rows", err)
	}
	if len(p) > 0 {
		if _, counted := p[len(p)-1].(pipeline.Count); counted && len(rows) == 0 {
			// $count emits nothing for an empty stream
			rows = append(rows, models.NodeRow{})
		}
	}
	for i := range rows {
		if rows[i].Children == nil {
			rows[i].Children = []string{}
		}
	}
	return rows, nil
}

// CountMatching counts documents of collection satisfying f
func (s *Store) CountMatching(ctx context.Context, collection string, f pipeline.Filter) (int64, error) {
	n, err := s.db.Collection(collection).CountDocuments(ctx, translateFilter(f))
	if err != nil {
		return 0, unavailable("count nodes", err)
	}
	return n, nil
}

// FindUser returns the user or store.ErrNotFound
func (s *Store) FindUser(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, store.ErrNotFound
	}
	var doc userDoc
	err = s.db.Collection(usersCollection).FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("find user", err)
	}
	return &models.User{ID: doc.ID.Hex(), UserName: doc.UserName, Email: doc.Email}, nil
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func toChain(d *chainDoc) models.Chain {
	c := models.Chain{
		ID:               d.ID.Hex(),
		Name:             d.Name,
		Slug:             d.Slug,
		Icon:             d.Icon,
		SeedAmount:       d.SeedAmount,
		ChildNodes:       d.ChildNodes,
		ParentPercentage: d.ParentPercentage,
		IsPause:          d.IsPause,
		IsDelete:         d.IsDelete,
		Status:           models.ChainStatus(d.Status),
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	if !d.RootNode.IsZero() {
		c.RootNode = d.RootNode.Hex()
	}
	return c
}

func toNode(d *nodeDoc) *models.Node {
	children := make([]string, 0, len(d.Children))
	for _, c := range d.Children {
		children = append(children, c.Hex())
	}
	return &models.Node{
		ID:           d.ID.Hex(),
		User:         d.User.Hex(),
		Chain:        d.Chain.Hex(),
		Children:     children,
		TotalMembers: d.TotalMembers,
		TotalEarning: d.TotalEarning,
		Value:        d.Value,
		Status:       d.Status,
		IsDelete:     d.IsDelete,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}
