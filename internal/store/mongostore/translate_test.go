package mongostore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/pipeline"
	"github.com/treechain/backend/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestTranslateUserNodesSegment(t *testing.T) {
	user := primitive.NewObjectID()
	p := pipeline.Pipeline{
		pipeline.Match{Filter: pipeline.All(
			pipeline.Eq{Field: pipeline.FieldUser, Value: user.Hex()},
			pipeline.PopulationFilter(models.FilterFullyPopulated, 2),
		)},
		pipeline.Descendants("treeNodes10D"),
		pipeline.Project{Fields: append(pipeline.Keep(pipeline.FieldChain),
			pipeline.SizeOf(pipeline.FieldTotalMembers, pipeline.DescendantsAs),
			pipeline.Const(pipeline.FieldCollectionName, "treeNodes10D"))},
	}

	out, err := translatePipeline(p)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, bson.D{{Key: "$match", Value: bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "user", Value: user}},
		bson.D{{Key: "children", Value: bson.D{{Key: "$size", Value: 2}}}},
	}}}}}, out[0])

	assert.Equal(t, bson.D{{Key: "$graphLookup", Value: bson.D{
		{Key: "from", Value: "treeNodes10D"},
		{Key: "startWith", Value: "$children"},
		{Key: "connectFromField", Value: "children"},
		{Key: "connectToField", Value: "_id"},
		{Key: "as", Value: "descendants"},
	}}}, out[1])

	assert.Equal(t, bson.D{{Key: "$project", Value: bson.D{
		{Key: "chain", Value: 1},
		{Key: "totalMembers", Value: bson.D{{Key: "$size", Value: "$descendants"}}},
		{Key: "collectionName", Value: bson.D{{Key: "$literal", Value: "treeNodes10D"}}},
	}}}, out[2])
}

func TestTranslateUnionAndTail(t *testing.T) {
	out, err := translatePipeline(pipeline.Pipeline{
		pipeline.UnionWith{Collection: "treeNodes3D", Pipeline: pipeline.Pipeline{
			pipeline.Match{Filter: pipeline.SizeLt{Field: pipeline.FieldChildren, N: 3}},
		}},
		pipeline.Sort{Keys: []pipeline.SortKey{{Field: pipeline.FieldTotalEarning, Desc: true}, {Field: pipeline.FieldID}}},
		pipeline.Skip{N: 20},
		pipeline.Limit{N: 10},
		pipeline.Count{As: "count"},
	})
	require.NoError(t, err)

	union := out[0][0].Value.(bson.D)
	assert.Equal(t, "treeNodes3D", union[0].Value)
	inner := union[1].Value.(mongo.Pipeline)
	require.Len(t, inner, 1)
	assert.Equal(t, "$expr", inner[0][0].Value.(bson.D)[0].Key)

	assert.Equal(t, bson.D{{Key: "$sort", Value: bson.D{{Key: "totalEarning", Value: -1}, {Key: "_id", Value: 1}}}}, out[1])
	assert.Equal(t, bson.D{{Key: "$skip", Value: int64(20)}}, out[2])
	assert.Equal(t, bson.D{{Key: "$limit", Value: int64(10)}}, out[3])
	assert.Equal(t, bson.D{{Key: "$count", Value: "count"}}, out[4])
}

func TestTranslateLookupForTopN(t *testing.T) {
	out, err := translatePipeline(pipeline.Pipeline{
		pipeline.Lookup{From: "users", LocalField: "user", ForeignField: "_id", As: "userData"},
		pipeline.Unwind{Path: "userData"},
		pipeline.Project{Fields: []pipeline.Projection{pipeline.Ref("username", "userData.userName")}},
	})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "$unwind", Value: "$userData"}}, out[1])
	assert.Equal(t, bson.D{{Key: "$project", Value: bson.D{{Key: "username", Value: "$userData.userName"}}}}, out[2])
}

func TestIDValue(t *testing.T) {
	oid := primitive.NewObjectID()
	assert.Equal(t, oid, idValue(pipeline.FieldID, oid.Hex()))
	assert.Equal(t, "not-hex", idValue(pipeline.FieldUser, "not-hex"))
	assert.Equal(t, oid.Hex(), idValue(pipeline.FieldCollectionName, oid.Hex()))
	assert.Equal(t, true, idValue(pipeline.FieldIsDelete, true))
}

func TestTranslateFilterNilMatchesAll(t *testing.T) {
	assert.Equal(t, bson.D{}, translateFilter(nil))
	assert.Equal(t, bson.D{}, translateFilter(pipeline.And{}))
}

func TestTranslateRejectsUnknownProjection(t *testing.T) {
	_, err := translateStage(pipeline.Project{Fields: []pipeline.Projection{{Name: "x", Kind: pipeline.ProjectionKind(42)}}})
	assert.ErrorIs(t, err, store.ErrUnsupportedPipeline)
}

func TestNodeRowDecodesObjectIDsAsHex(t *testing.T) {
	id, child, chain := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	raw, err := bson.Marshal(bson.D{
		{Key: "_id", Value: id},
		{Key: "chain", Value: chain},
		{Key: "children", Value: bson.A{child}},
		{Key: "totalMembers", Value: int32(4)},
		{Key: "collectionName", Value: "treeNodes10D"},
	})
	require.NoError(t, err)

	var row models.NodeRow
	require.NoError(t, bson.Unmarshal(raw, &row))
	assert.Equal(t, id.Hex(), row.ID)
	assert.Equal(t, chain.Hex(), row.Chain)
	assert.Equal(t, []string{child.Hex()}, row.Children)
	assert.Equal(t, int64(4), row.TotalMembers)
	assert.Equal(t, "treeNodes10D", row.CollectionName)
}
