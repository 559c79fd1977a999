package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/treechain/backend/internal/models"
)

func TestPopulationFilter(t *testing.T) {
	assert.Equal(t, SizeEq{Field: FieldChildren, N: 3}, PopulationFilter(models.FilterFullyPopulated, 3))
	assert.Equal(t, SizeLt{Field: FieldChildren, N: 2}, PopulationFilter(models.FilterUnderPopulated, 2))
	assert.Nil(t, PopulationFilter(models.FilterNone, 2))
}

func TestAllDropsNilAndFlattens(t *testing.T) {
	user := Eq{Field: FieldUser, Value: "u1"}

	assert.Nil(t, All(nil, nil))
	assert.Equal(t, user, All(nil, user))

	combined := All(user, And{SizeEq{Field: FieldChildren, N: 2}}, nil)
	assert.Equal(t, And{user, SizeEq{Field: FieldChildren, N: 2}}, combined)
	assert.Len(t, Flatten(combined), 2)
}

func TestDescendants(t *testing.T) {
	g := Descendants("treeNodes10D")
	assert.Equal(t, "treeNodes10D", g.From)
	assert.Equal(t, FieldChildren, g.StartWith)
	assert.Equal(t, FieldID, g.ConnectToField)
	assert.Equal(t, "graphLookup", Name(g))
}
