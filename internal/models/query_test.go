package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFilterMode(t *testing.T) {
	mode, err := ParseFilterMode(" FullyPopulated ")
	assert.NoError(t, err)
	assert.Equal(t, FilterFullyPopulated, mode)

	mode, err = ParseFilterMode("")
	assert.NoError(t, err)
	assert.Equal(t, FilterNone, mode)

	_, err = ParseFilterMode("half")
	assert.Error(t, err)
}

func TestPageSkip(t *testing.T) {
	assert.Equal(t, int64(0), PageRequest{Page: 1, Limit: 10}.Skip())
	assert.Equal(t, int64(20), PageRequest{Page: 3, Limit: 10}.Skip())
	assert.Equal(t, int64(0), PageRequest{Page: 0, Limit: 10}.Skip())
}

func TestPageValidate(t *testing.T) {
	assert.NoError(t, PageRequest{Page: 3, Limit: 10}.Validate())
	assert.NoError(t, PageRequest{Page: math.MaxInt64, Limit: 1}.Validate())

	huge := PageRequest{Page: math.MaxInt64 / 50, Limit: 100}
	assert.ErrorIs(t, huge.Validate(), ErrPageOutOfRange)
	assert.ErrorIs(t, PageRequest{Page: math.MaxInt64, Limit: 2}.Validate(), ErrPageOutOfRange)
}

func TestChainHelpers(t *testing.T) {
	c := Chain{Name: "10D", SeedAmount: 10, ParentPercentage: 25, Status: ChainEnabled}
	assert.Equal(t, "treeNodes10D", c.Collection())
	assert.Equal(t, 2.5, c.ParentReward())
	assert.True(t, c.Joinable())

	c.IsPause = true
	assert.False(t, c.Joinable())
	c.IsPause = false
	c.Status = ChainBlocked
	assert.False(t, c.Joinable())
}

func TestChainNameFromCollection(t *testing.T) {
	name, ok := ChainNameFromCollection("treeNodes30D")
	assert.True(t, ok)
	assert.Equal(t, "30D", name)

	_, ok = ChainNameFromCollection("users")
	assert.False(t, ok)
}
