package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/treechain/backend/internal/pipeline"
	"github.com/treechain/backend/internal/store"
)

func TestBuildPlanSplitsSegments(t *testing.T) {
	seg := pipeline.Pipeline{
		pipeline.Match{Filter: pipeline.Eq{Field: pipeline.FieldUser, Value: "u"}},
		pipeline.Descendants("treeNodesB"),
		pipeline.Project{Fields: []pipeline.Projection{pipeline.SizeOf(pipeline.FieldTotalMembers, pipeline.DescendantsAs)}},
	}
	head := pipeline.Pipeline{
		pipeline.Match{Filter: pipeline.Eq{Field: pipeline.FieldUser, Value: "u"}},
		pipeline.Descendants("treeNodesA"),
		pipeline.UnionWith{Collection: "treeNodesB", Pipeline: seg},
		pipeline.Sort{Keys: []pipeline.SortKey{{Field: pipeline.FieldTotalMembers, Desc: true}}},
		pipeline.Skip{N: 10},
		pipeline.Limit{N: 10},
	}

	pl, err := buildPlan("treeNodesA", head)
	require.NoError(t, err)
	require.Len(t, pl.segments, 2)
	assert.False(t, pl.segments[0].descendantCount)
	assert.True(t, pl.segments[1].descendantCount)
	assert.Equal(t, int64(10), pl.skip)
	assert.Equal(t, int64(10), pl.limit)

	sql, args, err := pl.render(map[string]string{"treeNodesA": "a", "treeNodesB": "b"}, "-1")
	require.NoError(t, err)
	assert.Contains(t, sql, "UNION ALL")
	assert.Contains(t, sql, "closure")
	assert.Contains(t, sql, "ORDER BY q.total_members DESC, q.id")
	assert.Equal(t, []interface{}{"a", "u", "b", "u", int64(10), int64(10)}, args)
}

func TestBuildPlanRejects(t *testing.T) {
	cases := map[string]pipeline.Pipeline{
		"foreign graph": {pipeline.Descendants("treeNodesOther")},
		"limit before sort": {
			pipeline.Limit{N: 1},
			pipeline.Sort{Keys: []pipeline.SortKey{{Field: pipeline.FieldValue}}},
		},
		"lookup without unwind": {
			pipeline.Lookup{From: pipeline.UsersCollection, LocalField: pipeline.FieldUser, ForeignField: pipeline.FieldID, As: "u"},
		},
		"sort on unknown field": {pipeline.Sort{Keys: []pipeline.SortKey{{Field: "status"}}}},
		"nested union":          {pipeline.UnionWith{Collection: "treeNodesB", Pipeline: pipeline.Pipeline{pipeline.Limit{N: 1}}}},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := buildPlan("treeNodesA", p)
			assert.ErrorIs(t, err, store.ErrUnsupportedPipeline)
		})
	}
}

func TestCompileFilter(t *testing.T) {
	sql, args, err := compileFilter(pipeline.All(
		pipeline.Eq{Field: pipeline.FieldUser, Value: "u"},
		pipeline.SizeEq{Field: pipeline.FieldChildren, N: 2},
	))
	require.NoError(t, err)
	assert.Equal(t, "(n.user_id = ?) AND ("+childCountSQL+" = ?)", sql)
	assert.Equal(t, []interface{}{"u", 2}, args)

	_, _, err = compileFilter(pipeline.Eq{Field: "nickname", Value: "x"})
	assert.ErrorIs(t, err, store.ErrUnsupportedPipeline)
}
