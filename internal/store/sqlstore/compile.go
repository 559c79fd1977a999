package sqlstore

import (
	"fmt"
	"strings"

	"github.com/treechain/backend/internal/pipeline"
	"github.com/treechain/backend/internal/store"
)

// segment is the per-collection part of a pipeline: the head stages before
// any UnionWith, or the body of one UnionWith.
type segment struct {
	collection string
	match      pipeline.Filter
	graph      *pipeline.GraphLookup
	lookup     *pipeline.Lookup
	unwound    bool
	// computed fields requested by Project
	descendantCount bool
	collectionName  *string
	username        bool
}

// plan is a pipeline the SQL backend knows how to run
type plan struct {
	segments []segment
	sort     []pipeline.SortKey
	skip     int64
	limit    int64 // <0 means no limit
	count    bool
}

func unsupported(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", store.ErrUnsupportedPipeline, fmt.Sprintf(format, args...))
}

// buildPlan accepts pipelines of the shape
//
//	segment (UnionWith segment)* [Sort] [Skip] [Limit] [Count]
//
// where a segment is Match* [GraphLookup] [Lookup Unwind] [Project].
func buildPlan(collection string, p pipeline.Pipeline) (*plan, error) {
	pl := &plan{limit: -1}

	head, rest := splitSegment(p)
	seg, err := parseSegment(collection, head)
	if err != nil {
		return nil, err
	}
	pl.segments = append(pl.segments, seg)

	const (
		phaseUnion = iota
		phaseSort
		phaseSkip
		phaseLimit
		phaseCount
	)
	phase := phaseUnion
	for _, st := range rest {
		switch s := st.(type) {
		case pipeline.UnionWith:
			if phase > phaseUnion {
				return nil, unsupported("unionWith after %s", "sort/skip/limit")
			}
			inner, leftover := splitSegment(s.Pipeline)
			if len(leftover) > 0 {
				return nil, unsupported("stage %s inside unionWith", pipeline.Name(leftover[0]))
			}
			seg, err := parseSegment(s.Collection, inner)
			if err != nil {
				return nil, err
			}
			pl.segments = append(pl.segments, seg)
		case pipeline.Sort:
			if phase >= phaseSort {
				return nil, unsupported("sort out of order")
			}
			for _, k := range s.Keys {
				if _, ok := sortColumns[k.Field]; !ok {
					return nil, unsupported("sort on %q", k.Field)
				}
			}
			pl.sort = s.Keys
			phase = phaseSort
		case pipeline.Skip:
			if phase >= phaseSkip {
				return nil, unsupported("skip out of order")
			}
			pl.skip = s.N
			phase = phaseSkip
		case pipeline.Limit:
			if phase >= phaseLimit {
				return nil, unsupported("limit out of order")
			}
			pl.limit = s.N
			phase = phaseLimit
		case pipeline.Count:
			if phase >= phaseCount {
				return nil, unsupported("repeated count")
			}
			pl.count = true
			phase = phaseCount
		default:
			return nil, unsupported("stage %s after segment", pipeline.Name(st))
		}
	}
	return pl, nil
}

// splitSegment cuts p at the first stage that cannot belong to a segment
func splitSegment(p pipeline.Pipeline) (pipeline.Pipeline, pipeline.Pipeline) {
	for i, st := range p {
		switch st.(type) {
		case pipeline.Match, pipeline.GraphLookup, pipeline.Lookup, pipeline.Unwind, pipeline.Project:
			continue
		}
		return p[:i], p[i:]
	}
	return p, nil
}

func parseSegment(collection string, stages pipeline.Pipeline) (segment, error) {
	seg := segment{collection: collection}
	projected := false
	for _, st := range stages {
		if projected {
			return seg, unsupported("stage %s after project", pipeline.Name(st))
		}
		switch s := st.(type) {
		case pipeline.Match:
			if seg.graph != nil || seg.lookup != nil {
				return seg, unsupported("match after lookup")
			}
			seg.match = pipeline.All(seg.match, s.Filter)
		case pipeline.GraphLookup:
			if seg.graph != nil {
				return seg, unsupported("repeated graphLookup")
			}
			if s.From != collection || s.StartWith != pipeline.FieldChildren ||
				s.ConnectFromField != pipeline.FieldChildren || s.ConnectToField != pipeline.FieldID {
				return seg, unsupported("graphLookup other than descendants of %s", collection)
			}
			g := s
			seg.graph = &g
		case pipeline.Lookup:
			if seg.lookup != nil {
				return seg, unsupported("repeated lookup")
			}
			if s.From != pipeline.UsersCollection || s.LocalField != pipeline.FieldUser || s.ForeignField != pipeline.FieldID {
				return seg, unsupported("lookup into %s", s.From)
			}
			l := s
			seg.lookup = &l
		case pipeline.Unwind:
			if seg.lookup == nil || s.Path != seg.lookup.As {
				return seg, unsupported("unwind of %s", s.Path)
			}
			seg.unwound = true
		case pipeline.Project:
			if err := seg.applyProject(s); err != nil {
				return seg, err
			}
			projected = true
		}
	}
	if seg.lookup != nil && !seg.unwound {
		return seg, unsupported("lookup without unwind")
	}
	return seg, nil
}

func (seg *segment) applyProject(p pipeline.Project) error {
	for _, f := range p.Fields {
		switch f.Kind {
		case pipeline.Include:
			if _, ok := includable[f.Name]; !ok {
				return unsupported("project of %q", f.Name)
			}
		case pipeline.Size:
			if f.Name != pipeline.FieldTotalMembers || seg.graph == nil || f.Source != seg.graph.As {
				return unsupported("size of %q as %q", f.Source, f.Name)
			}
			seg.descendantCount = true
		case pipeline.Literal:
			v, ok := f.Value.(string)
			if f.Name != pipeline.FieldCollectionName || !ok {
				return unsupported("literal %q", f.Name)
			}
			seg.collectionName = &v
		case pipeline.FieldRef:
			if f.Name != pipeline.FieldUsername || seg.lookup == nil || f.Source != seg.lookup.As+".userName" {
				return unsupported("field reference %q", f.Source)
			}
			seg.username = true
		}
	}
	return nil
}

var includable = map[string]struct{}{
	pipeline.FieldID:           {},
	pipeline.FieldUser:         {},
	pipeline.FieldChain:        {},
	pipeline.FieldChildren:     {},
	pipeline.FieldTotalMembers: {},
	pipeline.FieldTotalEarning: {},
	pipeline.FieldValue:        {},
	pipeline.FieldCreatedAt:    {},
	pipeline.FieldIsDelete:     {},
}

// sortColumns maps document fields to columns of the row subquery q
var sortColumns = map[string]string{
	pipeline.FieldID:           "q.id",
	pipeline.FieldTotalMembers: "q.total_members",
	pipeline.FieldTotalEarning: "q.total_earning",
	pipeline.FieldValue:        "q.value",
	pipeline.FieldCreatedAt:    "q.created_at",
	pipeline.FieldUsername:     "q.username",
}

// filterColumns maps document fields to tree_nodes columns
var filterColumns = map[string]string{
	pipeline.FieldID:           "n.id",
	pipeline.FieldUser:         "n.user_id",
	pipeline.FieldChain:        "n.chain_id",
	pipeline.FieldTotalMembers: "n.total_members",
	pipeline.FieldTotalEarning: "n.total_earning",
	pipeline.FieldValue:        "n.value",
	pipeline.FieldIsDelete:     "n.is_delete",
}

const childCountSQL = "(SELECT COUNT(*) FROM tree_node_children k WHERE k.parent_id = n.id)"

// compileFilter renders f against the tree_nodes alias n
func compileFilter(f pipeline.Filter) (string, []interface{}, error) {
	switch v := f.(type) {
	case nil:
		return "1=1", nil, nil
	case pipeline.Eq:
		col, ok := filterColumns[v.Field]
		if !ok {
			return "", nil, unsupported("filter on %q", v.Field)
		}
		return col + " = ?", []interface{}{v.Value}, nil
	case pipeline.SizeEq:
		if v.Field != pipeline.FieldChildren {
			return "", nil, unsupported("size of %q", v.Field)
		}
		return childCountSQL + " = ?", []interface{}{v.N}, nil
	case pipeline.SizeLt:
		if v.Field != pipeline.FieldChildren {
			return "", nil, unsupported("size of %q", v.Field)
		}
		return childCountSQL + " < ?", []interface{}{v.N}, nil
	case pipeline.And:
		if len(v) == 0 {
			return "1=1", nil, nil
		}
		parts := make([]string, 0, len(v))
		var args []interface{}
		for _, inner := range v {
			sql, innerArgs, err := compileFilter(inner)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, "("+sql+")")
			args = append(args, innerArgs...)
		}
		return strings.Join(parts, " AND "), args, nil
	default:
		return "", nil, unsupported("filter %T", f)
	}
}

// render produces the SQL for the plan. chainIDs maps collection names to
// chain ids; unknown collections match nothing. unlimited is the dialect's
// spelling of "no limit" for LIMIT ... OFFSET.
func (pl *plan) render(chainIDs map[string]string, unlimited string) (string, []interface{}, error) {
	var (
		b        strings.Builder
		args     []interface{}
		anyGraph bool
	)

	b.WriteString("WITH RECURSIVE seg_rows AS (")
	for i, seg := range pl.segments {
		if i > 0 {
			b.WriteString(" UNION ALL ")
		}
		where, whereArgs, err := compileFilter(seg.match)
		if err != nil {
			return "", nil, err
		}

		username := "''"
		join := ""
		if seg.lookup != nil {
			join = " JOIN users u ON u.id = n.user_id"
			if seg.username {
				username = "u.user_name"
			}
		}
		collectionName := "''"
		if seg.collectionName != nil {
			collectionName = "CAST(? AS VARCHAR(255))"
			args = append(args, *seg.collectionName)
		}
		graph := 0
		if seg.descendantCount {
			graph = 1
			anyGraph = true
		}

		fmt.Fprintf(&b, "SELECT n.id AS id, n.chain_id AS chain_id, n.user_id AS user_id, "+
			"n.total_members AS total_members, n.total_earning AS total_earning, n.value AS value, "+
			"n.created_at AS created_at, %s AS username, %s AS collection_name, %d AS seg, %d AS graph "+
			"FROM tree_nodes n%s WHERE n.chain_id = ? AND (%s)",
			username, collectionName, i, graph, join, where)
		args = append(args, chainIDs[seg.collection])
		args = append(args, whereArgs...)
	}
	b.WriteString(")")

	totalMembers := "r.total_members"
	if anyGraph {
		// UNION (not UNION ALL) drops repeated pairs, which ends recursion on cycles.
		b.WriteString(", closure(ancestor_id, node_id) AS (" +
			"SELECT e.parent_id, e.child_id FROM tree_node_children e JOIN tree_nodes d ON d.id = e.child_id " +
			"WHERE e.parent_id IN (SELECT id FROM seg_rows WHERE graph = 1) " +
			"UNION " +
			"SELECT c.ancestor_id, e.child_id FROM closure c " +
			"JOIN tree_node_children e ON e.parent_id = c.node_id JOIN tree_nodes d ON d.id = e.child_id)")
		totalMembers = "CASE WHEN r.graph = 1 THEN (SELECT COUNT(*) FROM closure c WHERE c.ancestor_id = r.id) ELSE r.total_members END"
	}

	rows := "SELECT q.id, q.chain_id, q.user_id, q.total_members, q.total_earning, q.value, q.username, q.collection_name FROM (" +
		"SELECT r.id, r.chain_id, r.user_id, " + totalMembers + " AS total_members, r.total_earning, r.value, " +
		"r.username, r.collection_name, r.created_at, r.seg FROM seg_rows r) q"

	order := make([]string, 0, len(pl.sort)+3)
	for _, k := range pl.sort {
		col := sortColumns[k.Field]
		if k.Desc {
			col += " DESC"
		}
		order = append(order, col)
	}
	if len(pl.sort) == 0 {
		order = append(order, "q.seg", "q.created_at")
	}
	order = append(order, "q.id")
	rows += " ORDER BY " + strings.Join(order, ", ")

	switch {
	case pl.limit >= 0:
		rows += " LIMIT ? OFFSET ?"
		args = append(args, pl.limit, pl.skip)
	case pl.skip > 0:
		rows += " LIMIT " + unlimited + " OFFSET ?"
		args = append(args, pl.skip)
	}

	if pl.count {
		b.WriteString(" SELECT COUNT(*) AS row_count FROM (" + rows + ") w")
	} else {
		b.WriteString(" " + rows)
	}
	return b.String(), args, nil
}
