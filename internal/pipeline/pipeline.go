// Package pipeline describes aggregation pipelines over node collections
// without committing to a storage engine. Stores translate a Pipeline into
// their native query form.
package pipeline

import "github.com/treechain/backend/internal/models"

// Document fields shared by every node collection
const (
	FieldID             = "_id"
	FieldUser           = "user"
	FieldChain          = "chain"
	FieldChildren       = "children"
	FieldTotalMembers   = "totalMembers"
	FieldTotalEarning   = "totalEarning"
	FieldValue          = "value"
	FieldUsername       = "username"
	FieldCollectionName = "collectionName"
	FieldCreatedAt      = "createdAt"
	FieldIsDelete       = "isDelete"

	// DescendantsAs is the array a GraphLookup writes reachable nodes into.
	DescendantsAs = "descendants"
	// UsersCollection holds user records joined by Lookup.
	UsersCollection = "users"
)

// Stage is one step of a Pipeline
type Stage interface {
	stageName() string
}

// Pipeline is an ordered list of stages
type Pipeline []Stage

// Match keeps documents satisfying Filter
type Match struct {
	Filter Filter
}

// GraphLookup collects every document reachable from StartWith by
// repeatedly following ConnectFromField to ConnectToField within From.
type GraphLookup struct {
	From             string
	StartWith        string
	ConnectFromField string
	ConnectToField   string
	As               string
}

// Lookup joins documents of From where ForeignField equals LocalField
type Lookup struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
}

// Unwind flattens the array at Path, dropping documents where it is empty
type Unwind struct {
	Path string
}

// Project reshapes each document
type Project struct {
	Fields []Projection
}

// UnionWith appends the output of Pipeline run against Collection
type UnionWith struct {
	Collection string
	Pipeline   Pipeline
}

// Count replaces the stream with a single document holding its size
type Count struct {
	As string
}

// Sort orders the stream by Keys, in order of precedence
type Sort struct {
	Keys []SortKey
}

// SortKey is one sort column
type SortKey struct {
	Field string
	Desc  bool
}

// Skip drops the first N documents
type Skip struct {
	N int64
}

// Limit keeps at most N documents
type Limit struct {
	N int64
}

func (Match) stageName() string       { return "match" }
func (GraphLookup) stageName() string { return "graphLookup" }
func (Lookup) stageName() string      { return "lookup" }
func (Unwind) stageName() string      { return "unwind" }
func (Project) stageName() string     { return "project" }
func (UnionWith) stageName() string   { return "unionWith" }
func (Count) stageName() string       { return "count" }
func (Sort) stageName() string        { return "sort" }
func (Skip) stageName() string        { return "skip" }
func (Limit) stageName() string       { return "limit" }

// Name returns the stage kind, for logs and errors
func Name(s Stage) string {
	return s.stageName()
}

// ProjectionKind selects how a projected field is computed
type ProjectionKind int

const (
	// Include copies the field unchanged.
	Include ProjectionKind = iota
	// Size stores the length of the array at Source.
	Size
	// Literal stores Value.
	Literal
	// FieldRef copies the value at the dotted path Source.
	FieldRef
)

// Projection is one field of a Project stage
type Projection struct {
	Name   string
	Kind   ProjectionKind
	Source string
	Value  interface{}
}

// Keep projects fields unchanged
func Keep(fields ...string) []Projection {
	out := make([]Projection, 0, len(fields))
	for _, f := range fields {
		out = append(out, Projection{Name: f, Kind: Include})
	}
	return out
}

// SizeOf projects the length of the array source as name
func SizeOf(name, source string) Projection {
	return Projection{Name: name, Kind: Size, Source: source}
}

// Const projects a literal value as name
func Const(name string, value interface{}) Projection {
	return Projection{Name: name, Kind: Literal, Value: value}
}

// Ref projects the value at path as name
func Ref(name, path string) Projection {
	return Projection{Name: name, Kind: FieldRef, Source: path}
}

// Descendants is the reachability expansion over a node collection:
// everything reachable through children, gathered into DescendantsAs.
func Descendants(collection string) GraphLookup {
	return GraphLookup{
		From:             collection,
		StartWith:        FieldChildren,
		ConnectFromField: FieldChildren,
		ConnectToField:   FieldID,
		As:               DescendantsAs,
	}
}

// PopulationFilter returns the child-count condition for mode, or nil for
// FilterNone.
func PopulationFilter(mode models.FilterMode, branching int) Filter {
	switch mode {
	case models.FilterFullyPopulated:
		return SizeEq{Field: FieldChildren, N: branching}
	case models.FilterUnderPopulated:
		return SizeLt{Field: FieldChildren, N: branching}
	default:
		return nil
	}
}
