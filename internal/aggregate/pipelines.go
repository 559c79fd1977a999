// Package aggregate merges per-chain node pipelines into one ranked,
// paginated result spanning every chain.
package aggregate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/pipeline"
)

var (
	// ErrEmptyRegistry reports that no chain exists to aggregate over.
	ErrEmptyRegistry = errors.New("chain registry is empty")
	// ErrUnknownChain reports a row whose chain is not in the registry.
	ErrUnknownChain = errors.New("unknown chain")
	// ErrInvalidSort reports a sort field outside the allowed set.
	ErrInvalidSort = errors.New("invalid sort field")
)

// SortTotalMembers is the filter-nodes sort keyword selecting descending
// descendant counts.
const SortTotalMembers = "totalmembers"

const userAs = "userData"

// sortFields lists the fields a user-node listing may be sorted by, keyed
// by their lowercase spelling.
var sortFields = map[string]string{
	"totalmembers": pipeline.FieldTotalMembers,
	"totalearning": pipeline.FieldTotalEarning,
	"value":        pipeline.FieldValue,
	"createdat":    pipeline.FieldCreatedAt,
}

// ParseSort resolves a requested sort field. An empty field means registry
// order.
func ParseSort(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	field, ok := sortFields[strings.ToLower(raw)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidSort, raw)
	}
	return field, nil
}

// Union runs build for every chain and merges the results: the first
// chain's stages run against its own collection, which therefore becomes
// the execution root, and each further chain contributes a UnionWith.
// Every segment scopes itself to its own collection, so the choice of root
// only matters in that it must exist.
func Union(chains []models.Chain, build func(models.Chain) pipeline.Pipeline) (string, pipeline.Pipeline, error) {
	if len(chains) == 0 {
		return "", nil, ErrEmptyRegistry
	}
	root := chains[0].Collection()
	p := append(pipeline.Pipeline{}, build(chains[0])...)
	for _, chain := range chains[1:] {
		p = append(p, pipeline.UnionWith{Collection: chain.Collection(), Pipeline: build(chain)})
	}
	return root, p, nil
}

// UserNodesPipeline lists a user's nodes across chains with descendant
// counts. The population filter uses each chain's own branching factor.
// Sorting happens after the union, then the page is cut from the merged set.
func UserNodesPipeline(chains []models.Chain, userID string, mode models.FilterMode, sortField string, page models.PageRequest) (string, pipeline.Pipeline, error) {
	root, p, err := Union(chains, func(c models.Chain) pipeline.Pipeline {
		return pipeline.Pipeline{
			pipeline.Match{Filter: pipeline.All(
				pipeline.Eq{Field: pipeline.FieldUser, Value: userID},
				pipeline.PopulationFilter(mode, c.ChildNodes),
			)},
			pipeline.Descendants(c.Collection()),
			pipeline.Project{Fields: append(
				pipeline.Keep(pipeline.FieldChain, pipeline.FieldUser, pipeline.FieldChildren,
					pipeline.FieldTotalEarning, pipeline.FieldValue, pipeline.FieldCreatedAt),
				pipeline.SizeOf(pipeline.FieldTotalMembers, pipeline.DescendantsAs),
				pipeline.Const(pipeline.FieldCollectionName, c.Collection()),
			)},
		}
	})
	if err != nil {
		return "", nil, err
	}
	if sortField != "" {
		p = append(p, pipeline.Sort{Keys: []pipeline.SortKey{
			{Field: sortField, Desc: true},
			{Field: pipeline.FieldID},
		}})
	}
	p = append(p, pipeline.Skip{N: page.Skip()}, pipeline.Limit{N: int64(page.Limit)})
	return root, p, nil
}

// TopNPipeline ranks every node of every chain by earnings, joined with the
// owner's username and descendant counts.
func TopNPipeline(chains []models.Chain, n int) (string, pipeline.Pipeline, error) {
	root, p, err := Union(chains, func(c models.Chain) pipeline.Pipeline {
		return pipeline.Pipeline{
			pipeline.Descendants(c.Collection()),
			pipeline.Lookup{
				From:         pipeline.UsersCollection,
				LocalField:   pipeline.FieldUser,
				ForeignField: pipeline.FieldID,
				As:           userAs,
			},
			pipeline.Unwind{Path: userAs},
			pipeline.Project{Fields: append(
				pipeline.Keep(pipeline.FieldChain, pipeline.FieldUser, pipeline.FieldChildren,
					pipeline.FieldTotalEarning, pipeline.FieldValue),
				pipeline.SizeOf(pipeline.FieldTotalMembers, pipeline.DescendantsAs),
				pipeline.Ref(pipeline.FieldUsername, userAs+".userName"),
				pipeline.Const(pipeline.FieldCollectionName, c.Collection()),
			)},
		}
	})
	if err != nil {
		return "", nil, err
	}
	p = append(p,
		pipeline.Sort{Keys: []pipeline.SortKey{
			{Field: pipeline.FieldTotalEarning, Desc: true},
			{Field: pipeline.FieldID},
		}},
		pipeline.Limit{N: int64(n)},
	)
	return root, p, nil
}

// FilterPipeline lists every node of userID across chains with descendant
// counts, ordered by count: descending when sortField is SortTotalMembers,
// ascending otherwise.
func FilterPipeline(chains []models.Chain, userID, sortField string) (string, pipeline.Pipeline, error) {
	root, p, err := Union(chains, func(c models.Chain) pipeline.Pipeline {
		return pipeline.Pipeline{
			pipeline.Match{Filter: pipeline.Eq{Field: pipeline.FieldUser, Value: userID}},
			pipeline.Descendants(c.Collection()),
			pipeline.Project{Fields: append(
				pipeline.Keep(pipeline.FieldChain, pipeline.FieldUser, pipeline.FieldChildren,
					pipeline.FieldTotalEarning, pipeline.FieldValue),
				pipeline.SizeOf(pipeline.FieldTotalMembers, pipeline.DescendantsAs),
			)},
		}
	})
	if err != nil {
		return "", nil, err
	}
	desc := strings.EqualFold(strings.TrimSpace(sortField), SortTotalMembers)
	p = append(p, pipeline.Sort{Keys: []pipeline.SortKey{
		{Field: pipeline.FieldTotalMembers, Desc: desc},
		{Field: pipeline.FieldID},
	}})
	return root, p, nil
}
