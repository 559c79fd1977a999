package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// FilterMode restricts nodes by how many immediate children they hold
type FilterMode string

const (
	FilterNone           FilterMode = ""
	FilterFullyPopulated FilterMode = "fullypopulated"
	FilterUnderPopulated FilterMode = "underpopulated"
)

// ParseFilterMode accepts the query-string spelling, case-insensitively
func ParseFilterMode(raw string) (FilterMode, error) {
	switch mode := FilterMode(strings.ToLower(strings.TrimSpace(raw))); mode {
	case FilterNone, FilterFullyPopulated, FilterUnderPopulated:
		return mode, nil
	default:
		return FilterNone, fmt.Errorf("unknown filter %q", raw)
	}
}

// ErrPageOutOfRange reports a page whose row offset does not fit in an int64.
var ErrPageOutOfRange = errors.New("page out of range")

// PageRequest is a 1-based page with a page size
type PageRequest struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Skip returns the number of rows before the page
func (p PageRequest) Skip() int64 {
	if p.Page < 1 {
		return 0
	}
	return int64(p.Page-1) * int64(p.Limit)
}

// Validate rejects pages whose Skip would overflow
func (p PageRequest) Validate() error {
	if p.Page > 1 && p.Limit > 0 && int64(p.Page-1) > math.MaxInt64/int64(p.Limit) {
		return fmt.Errorf("%w: page %d with limit %d", ErrPageOutOfRange, p.Page, p.Limit)
	}
	return nil
}

// UserNodesQuery holds the options for listing a user's nodes
type UserNodesQuery struct {
	UserID string
	Page   PageRequest
	Filter FilterMode
	Sort   string
}

// UserNodesResult is a page of leveled nodes plus population counts
type UserNodesResult struct {
	Nodes          []LeveledNode `json:"nodes"`
	Total          int64         `json:"total"`
	FullyPopulated int64         `json:"fully_populated"`
	UnderPopulated int64         `json:"under_populated"`
	Page           int           `json:"page"`
	Limit          int           `json:"limit"`
}

// ChainPopulation holds the per-chain population counts
type ChainPopulation struct {
	Chain          string `json:"chain"`
	FullyPopulated int64  `json:"fully_populated"`
	UnderPopulated int64  `json:"under_populated"`
	Matching       int64  `json:"matching"`
}

// PopulationReport sums the per-chain counts
type PopulationReport struct {
	Chains         []ChainPopulation `json:"chains"`
	FullyPopulated int64             `json:"fully_populated"`
	UnderPopulated int64             `json:"under_populated"`
	Matching       int64             `json:"matching"`
}
