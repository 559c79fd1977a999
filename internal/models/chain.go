package models

import (
	"strings"
	"time"
)

// ChainStatus is the administrative state of a chain
type ChainStatus string

const (
	ChainEnabled  ChainStatus = "Enabled"
	ChainDisabled ChainStatus = "Disabled"
	ChainBlocked  ChainStatus = "Blocked"
)

// Valid reports whether s is a known status
func (s ChainStatus) Valid() bool {
	switch s {
	case ChainEnabled, ChainDisabled, ChainBlocked:
		return true
	}
	return false
}

// collectionPrefix names the per-chain node collection
const collectionPrefix = "treeNodes"

// Chain represents one referral program
type Chain struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Slug             string      `json:"slug"`
	Icon             string      `json:"icon"`
	SeedAmount       float64     `json:"seed_amount"`
	ChildNodes       int         `json:"child_nodes"`
	ParentPercentage float64     `json:"parent_percentage"`
	IsPause          bool        `json:"is_pause"`
	IsDelete         bool        `json:"is_delete"`
	Status           ChainStatus `json:"status"`
	RootNode         string      `json:"root_node"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// CollectionName returns the node collection owned by a chain named name
func CollectionName(name string) string {
	return collectionPrefix + name
}

// ChainNameFromCollection reverses CollectionName
func ChainNameFromCollection(collection string) (string, bool) {
	if !strings.HasPrefix(collection, collectionPrefix) {
		return "", false
	}
	return strings.TrimPrefix(collection, collectionPrefix), true
}

// Collection returns the chain's node collection
func (c Chain) Collection() string {
	return CollectionName(c.Name)
}

// Joinable reports whether new members may be placed in the chain
func (c Chain) Joinable() bool {
	return !c.IsPause && !c.IsDelete && c.Status == ChainEnabled
}

// ParentReward is the amount a parent node earns when a child joins
func (c Chain) ParentReward() float64 {
	return c.SeedAmount * c.ParentPercentage / 100
}

// ChainUpdate carries the mutable chain fields; nil means unchanged.
// ChildNodes is fixed at creation and deliberately absent.
type ChainUpdate struct {
	Name             *string
	Slug             *string
	Icon             *string
	ParentPercentage *float64
	IsPause          *bool
	IsDelete         *bool
	Status           *ChainStatus
}

// ChainSummary is a chain with its computed investment
type ChainSummary struct {
	Chain
	Investment float64 `json:"investment"`
}

// ChainList is one page of the chain registry
type ChainList struct {
	Chains          []ChainSummary `json:"chains"`
	TotalInvestment float64        `json:"total_investment"`
	Total           int64          `json:"total"`
	Page            int            `json:"page"`
	Limit           int            `json:"limit"`
}
