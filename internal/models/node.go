package models

import "time"

// Node status values
const (
	NodeActive = "active"
)

// Node is a participant's position in a chain's tree
type Node struct {
	ID           string    `json:"id"`
	User         string    `json:"user"`
	Chain        string    `json:"chain"`
	Children     []string  `json:"children"`
	TotalMembers int64     `json:"total_members"`
	TotalEarning float64   `json:"total_earning"`
	Value        float64   `json:"value"`
	Status       string    `json:"status"`
	IsDelete     bool      `json:"is_delete"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NodeRow is one document produced by an aggregation pipeline
type NodeRow struct {
	ID           string   `json:"id" bson:"_id"`
	Chain        string   `json:"chain" bson:"chain"`
	User         string   `json:"user" bson:"user"`
	Children     []string `json:"children" bson:"children"`
	TotalMembers int64    `json:"total_members" bson:"totalMembers"`
	TotalEarning float64  `json:"total_earning" bson:"totalEarning"`
	Value        float64  `json:"value" bson:"value"`
	Username     string   `json:"username,omitempty" bson:"username,omitempty"`

	// CollectionName marks which chain collection produced the row.
	CollectionName string `json:"-" bson:"collectionName,omitempty"`
	// Count is set only by pipelines ending in a count stage.
	Count int64 `json:"-" bson:"count,omitempty"`
}

// LeveledNode is a row annotated with its tree metrics
type LeveledNode struct {
	NodeRow
	Level         int `json:"level"`
	LevelComplete int `json:"level_complete"`
}

// User is the subset of a user record the tree needs
type User struct {
	ID       string `json:"id"`
	UserName string `json:"username"`
	Email    string `json:"email"`
}
