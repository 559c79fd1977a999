package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Chain is the chains table row
type Chain struct {
	ID               string  `gorm:"type:varchar(36);primaryKey"`
	Name             string  `gorm:"type:varchar(100);uniqueIndex;not null"`
	Slug             string  `gorm:"type:varchar(120);uniqueIndex;not null"`
	Icon             string  `gorm:"type:text"`
	SeedAmount       float64 `gorm:"type:numeric(20,2);not null"`
	ChildNodes       int     `gorm:"not null"`
	ParentPercentage float64 `gorm:"type:numeric(5,2);not null;default:0"`
	IsPause          bool    `gorm:"not null;default:false"`
	IsDelete         bool    `gorm:"not null;default:false"`
	Status           string  `gorm:"type:varchar(20);not null;default:'Enabled'"`
	RootNode         string  `gorm:"type:varchar(36)"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// BeforeCreate will set a UUID rather than numeric ID
func (c *Chain) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// TreeNode is one node of a chain's tree. Nodes of every chain share the
// table and are told apart by ChainID.
type TreeNode struct {
	ID           string  `gorm:"type:varchar(36);primaryKey"`
	ChainID      string  `gorm:"type:varchar(36);not null;index"`
	UserID       string  `gorm:"type:varchar(36);not null;index"`
	TotalMembers int64   `gorm:"not null;default:0"`
	TotalEarning float64 `gorm:"type:numeric(20,2);not null;default:0"`
	Value        float64 `gorm:"type:numeric(20,2);not null;default:0"`
	Status       string  `gorm:"type:varchar(20);not null;default:'active'"`
	IsDelete     bool    `gorm:"not null;default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BeforeCreate will set a UUID rather than numeric ID
func (n *TreeNode) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

// TreeNodeChild is one ordered child reference
type TreeNodeChild struct {
	ParentID string `gorm:"type:varchar(36);primaryKey"`
	Position int    `gorm:"primaryKey;autoIncrement:false"`
	ChildID  string `gorm:"type:varchar(36);not null;index"`
}

// User is the users table row
type User struct {
	ID        string `gorm:"type:varchar(36);primaryKey"`
	UserName  string `gorm:"type:varchar(255);not null"`
	Email     string `gorm:"type:varchar(255);uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BeforeCreate will set a UUID rather than numeric ID
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
