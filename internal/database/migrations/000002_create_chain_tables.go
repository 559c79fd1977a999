package migrations

import (
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

type chainV1 struct {
	ID               string    `gorm:"type:varchar(36);primaryKey"`
	Name             string    `gorm:"type:varchar(100);uniqueIndex;not null"`
	Slug             string    `gorm:"type:varchar(120);uniqueIndex;not null"`
	Icon             string    `gorm:"type:text"`
	SeedAmount       float64   `gorm:"type:numeric(20,2);not null"`
	ChildNodes       int       `gorm:"not null"`
	ParentPercentage float64   `gorm:"type:numeric(5,2);not null;default:0"`
	IsPause          bool      `gorm:"not null;default:false"`
	IsDelete         bool      `gorm:"not null;default:false"`
	Status           string    `gorm:"type:varchar(20);not null;default:'Enabled'"`
	RootNode         string    `gorm:"type:varchar(36)"`
	CreatedAt        time.Time `gorm:"index"`
	UpdatedAt        time.Time
}

func (chainV1) TableName() string { return "chains" }

type treeNodeV1 struct {
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

func (treeNodeV1) TableName() string { return "tree_nodes" }

// Child references are not foreign keys: a dangling reference is data the
// traversal has to tolerate, not something the schema rejects.
type treeNodeChildV1 struct {
	ParentID string `gorm:"type:varchar(36);primaryKey"`
	Position int    `gorm:"primaryKey;autoIncrement:false"`
	ChildID  string `gorm:"type:varchar(36);not null;index"`
}

func (treeNodeChildV1) TableName() string { return "tree_node_children" }

func createChainTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_chain_tables",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&chainV1{}, &treeNodeV1{}, &treeNodeChildV1{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable("tree_node_children", "tree_nodes", "chains")
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createChainTablesMigration())
}
