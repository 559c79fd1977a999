package migrations

import (
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

type userV1 struct {
	ID        string `gorm:"type:varchar(36);primaryKey"`
	UserName  string `gorm:"type:varchar(255);not null"`
	Email     string `gorm:"type:varchar(255);uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (userV1) TableName() string { return "users" }

func createUsersTableMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_users_table",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&userV1{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable("users")
		},
	}
}

func init() {
	migrationsList = append(migrationsList, createUsersTableMigration())
}
