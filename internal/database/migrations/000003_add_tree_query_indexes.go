package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

var treeQueryIndexes = []struct{ name, ddl string }{
	{"idx_tree_nodes_chain_user", "CREATE INDEX IF NOT EXISTS idx_tree_nodes_chain_user ON tree_nodes(chain_id, user_id)"},
	{"idx_tree_nodes_chain_earning", "CREATE INDEX IF NOT EXISTS idx_tree_nodes_chain_earning ON tree_nodes(chain_id, total_earning)"},
}

func addTreeQueryIndexesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_add_tree_query_indexes",
		Migrate: func(tx *gorm.DB) error {
			for _, idx := range treeQueryIndexes {
				if err := tx.Exec(idx.ddl).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			for _, idx := range treeQueryIndexes {
				if err := tx.Exec("DROP INDEX IF EXISTS " + idx.name).Error; err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func init() {
	migrationsList = append(migrationsList, addTreeQueryIndexesMigration())
}
