// Package backend opens the node store selected by configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/treechain/backend/internal/config"
	"github.com/treechain/backend/internal/database"
	"github.com/treechain/backend/internal/store"
	"github.com/treechain/backend/internal/store/mongostore"
	"github.com/treechain/backend/internal/store/sqlstore"
)

// Open connects the configured backend. SQL backends are migrated first.
func Open(ctx context.Context, cfg *config.Config) (store.NodeStore, error) {
	switch cfg.Store.Backend {
	case config.BackendMongo:
		st, err := mongostore.Connect(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		return st, nil
	case config.BackendPostgres, config.BackendSQLite:
		db, err := database.InitDB(cfg.Database, cfg.Store.Backend)
		if err != nil {
			return nil, err
		}
		return sqlstore.New(db), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
