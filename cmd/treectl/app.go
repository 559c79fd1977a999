package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/treechain/backend/internal/config"
	"github.com/treechain/backend/internal/logger"
	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/store"
	"github.com/treechain/backend/internal/store/backend"
)

// app holds what every store-backed command needs
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	store store.NodeStore
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.LoadConfig()
	if b, _ := cmd.Flags().GetString("backend"); b != "" {
		cfg.Store.Backend = strings.ToLower(b)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, err
	}
	st, err := backend.Open(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, store: st}, nil
}

func (a *app) close(ctx context.Context) {
	_ = a.store.Close(ctx)
	a.log.Sync()
}

// chainByRef resolves a chain by id, slug or name
func (a *app) chainByRef(ctx context.Context, ref string) (*models.Chain, error) {
	if c, err := a.store.GetChain(ctx, ref); err == nil {
		return c, nil
	}
	if c, err := a.store.GetChainBySlug(ctx, ref); err == nil {
		return c, nil
	}
	chains, err := a.store.Chains(ctx)
	if err != nil {
		return nil, err
	}
	for i := range chains {
		if chains[i].Name == ref {
			return &chains[i], nil
		}
	}
	return nil, fmt.Errorf("chain %q: %w", ref, store.ErrNotFound)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
