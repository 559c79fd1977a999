package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/treechain/backend/internal/config"
	"github.com/treechain/backend/internal/database"
	"github.com/treechain/backend/internal/jobs"
	"github.com/treechain/backend/internal/models"
	"github.com/treechain/backend/internal/services/nodes"
	"github.com/treechain/backend/internal/store/sqlstore"
	"github.com/treechain/backend/internal/tree"
	"github.com/treechain/backend/internal/utils"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run pending SQL migrations, or ensure MongoDB indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "%s store is up to date\n", a.cfg.Store.Backend)
			return nil
		},
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Create a user in a SQL store",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			if name == "" {
				return errors.New("--name is required")
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			sql, ok := a.store.(*sqlstore.Store)
			if !ok {
				return fmt.Errorf("user creation is not supported on the %s backend", a.cfg.Store.Backend)
			}
			u, err := database.CreateUser(sql.DB().WithContext(cmd.Context()), name, email)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), models.User{ID: u.ID, UserName: u.UserName, Email: u.Email})
		},
	}
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("email", "", "email address")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a bearer token signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			email, _ := cmd.Flags().GetString("email")
			admin, _ := cmd.Flags().GetBool("admin")
			pair, err := utils.NewJWTManager(cfg.JWT).GenerateToken(args[0], email, admin)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pair)
		},
	}
	cmd.Flags().String("email", "", "email claim")
	cmd.Flags().Bool("admin", false, "grant the is_admin claim")
	return cmd
}

func levelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "levels <chain> <node-id>",
		Short: "Compute level and complete level of one node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			chain, err := a.chainByRef(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			engine := tree.NewEngine(a.store, a.log, a.cfg.Query.Concurrency)
			m, err := engine.Levels(cmd.Context(), chain.Collection(), args[1], chain.ChildNodes)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), m)
		},
	}
}

func nodesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodes <user-id>",
		Short: "List a user's nodes across every chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			page, _ := cmd.Flags().GetInt("page")
			limit, _ := cmd.Flags().GetInt("limit")
			filter, _ := cmd.Flags().GetString("filter")
			sort, _ := cmd.Flags().GetString("sort")

			svc := nodes.NewNodeService(a.store, tree.NewEngine(a.store, a.log, a.cfg.Query.Concurrency), a.cfg.Query, a.log)
			result, err := svc.GetUserNodesAcrossChains(cmd.Context(), models.UserNodesQuery{
				UserID: args[0],
				Page:   models.PageRequest{Page: page, Limit: limit},
				Filter: models.FilterMode(filter),
				Sort:   sort,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().Int("page", 1, "page number")
	cmd.Flags().Int("limit", 0, "page size; 0 uses the configured default")
	cmd.Flags().String("filter", "", "fullypopulated or underpopulated")
	cmd.Flags().String("sort", "", "totalmembers, totalearning, value or createdat")
	return cmd
}

func topCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "top",
		Short: "List the highest earning nodes across chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			n, _ := cmd.Flags().GetInt("count")
			svc := nodes.NewNodeService(a.store, tree.NewEngine(a.store, a.log, a.cfg.Query.Concurrency), a.cfg.Query, a.log)
			top, err := svc.GetTopNNodes(cmd.Context(), n)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), top)
		},
	}
	cmd.Flags().IntP("count", "n", 0, "number of nodes; 0 uses the configured default")
	return cmd
}

func recountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recount [chain]",
		Short: "Recompute the stored member count of chain roots",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())

			var chains []models.Chain
			if len(args) == 1 {
				c, err := a.chainByRef(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				chains = append(chains, *c)
			} else if chains, err = a.store.Chains(cmd.Context()); err != nil {
				return err
			}

			job := jobs.NewRecountJob(a.store, a.log)
			for i := range chains {
				if chains[i].IsDelete {
					continue
				}
				total, err := job.Recount(cmd.Context(), &chains[i])
				if err != nil {
					return fmt.Errorf("chain %s: %w", chains[i].Name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", chains[i].Name, total)
			}
			return nil
		},
	}
}
