package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "treectl",
		Short:         "Operate the referral tree backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("backend", "", "node store backend (postgres, sqlite, mongo); defaults to STORE_BACKEND")

	root.AddCommand(migrateCmd())
	root.AddCommand(userCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(levelsCmd())
	root.AddCommand(nodesCmd())
	root.AddCommand(topCmd())
	root.AddCommand(recountCmd())
	return root
}
