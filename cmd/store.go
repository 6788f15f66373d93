package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Database maintenance",
}

var storeMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(cmd.Context()); err != nil {
			return err
		}
		zap.L().Info("store migrated", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

var storePruneCacheCmd = &cobra.Command{
	Use:   "prune-cache",
	Short: "Delete expired enrichment cache entries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Store.DeleteExpiredEnrichments(cmd.Context())
		if err != nil {
			return err
		}
		zap.L().Info("enrichment cache pruned", zap.Int("deleted", n))
		return nil
	},
}

func init() {
	storeCmd.AddCommand(storeMigrateCmd, storePruneCacheCmd)
	rootCmd.AddCommand(storeCmd)
}
