package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bcnelson/webscenario-manager/internal/storage/sql"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer store.Close()

		log.Info("Database is up to date", zap.String("driver", cfg.Database.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
