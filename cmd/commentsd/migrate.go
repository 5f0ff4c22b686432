package main

import (
	"errors"

	"github.com/edgeee/commentsystem/config"
	"github.com/edgeee/commentsystem/postgres"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Store != config.StorePostgres {
			return errors.New("migrate needs the postgres store")
		}
		pg, err := postgres.Connect(cmd.Context(), cfg.Database.URL)
		if err != nil {
			return err
		}
		defer pg.Close()

		applied, err := pg.Migrate(cmd.Context())
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			logger.Info("Database is up to date")
			return nil
		}
		logger.Info("Applied migrations", "migrations", applied)
		return nil
	},
}
