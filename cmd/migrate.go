package main

import (
	"github.com/spf13/cobra"

	"photoingest/internal/storage"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, closeLog, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer closeLog()

			store, err := storage.Open(cmd.Context(), cfg.DatabaseURL, log)
			if err != nil {
				return err
			}
			log.Info("database is up to date", "database", storageKind(cfg.DatabaseURL))
			return store.Close()
		},
	}
}
