package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "photoingest",
		Short: "Batch image ingestion with AI enrichment",
		Long: `photoingest copies folders of photos (JPEG, PNG, TIFF and camera RAW) into
managed storage, builds thumbnails and previews, extracts EXIF/XMP metadata
and asks a vision model for a description, caption and keywords.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")

	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newIngestCmd(&configPath))
	cmd.AddCommand(newMigrateCmd(&configPath))

	return cmd
}
