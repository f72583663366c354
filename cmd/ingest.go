package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"photoingest/internal/models"
)

func newIngestCmd(configPath *string) *cobra.Command {
	var (
		opts      models.Options
		noSkip    bool
		noWait    bool
		maxErrors int
	)

	cmd := &cobra.Command{
		Use:   "ingest <folder>",
		Short: "Ingest a folder of images and wait for the batch to finish",
		Example: `  # Ingest a card dump with larger thumbnails
  photoingest ingest /media/card/DCIM --thumbnail-size 400

  # Re-import everything, including files already in the database
  photoingest ingest ./photos --no-skip-duplicates`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}

			if noSkip {
				skip := false
				opts.SkipDuplicates = &skip
			}

			id, err := a.orch.Start(cmd.Context(), args[0], opts)
			if err != nil {
				_ = a.close(context.Background())
				return err
			}

			b, err := a.orch.Wait(cmd.Context(), id)
			printSummary(cmd.OutOrStdout(), b, maxErrors)

			// Enrichment keeps running after the batch loop; wait for it
			// unless asked not to or interrupted.
			closeCtx := cmd.Context()
			if noWait || closeCtx.Err() != nil {
				var cancel context.CancelFunc
				closeCtx, cancel = shutdownContext(time.Second)
				defer cancel()
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "waiting for image analysis to finish...")
			}
			if closeErr := a.close(closeCtx); closeErr != nil && err == nil && !noWait {
				err = closeErr
			}
			if err == nil && b.Result.Status == models.BatchStatusError {
				err = fmt.Errorf("batch %s failed: %s", b.ID, b.Result.Message)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&opts.ThumbnailSize, "thumbnail-size", 0, "Thumbnail bounding box in pixels (100-800)")
	cmd.Flags().IntVar(&opts.AnalysisImageSize, "analysis-size", 0, "Analysis image bounding box in pixels (512-2048)")
	cmd.Flags().IntVar(&opts.Quality, "quality", 0, "JPEG quality for previews (50-100)")
	cmd.Flags().BoolVar(&noSkip, "no-skip-duplicates", false, "Import files even if a record with the same name and size exists")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Exit without waiting for background analysis")
	cmd.Flags().IntVar(&maxErrors, "max-errors", 20, "Maximum number of per-file errors to print")
	return cmd
}

func printSummary(w io.Writer, b models.Batch, maxErrors int) {
	r := b.Result
	elapsed := time.Since(r.StartTime)
	if r.EndTime != nil {
		elapsed = r.EndTime.Sub(r.StartTime)
	}

	var size int64
	for _, img := range r.Images {
		size += img.FileSize
	}

	fmt.Fprintf(w, "batch %s %s in %s\n", b.ID, r.Status, elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  folder:     %s\n", b.FolderPath)
	fmt.Fprintf(w, "  files:      %d found, %d processed\n", r.TotalFiles, r.ProcessedFiles)
	fmt.Fprintf(w, "  imported:   %d (%s)\n", r.SuccessfulFiles, humanize.Bytes(uint64(size)))
	fmt.Fprintf(w, "  duplicates: %d\n", r.DuplicateFiles)
	fmt.Fprintf(w, "  errors:     %d\n", r.ErrorFiles)
	if r.Message != "" {
		fmt.Fprintf(w, "  message:    %s\n", r.Message)
	}

	shown := 0
	for _, e := range r.Errors {
		if e.Type == models.ErrorTypeDuplicate {
			continue
		}
		if shown == maxErrors {
			fmt.Fprintf(w, "  ... %s more\n", humanize.Comma(int64(r.ErrorFiles-shown)))
			break
		}
		fmt.Fprintf(w, "  ! %s: %s\n", e.Path, e.Message)
		shown++
	}
}
