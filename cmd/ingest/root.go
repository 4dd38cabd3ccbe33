package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/laptop-assistant/internal/adapter/observability"
	"github.com/fairyhunter13/laptop-assistant/internal/usecase"
)

type ingestor interface {
	RunIngestion(ctx context.Context, filePath string, progress usecase.ProgressFunc) (usecase.IngestionReport, error)
	RunIngestionFromObject(ctx context.Context, remoteName string, progress usecase.ProgressFunc) (usecase.IngestionReport, error)
}

type opener func(ctx context.Context, snapshot string) (ingestor, func(), error)

func newRootCmd(open opener) *cobra.Command {
	var (
		object   string
		snapshot string
		quiet    bool
	)
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Map a laptop catalog and replace the catalog store with it",
		Long: `Reads a CSV, XLSX or Parquet catalog with Description and Price columns,
maps every description into a laptop profile and replaces the configured
catalog store. Rows that already carry a mapped_dictionary are reused.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (object != "") {
				return errors.New("provide either a file argument or --object")
			}
			svc, closeFn, err := open(cmd.Context(), snapshot)
			if err != nil {
				return fmt.Errorf("op=ingest.open: %w", err)
			}
			defer closeFn()

			var progress usecase.ProgressFunc
			if !quiet {
				progress = progressPrinter(cmd.ErrOrStderr())
			}
			var rep usecase.IngestionReport
			if object != "" {
				rep, err = svc.RunIngestionFromObject(cmd.Context(), object, progress)
			} else {
				rep, err = svc.RunIngestion(cmd.Context(), args[0], progress)
			}
			observability.ObserveIngestion(rep.Rows, err)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d rows ingested from %s (%d reused)\n", rep.RunID, rep.Rows, rep.File, rep.Reused)
			if rep.Snapshot != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "snapshot written to %s\n", rep.Snapshot)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&object, "object", "", "ingest a catalog previously uploaded to object storage")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "override MAPPED_SNAPSHOT_FILE")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	return cmd
}

// progressPrinter writes one line per event; mapping workers call it concurrently.
func progressPrinter(w io.Writer) usecase.ProgressFunc {
	var mu sync.Mutex
	return func(p usecase.Progress) {
		mu.Lock()
		defer mu.Unlock()
		if p.Total > 0 {
			fmt.Fprintf(w, "[%s] %s %d/%d %s\n", p.RunID, p.Stage, p.Done, p.Total, p.Message)
			return
		}
		fmt.Fprintf(w, "[%s] %s %s\n", p.RunID, p.Stage, p.Message)
	}
}
