package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/askdoc/askdoc/internal/store"
)

func newIngestCmd() *cobra.Command {
	var uid string
	var wait bool

	cmd := &cobra.Command{
		Use:   "ingest <file.pdf>",
		Short: "Parse and index a PDF document",
		Long: `Parse a PDF document page by page with the multimodal parser and
index the resulting chunks for hybrid retrieval.

Pages with too little text and no images are skipped. Individual page
failures are tallied but do not fail the job.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, args[0], uid, wait)
		},
	}

	cmd.Flags().StringVar(&uid, "uid", "default", "Tenant identifier")
	cmd.Flags().BoolVar(&wait, "wait", true, "Wait for the job to finish")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, path, uid string, wait bool) error {
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	a.queue.Start(ctx, 1)
	job, err := a.queue.Enqueue(ctx, uid, filepath.Base(abs), abs)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "job %s enqueued for %s\n", job.JobID, job.DocName)

	if !wait {
		return nil
	}

	jobs, err := a.jobStore()
	if err != nil {
		return err
	}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	lastProgress := -1
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		current, err := jobs.Get(ctx, job.JobID)
		if err != nil {
			return err
		}
		if current.Progress != lastProgress {
			lastProgress = current.Progress
			fmt.Fprintf(cmd.OutOrStdout(), "  %3d%% (%s)\n", current.Progress, current.Status)
		}
		switch current.Status {
		case store.JobStatusCompleted:
			fmt.Fprintf(cmd.OutOrStdout(), "done: %s\n", current.Message)
			return nil
		case store.JobStatusFailed:
			return fmt.Errorf("ingestion failed: %s", current.Message)
		}
	}
}
