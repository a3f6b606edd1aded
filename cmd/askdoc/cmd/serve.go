package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/askdoc/askdoc/internal/blobstore"
	"github.com/askdoc/askdoc/internal/maintenance"
	"github.com/askdoc/askdoc/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion worker",
		Long: `Run the long-lived ingestion worker: queue workers process
enqueued documents, the drop-directory watcher (if configured)
auto-ingests new PDFs, and scheduled maintenance purges the page
cache and mirrors snapshots to the blob store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), cmd, workers)
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 2, "Number of concurrent ingestion jobs")

	return cmd
}

func newWatchCmd() *cobra.Command {
	var workers int

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Auto-ingest PDFs dropped into a directory",
		Long: `Watch a drop directory and ingest new PDF files as they settle.
Files under a subdirectory belong to the tenant named by that
subdirectory; files in the root belong to the default tenant.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd, args[0], workers)
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 2, "Number of concurrent ingestion jobs")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, dir string, workers int) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	a.queue.Start(ctx, workers)
	fmt.Fprintf(cmd.OutOrStdout(), "watching %s\n", dir)

	w := watcher.New(dir, a.cfg.Watcher.DebounceWindow, a.queue, a.logger)
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runServe(ctx context.Context, cmd *cobra.Command, workers int) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	a.queue.Start(ctx, workers)

	scheduler := maintenance.NewScheduler(a.logger)
	if a.cache != nil && a.cfg.Maintenance.PageCacheTTL > 0 {
		cleanup := maintenance.NewCacheCleanup(a.cache, a.cfg.Maintenance.PageCacheTTL, a.logger)
		if err := scheduler.AddJob(cleanup, a.cfg.Maintenance.CleanupSchedule); err != nil {
			return err
		}
	}
	if a.cfg.Maintenance.MirrorSchedule != "" {
		blobs, err := blobstore.New(ctx, a.cfg.Blobstore)
		if err != nil {
			return err
		}
		mirror := maintenance.NewSnapshotMirror(filepath.Join(a.cfg.DataDir, "tenants"), blobs, a.logger)
		if err := scheduler.AddJob(mirror, a.cfg.Maintenance.MirrorSchedule); err != nil {
			return err
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	fmt.Fprintf(cmd.OutOrStdout(), "askdoc worker running (%d workers)\n", workers)

	if a.cfg.Watcher.Dir != "" {
		w := watcher.New(a.cfg.Watcher.Dir, a.cfg.Watcher.DebounceWindow, a.queue, a.logger)
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}

	<-ctx.Done()
	return nil
}
