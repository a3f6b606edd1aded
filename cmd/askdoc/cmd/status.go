package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/askdoc/askdoc/internal/store"
)

func newStatusCmd() *cobra.Command {
	var uid string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show ingestion job status",
		Long: `Show the status of one ingestion job, or list a tenant's recent
jobs when no job ID is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := ""
			if len(args) == 1 {
				jobID = args[0]
			}
			return runStatus(cmd.Context(), cmd, uid, jobID, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&uid, "uid", "default", "Tenant identifier")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, uid, jobID string, jsonOutput bool) error {
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	jobs, err := a.jobStore()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jobID != "" {
		job, err := jobs.Get(ctx, jobID)
		if err != nil {
			return err
		}
		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(job)
		}
		printJob(cmd, job)
		return nil
	}

	list, err := jobs.List(ctx, uid)
	if err != nil {
		return err
	}
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}
	if len(list) == 0 {
		fmt.Fprintf(out, "no jobs for tenant %s\n", uid)
		return nil
	}
	for _, job := range list {
		printJob(cmd, job)
	}
	return nil
}

func printJob(cmd *cobra.Command, job *store.IngestionJob) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %-10s %3d%%  %s", job.JobID, job.Status, job.Progress, job.DocName)
	if job.Message != "" {
		fmt.Fprintf(out, "  (%s)", job.Message)
	}
	fmt.Fprintln(out)
}
