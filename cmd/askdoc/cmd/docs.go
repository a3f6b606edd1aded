package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage indexed documents",
	}
	cmd.AddCommand(newDocsListCmd())
	cmd.AddCommand(newDocsDeleteCmd())
	return cmd
}

func newDocsListCmd() *cobra.Command {
	var uid string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a tenant's indexed documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocsList(cmd.Context(), cmd, uid)
		},
	}
	cmd.Flags().StringVar(&uid, "uid", "default", "Tenant identifier")
	return cmd
}

func runDocsList(ctx context.Context, cmd *cobra.Command, uid string) error {
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	tenant, err := a.engine.Tenant(uid)
	if err != nil {
		return err
	}
	docs, err := tenant.ListDocuments(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(docs) == 0 {
		fmt.Fprintf(out, "no documents for tenant %s\n", uid)
		return nil
	}
	for _, doc := range docs {
		fmt.Fprintln(out, doc)
	}
	return nil
}

func newDocsDeleteCmd() *cobra.Command {
	var uid string

	cmd := &cobra.Command{
		Use:   "delete <doc-name>",
		Short: "Remove a document from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocsDelete(cmd.Context(), cmd, uid, args[0])
		},
	}
	cmd.Flags().StringVar(&uid, "uid", "default", "Tenant identifier")
	return cmd
}

func runDocsDelete(ctx context.Context, cmd *cobra.Command, uid, docName string) error {
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	tenant, err := a.engine.Tenant(uid)
	if err != nil {
		return err
	}
	removed, err := tenant.DeleteDocument(ctx, docName)
	if err != nil {
		return err
	}
	if err := a.engine.Refresh(ctx, uid); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "removed %s (%d chunks)\n", docName, removed)
	return nil
}
