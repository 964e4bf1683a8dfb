package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"icebox/internal/ipc"
)

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Scan the cloud tree and restore missing library records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Reconcile()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Scanned %d file(s): %d known, %d imported, %d failed\n",
					resp.Scanned, resp.Existing, resp.Imported, resp.Failed)
				if resp.Failed > 0 {
					return fmt.Errorf("%d file(s) could not be reconciled", resp.Failed)
				}
				return nil
			})
		},
	}
}
