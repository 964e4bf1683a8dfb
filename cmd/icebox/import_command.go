package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"icebox/internal/config"
	"icebox/internal/ipc"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Copy media files into the library",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources := make([]string, 0, len(args))
			for _, arg := range args {
				expanded, err := config.ExpandPath(arg)
				if err != nil {
					return fmt.Errorf("resolve path %q: %w", arg, err)
				}
				absolute, err := filepath.Abs(expanded)
				if err != nil {
					return fmt.Errorf("resolve path %q: %w", arg, err)
				}
				sources = append(sources, absolute)
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Import(sources)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				imported, failed := 0, 0
				for _, result := range resp.Results {
					if result.Error != "" {
						failed++
						fmt.Fprintf(out, "failed  %s: %s\n", result.Source, result.Error)
						continue
					}
					imported++
					fmt.Fprintf(out, "queued  %s (asset %d, task %d)\n", result.Source, result.AssetID, result.TaskID)
				}
				fmt.Fprintf(out, "%d queued, %d failed\n", imported, failed)
				if failed > 0 {
					return fmt.Errorf("%d of %d sources failed", failed, len(resp.Results))
				}
				return nil
			})
		},
	}
}
