package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"icebox/internal/ipc"
	"icebox/internal/presence"
)

func newAssetsCommand(ctx *commandContext) *cobra.Command {
	var withPresence bool

	cmd := &cobra.Command{
		Use:   "assets",
		Short: "List library assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Assets(withPresence)
				if err != nil {
					return err
				}
				if len(resp.Assets) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Library is empty")
					return nil
				}
				headers := []string{"ID", "Title", "Size", "Pinned", "Import", "Transcript"}
				aligns := []columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignLeft}
				if withPresence {
					headers = append(headers, "Presence")
					aligns = append(aligns, alignLeft)
				}
				table := renderTable(headers, buildAssetRows(resp.Assets, withPresence), aligns)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&withPresence, "presence", false, "Probe each asset's local/cloud presence")
	return cmd
}

func buildAssetRows(assets []ipc.Asset, withPresence bool) [][]string {
	sorted := make([]ipc.Asset, len(assets))
	copy(sorted, assets)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	rows := make([][]string, 0, len(sorted))
	for _, asset := range sorted {
		transcript := "-"
		if asset.TranscriptPath != "" {
			transcript = "ready"
		} else if asset.TranscribeStatus != "" && asset.TranscribeStatus != "none" {
			transcript = asset.TranscribeStatus
		}
		row := []string{
			fmt.Sprintf("%d", asset.ID),
			asset.Title,
			formatBytes(asset.SizeBytes),
			yesNo(asset.Pinned),
			formatStatusLabel(asset.ImportStatus),
			formatStatusLabel(transcript),
		}
		if withPresence {
			row = append(row, formatStatusLabel(asset.Presence))
		}
		rows = append(rows, row)
	}
	return rows
}

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var wait bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "fetch ID",
		Short: "Bring an asset's bytes back to local disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			assetID := ids[0]

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Fetch(assetID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Asset %d: %s\n", assetID, formatStatusLabel(resp.State))
				if !wait || resp.State == string(presence.StateLocal) {
					return nil
				}

				deadline := time.Now().Add(timeout)
				ticker := time.NewTicker(500 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-cmd.Context().Done():
						return cmd.Context().Err()
					case <-ticker.C:
					}
					state, err := client.AssetState(assetID)
					if err != nil {
						return err
					}
					switch state.State {
					case string(presence.StateLocal):
						fmt.Fprintf(out, "Asset %d: %s\n", assetID, formatStatusLabel(state.State))
						return nil
					case string(presence.StateMissing), string(presence.StateError):
						return fmt.Errorf("asset %d entered state %s", assetID, state.State)
					}
					if time.Now().After(deadline) {
						return fmt.Errorf("asset %d still %s after %s", assetID, state.State, timeout)
					}
				}
			})
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Block until the asset is local")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Give up waiting after this long")
	return cmd
}

func newPinCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pin ID...",
		Short: "Exempt assets from eviction",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPinChange(ctx, true),
	}
}

func newUnpinCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unpin ID...",
		Short: "Allow assets to be evicted again",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPinChange(ctx, false),
	}
}

func runPinChange(ctx *commandContext, pinned bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return ctx.withClient(func(client *ipc.Client) error {
			for _, id := range ids {
				if _, err := client.Pin(id, pinned); err != nil {
					return fmt.Errorf("pin asset %d: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Asset %d: pinned=%s\n", id, yesNo(pinned))
			}
			return nil
		})
	}
}
