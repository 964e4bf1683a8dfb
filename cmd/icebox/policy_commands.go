package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"icebox/internal/ipc"
	"icebox/internal/library"
)

func newPolicyCommand(ctx *commandContext) *cobra.Command {
	policyCmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and change the storage policy",
	}

	policyCmd.AddCommand(newPolicyShowCommand(ctx))
	policyCmd.AddCommand(newPolicyApplyCommand(ctx))
	policyCmd.AddCommand(newPolicySetCommand(ctx))

	return policyCmd
}

func newPolicyShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active storage policy and usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Mode:        %s\n", formatStatusLabel(status.StorageMode))
				if status.CacheBudgetBytes > 0 {
					fmt.Fprintf(out, "Budget:      %s\n", formatBytes(status.CacheBudgetBytes))
				} else {
					fmt.Fprintln(out, "Budget:      unlimited")
				}
				fmt.Fprintf(out, "Local usage: %s across %d asset(s)\n", formatBytes(status.LocalBytes), status.LocalCount)
				fmt.Fprintf(out, "Cloud-only:  %d asset(s)\n", status.CloudOnlyCount)
				return nil
			})
		},
	}
}

func newPolicyApplyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Run one storage-policy pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.PolicyApply()
				if err != nil {
					return err
				}
				printPolicyReport(cmd, resp)
				return nil
			})
		},
	}
}

func newPolicySetCommand(ctx *commandContext) *cobra.Command {
	var budget string

	cmd := &cobra.Command{
		Use:   "set MODE",
		Short: "Change the storage mode (keep_all_local or optimize_storage)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := args[0]
			if mode != string(library.ModeKeepAllLocal) && mode != string(library.ModeOptimizeStorage) {
				return fmt.Errorf("unknown storage mode %q (want %s or %s)",
					mode, library.ModeKeepAllLocal, library.ModeOptimizeStorage)
			}

			var budgetBytes int64
			if budget != "" {
				parsed, err := humanize.ParseBytes(budget)
				if err != nil {
					return fmt.Errorf("parse budget %q: %w", budget, err)
				}
				budgetBytes = int64(parsed)
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.PolicySet(mode, budgetBytes)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Storage mode set to %s\n", formatStatusLabel(resp.Mode))
				printPolicyReport(cmd, resp)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&budget, "budget", "", "Cache budget, e.g. 50GiB (0 keeps the current budget)")
	return cmd
}

func printPolicyReport(cmd *cobra.Command, resp *ipc.PolicyResponse) {
	out := cmd.OutOrStdout()
	if resp.Coalesced {
		fmt.Fprintln(out, "Policy pass already in progress; reusing its result")
		return
	}
	fmt.Fprintf(out, "Examined %d asset(s)\n", resp.Examined)
	if resp.Hydrated > 0 {
		fmt.Fprintf(out, "Requested hydration for %d asset(s)\n", resp.Hydrated)
	}
	if resp.Evicted > 0 {
		fmt.Fprintf(out, "Evicted %d asset(s), reclaimed %s\n", resp.Evicted, formatBytes(resp.EvictedBytes))
	}
	if resp.Skipped > 0 {
		fmt.Fprintf(out, "Skipped %d asset(s) (pinned, in use, or not yet durable)\n", resp.Skipped)
	}
	fmt.Fprintf(out, "Local usage now %s\n", formatBytes(resp.FinalLocalBytes))
}
