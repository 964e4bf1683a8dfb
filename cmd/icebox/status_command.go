package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"icebox/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and library status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				colorize := stdoutIsTerminal()
				for _, line := range buildStatusLines(status, colorize) {
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
}

func buildStatusLines(status *ipc.StatusResponse, colorize bool) []string {
	lines := []string{renderSectionHeader("Daemon", colorize)}

	daemonKind := statusWarn
	daemonMsg := "workers stopped"
	if status.Running {
		daemonKind = statusOK
		daemonMsg = fmt.Sprintf("pid %d", status.PID)
	}
	lines = append(lines, renderStatusLine("Workers", daemonKind, daemonMsg, colorize))
	if status.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, status.LastError, colorize))
	}

	lines = append(lines, "", renderSectionHeader("Library", colorize))
	lines = append(lines,
		renderStatusLine("Name", statusInfo, fmt.Sprintf("%s (id %d)", status.LibraryName, status.LibraryID), colorize),
		renderStatusLine("Storage mode", statusInfo, formatStatusLabel(status.StorageMode), colorize),
		renderStatusLine("Assets", statusInfo, fmt.Sprintf("%d total, %d local, %d cloud-only", status.AssetCount, status.LocalCount, status.CloudOnlyCount), colorize),
	)

	usageKind := statusOK
	usage := formatBytes(status.LocalBytes)
	if status.CacheBudgetBytes > 0 {
		usage = fmt.Sprintf("%s of %s budget", usage, formatBytes(status.CacheBudgetBytes))
		if status.LocalBytes > status.CacheBudgetBytes {
			usageKind = statusWarn
		}
	}
	lines = append(lines, renderStatusLine("Local usage", usageKind, usage, colorize))
	if status.ApplyingPolicy {
		lines = append(lines, renderStatusLine("Policy", statusInfo, "apply in progress", colorize))
	}
	if len(status.Downloading) > 0 {
		ids := make([]string, 0, len(status.Downloading))
		for _, id := range status.Downloading {
			ids = append(ids, fmt.Sprintf("%d", id))
		}
		lines = append(lines, renderStatusLine("Hydrating", statusInfo, strings.Join(ids, ", "), colorize))
	}

	if len(status.Dependencies) > 0 {
		lines = append(lines, "", renderSectionHeader("Tools", colorize))
		for _, dep := range status.Dependencies {
			kind := statusOK
			msg := dep.Command
			if !dep.Available {
				kind = statusError
				if dep.Optional {
					kind = statusWarn
				}
				msg = dep.Detail
			}
			lines = append(lines, renderStatusLine(formatStatusLabel(dep.Name), kind, msg, colorize))
		}
	}

	lines = append(lines, "", renderSectionHeader("Queue", colorize))
	queueKind := statusInfo
	if status.Queue.Failed > 0 {
		queueKind = statusWarn
	}
	lines = append(lines, renderStatusLine("Tasks", queueKind,
		fmt.Sprintf("%d queued, %d running, %d succeeded, %d failed",
			status.Queue.Queued, status.Queue.Running, status.Queue.Succeeded, status.Queue.Failed), colorize))

	kinds := make([]string, 0, len(status.QueueStats))
	for kind := range status.QueueStats {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		counts := status.QueueStats[kind]
		statuses := make([]string, 0, len(counts))
		for st := range counts {
			statuses = append(statuses, st)
		}
		sort.Strings(statuses)
		parts := make([]string, 0, len(statuses))
		for _, st := range statuses {
			parts = append(parts, fmt.Sprintf("%d %s", counts[st], st))
		}
		lines = append(lines, renderStatusLine(formatStatusLabel(kind), statusInfo, strings.Join(parts, ", "), colorize))
	}

	return lines
}
