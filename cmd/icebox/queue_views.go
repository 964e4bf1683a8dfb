package main

import (
	"fmt"
	"sort"
	"strings"

	"icebox/internal/ipc"
)

const maxErrorColumnWidth = 48

func buildQueueListRows(items []ipc.Task) [][]string {
	if len(items) == 0 {
		return nil
	}
	sorted := make([]ipc.Task, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].UpdatedAt.Equal(sorted[j].UpdatedAt) {
			return sorted[i].ID > sorted[j].ID
		}
		return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
	})

	rows := make([][]string, 0, len(sorted))
	for _, item := range sorted {
		rows = append(rows, []string{
			fmt.Sprintf("%d", item.ID),
			fmt.Sprintf("%d", item.AssetID),
			formatStatusLabel(item.Kind),
			formatStatusLabel(item.Status),
			fmt.Sprintf("%d", item.Attempts),
			formatDisplayTime(item.UpdatedAt),
			truncateError(item.LastError),
		})
	}
	return rows
}

func truncateError(message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return "-"
	}
	if len(message) > maxErrorColumnWidth {
		return message[:maxErrorColumnWidth-3] + "..."
	}
	return message
}
