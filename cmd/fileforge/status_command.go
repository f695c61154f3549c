package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fileforge/internal/api"
	"fileforge/internal/catalog"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon job counts and queue depths",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			var status api.StatusResponse
			if err := client.getJSON("/api/status", &status); err != nil {
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			fmt.Fprintln(out, renderSectionHeader("Jobs", colorize))
			for _, line := range jobStatusLines(status.JobCounts, colorize) {
				fmt.Fprintln(out, line)
			}

			fmt.Fprintln(out, renderSectionHeader("Queues", colorize))
			if len(status.QueueDepths) == 0 {
				fmt.Fprintln(out, renderStatusLine("queues", statusInfo, "no queues reported", colorize))
				return nil
			}
			for _, family := range catalog.AllFamilies() {
				depth, ok := status.QueueDepths[family.QueueName()]
				if !ok {
					continue
				}
				kind := statusOK
				message := "empty"
				if depth > 0 {
					kind = statusInfo
					message = fmt.Sprintf("%d waiting", depth)
				}
				fmt.Fprintln(out, renderStatusLine(string(family), kind, message, colorize))
			}
			return nil
		},
	}
}

func jobStatusLines(counts map[string]int, colorize bool) []string {
	lines := make([]string, 0, 5)
	for _, entry := range []struct {
		label string
		kind  statusKind
	}{
		{"pending", statusInfo},
		{"queued", statusInfo},
		{"running", statusInfo},
		{"succeeded", statusOK},
		{"failed", statusError},
	} {
		count := counts[entry.label]
		kind := entry.kind
		if count == 0 {
			kind = statusInfo
		}
		lines = append(lines, renderStatusLine(entry.label, kind, fmt.Sprintf("%d", count), colorize))
	}
	return lines
}
