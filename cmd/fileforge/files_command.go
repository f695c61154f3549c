package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"fileforge/internal/api"
)

func newFilesCommand(ctx *commandContext) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "files",
		Short: "List an owner's files",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			var list api.FileListResponse
			if err := client.getJSON("/api/files?owner="+url.QueryEscape(owner), &list); err != nil {
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, list)
			}

			out := cmd.OutOrStdout()
			if len(list.Files) == 0 {
				fmt.Fprintf(out, "No files for owner %s\n", owner)
				return nil
			}

			columns := []column{
				{"ID", alignLeft},
				{"NAME", alignLeft},
				{"SIZE", alignRight},
				{"STATUS", alignLeft},
				{"JOBS", alignRight},
				{"UPDATED", alignLeft},
			}
			rows := make([][]string, 0, len(list.Files))
			for _, file := range list.Files {
				rows = append(rows, []string{
					shortID(file.ID),
					file.Name,
					formatSize(file.SizeBytes),
					displayLabel(file.Status),
					progressCell(file.Progress),
					orDash(file.UpdatedAt),
				})
			}
			fmt.Fprintln(out, renderTable(columns, rows))
			return nil
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Owner identifier to list files for")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func progressCell(progress *api.Progress) string {
	if progress == nil || progress.Total == 0 {
		return "-"
	}
	done := progress.Succeeded + progress.Failed
	return fmt.Sprintf("%d/%d", done, progress.Total)
}
