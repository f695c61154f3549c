package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"fileforge/internal/api"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <file-id>",
		Short: "Show a file's pipeline and outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			var detail api.FileResponse
			if err := client.getJSON("/api/files/"+args[0], &detail); err != nil {
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, detail)
			}
			printFileDetail(cmd.OutOrStdout(), detail.File)
			return nil
		},
	}
}

func printFileDetail(out io.Writer, file api.FileItem) {
	fmt.Fprintf(out, "%-10s %s\n", "File:", file.Name)
	fmt.Fprintf(out, "%-10s %s\n", "ID:", file.ID)
	fmt.Fprintf(out, "%-10s %s\n", "Owner:", orDash(file.OwnerID))
	fmt.Fprintf(out, "%-10s %s\n", "Size:", formatSize(file.SizeBytes))
	fmt.Fprintf(out, "%-10s %s\n", "Type:", orDash(file.ContentType))
	fmt.Fprintf(out, "%-10s %s\n", "Status:", displayLabel(file.Status))
	fmt.Fprintf(out, "%-10s %s\n", "Updated:", orDash(file.UpdatedAt))

	if file.Pipeline != nil {
		fmt.Fprintf(out, "\nPipeline %s", file.Pipeline.ID)
		if file.Progress != nil {
			fmt.Fprintf(out, " (%s done)", progressCell(file.Progress))
		}
		fmt.Fprintln(out)

		columns := []column{
			{"#", alignRight},
			{"ACTION", alignLeft},
			{"QUEUE", alignLeft},
			{"STATUS", alignLeft},
			{"ATTEMPTS", alignRight},
			{"ERROR", alignLeft},
		}
		rows := make([][]string, 0, len(file.Pipeline.Jobs))
		for _, job := range file.Pipeline.Jobs {
			rows = append(rows, []string{
				fmt.Sprintf("%d", job.Position+1),
				displayLabel(job.Kind),
				job.Queue,
				displayLabel(job.Status),
				fmt.Sprintf("%d", job.Attempts),
				orDash(job.ErrorMessage),
			})
		}
		fmt.Fprintln(out, renderTable(columns, rows))
	}

	if len(file.Outputs) > 0 {
		fmt.Fprintln(out, "\nOutputs")
		columns := []column{
			{"ID", alignLeft},
			{"NAME", alignLeft},
			{"SIZE", alignRight},
			{"TYPE", alignLeft},
		}
		rows := make([][]string, 0, len(file.Outputs))
		for _, output := range file.Outputs {
			rows = append(rows, []string{
				shortID(output.ID),
				output.Name,
				formatSize(output.SizeBytes),
				orDash(output.ContentType),
			})
		}
		fmt.Fprintln(out, renderTable(columns, rows))
	}
}
