package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fileforge/internal/api"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "job <job-id>",
		Short: "Show a single pipeline job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			var detail api.JobResponse
			if err := client.getJSON("/api/jobs/"+args[0], &detail); err != nil {
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, detail)
			}

			job := detail.Job
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %s\n", "Job:", job.ID)
			fmt.Fprintf(out, "%-10s %s\n", "Pipeline:", job.PipelineID)
			fmt.Fprintf(out, "%-10s %s (step %d)\n", "Action:", displayLabel(job.Kind), job.Position+1)
			fmt.Fprintf(out, "%-10s %s\n", "Queue:", job.Queue)
			fmt.Fprintf(out, "%-10s %s\n", "Status:", displayLabel(job.Status))
			fmt.Fprintf(out, "%-10s %d\n", "Attempts:", job.Attempts)
			if job.OutputFileID != "" {
				fmt.Fprintf(out, "%-10s %s\n", "Output:", job.OutputFileID)
			}
			if job.ErrorMessage != "" {
				fmt.Fprintf(out, "%-10s %s\n", "Error:", job.ErrorMessage)
			}
			fmt.Fprintf(out, "%-10s %s\n", "Updated:", orDash(job.UpdatedAt))
			return nil
		},
	}
}
