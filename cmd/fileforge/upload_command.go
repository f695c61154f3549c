package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fileforge/internal/api"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var actions []string

	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a local file to the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			uploaded, err := client.upload(args[0], owner)
			if err != nil {
				return err
			}

			var pipeline *api.Pipeline
			if len(actions) > 0 {
				steps, err := parseActionArgs(actions)
				if err != nil {
					return err
				}
				var accepted api.PipelineResponse
				path := "/api/files/" + uploaded.File.ID + "/pipeline"
				if err := client.postJSON(path, api.PipelineRequest{Actions: steps}, &accepted); err != nil {
					return fmt.Errorf("uploaded %s but pipeline was rejected: %w", uploaded.File.ID, err)
				}
				pipeline = &accepted.Pipeline
			}

			if ctx.jsonOutput() {
				payload := map[string]any{"file": uploaded.File}
				if pipeline != nil {
					payload["pipeline"] = pipeline
				}
				return writeJSON(cmd, payload)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Uploaded %s as %s (%s, %s)\n",
				uploaded.File.Name, uploaded.File.ID,
				formatSize(uploaded.File.SizeBytes), displayLabel(uploaded.File.Status))
			if pipeline != nil {
				fmt.Fprintf(out, "Pipeline %s accepted with %d job(s)\n", pipeline.ID, len(pipeline.Jobs))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Owner identifier for the upload")
	_ = cmd.MarkFlagRequired("owner")
	cmd.Flags().StringArrayVarP(&actions, "action", "a", nil,
		"Processing action to queue after the upload (kind[:key=value,...]); repeatable")
	return cmd
}
