package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fileforge/internal/api"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <file-id> <action>...",
		Short: "Start a processing pipeline for an uploaded file",
		Long: "Start a processing pipeline. Each action is a kind with optional\n" +
			"parameters, e.g. thumbnail:width=320,height=240 or virus_scan.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			actions, err := parseActionArgs(args[1:])
			if err != nil {
				return err
			}

			var accepted api.PipelineResponse
			path := "/api/files/" + args[0] + "/pipeline"
			if err := client.postJSON(path, api.PipelineRequest{Actions: actions}, &accepted); err != nil {
				return err
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, accepted)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Pipeline %s accepted with %d job(s)\n",
				accepted.Pipeline.ID, len(accepted.Pipeline.Jobs))
			for _, job := range accepted.Pipeline.Jobs {
				fmt.Fprintf(out, "  %d. %s -> %s queue\n", job.Position+1, displayLabel(job.Kind), job.Queue)
			}
			return nil
		},
	}
}

// parseActionArgs turns CLI action arguments into pipeline steps. Each
// argument is kind[:key=value[,key=value...]].
func parseActionArgs(args []string) ([]api.ActionRequest, error) {
	actions := make([]api.ActionRequest, 0, len(args))
	for _, arg := range args {
		action, err := parseActionArg(arg)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, nil
}

func parseActionArg(arg string) (api.ActionRequest, error) {
	kind, rawParams, _ := strings.Cut(strings.TrimSpace(arg), ":")
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return api.ActionRequest{}, fmt.Errorf("invalid action %q: missing kind", arg)
	}

	action := api.ActionRequest{Kind: kind}
	if rawParams == "" {
		return action, nil
	}

	action.Params = make(map[string]string)
	for _, pair := range strings.Split(rawParams, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return api.ActionRequest{}, fmt.Errorf("invalid action parameter %q in %q (want key=value)", pair, arg)
		}
		action.Params[key] = strings.TrimSpace(value)
	}
	return action, nil
}
