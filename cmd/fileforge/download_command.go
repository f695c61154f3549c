package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "download <file-id>",
		Short: "Download a file's bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}

			body, name, err := client.download(args[0])
			if err != nil {
				return err
			}
			defer body.Close() //nolint:errcheck

			target := outputPath
			if target == "" {
				target = name
			}
			if target == "" {
				target = args[0]
			}
			if target == "-" {
				_, err := io.Copy(cmd.OutOrStdout(), body)
				return err
			}

			dest, err := os.Create(target)
			if err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			written, err := io.Copy(dest, body)
			if closeErr := dest.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return fmt.Errorf("write %s: %w", target, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", target, formatSize(written))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "O", "", "Destination path (use - for stdout)")
	return cmd
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <file-id>",
		Short: "Delete a file, its pipeline, and its outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.delete("/api/files/" + args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "File %s deleted\n", args[0])
			return nil
		},
	}
}
