package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"studyhub/internal/apiclient"
)

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Remove a finished job from the history",
		Long:  "Remove a completed, partially failed, failed, or cancelled job. Uploaded media and rendered PDFs stay in the blob store.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(cmd, func(c context.Context, client *apiclient.Client) error {
				if err := client.Delete(c, id); err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]string{"id": id, "status": "deleted"})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s deleted\n", id)
				return nil
			})
		},
	}
}
