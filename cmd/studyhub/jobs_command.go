package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"studyhub/internal/apiclient"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var statuses []string
	var search string
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs in the Study Hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := apiclient.ListQuery{
				Kind:     strings.TrimSpace(kind),
				Statuses: statuses,
				Search:   strings.TrimSpace(search),
				Limit:    limit,
			}
			return ctx.withClient(cmd, func(c context.Context, client *apiclient.Client) error {
				jobs, err := client.ListJobs(c, query)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, jobs)
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No jobs found")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						job.ID,
						job.Kind,
						job.Title,
						colorStatus(job.Status, colorize),
						job.UpdatedAt,
					})
				}
				fmt.Fprintln(out, renderTable([]string{"ID", "Kind", "Title", "Status", "Updated"}, rows, nil))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Filter by job kind")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVarP(&search, "search", "q", "", "Filter by title or filename")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of jobs to list")
	return cmd
}
