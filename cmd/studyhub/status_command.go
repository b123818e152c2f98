package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"studyhub/internal/api"
	"studyhub/internal/apiclient"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [job-id]",
		Short: "Show daemon health, or the details of a single job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd, func(c context.Context, client *apiclient.Client) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				if len(args) == 1 {
					job, err := client.GetJob(c, strings.TrimSpace(args[0]))
					if err != nil {
						return err
					}
					if ctx.jsonOutput() {
						return writeJSON(cmd, job)
					}
					renderJob(out, job, colorize)
					return nil
				}
				health, err := client.Health(c)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, health)
				}
				renderHealth(out, health, colorize)
				return nil
			})
		},
	}
}

func renderJob(out io.Writer, job api.Job, colorize bool) {
	fmt.Fprintf(out, "Job:     %s\n", job.ID)
	fmt.Fprintf(out, "Kind:    %s\n", job.Kind)
	if job.Title != "" {
		fmt.Fprintf(out, "Title:   %s\n", job.Title)
	}
	fmt.Fprintf(out, "Status:  %s\n", colorStatus(job.Status, colorize))
	if job.FinalArtifactRef != "" {
		fmt.Fprintf(out, "Artifact: %s\n", job.FinalArtifactRef)
	}
	if len(job.MissingSections) > 0 {
		fmt.Fprintf(out, "Missing: %s\n", strings.Join(job.MissingSections, ", "))
	}
	if job.LastError != "" {
		fmt.Fprintf(out, "Error:   %s\n", job.LastError)
	}

	rows := make([][]string, 0, len(job.RequestedStages))
	for _, name := range job.RequestedStages {
		result, ok := job.StageResults[name]
		if !ok {
			rows = append(rows, []string{name, "pending", "0", ""})
			continue
		}
		detail := result.Error
		if result.ErrorKind != "" {
			detail = result.ErrorKind + ": " + detail
		}
		rows = append(rows, []string{name, result.Outcome, strconv.Itoa(result.Attempts), detail})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable([]string{"Stage", "Outcome", "Attempts", "Detail"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
	}
}

func renderHealth(out io.Writer, health api.Health, colorize bool) {
	state := "stopped"
	if health.Workflow.Running {
		state = "running"
	}
	fmt.Fprintf(out, "Daemon:    %s (pid %d)\n", health.Status, health.PID)
	fmt.Fprintf(out, "Workflow:  %s, %d/%d jobs in flight\n", state, health.Workflow.InFlight, health.Workflow.MaxConcurrentJobs)
	fmt.Fprintf(out, "Ledger:    %s\n", health.LedgerPath)
	if health.Workflow.LastError != "" {
		fmt.Fprintf(out, "Last error: %s\n", health.Workflow.LastError)
	}

	if len(health.Workflow.JobCounts) > 0 {
		statuses := make([]string, 0, len(health.Workflow.JobCounts))
		for status := range health.Workflow.JobCounts {
			statuses = append(statuses, status)
		}
		sort.Strings(statuses)
		rows := make([][]string, 0, len(statuses))
		for _, status := range statuses {
			rows = append(rows, []string{colorStatus(status, colorize), strconv.Itoa(health.Workflow.JobCounts[status])})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable([]string{"Status", "Jobs"}, rows, []columnAlignment{alignLeft, alignRight}))
	}

	if len(health.Stages) > 0 {
		rows := make([][]string, 0, len(health.Stages))
		for _, st := range health.Stages {
			ready := "yes"
			if !st.Ready {
				ready = "no"
			}
			rows = append(rows, []string{st.Stage, ready, st.Detail})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable([]string{"Stage", "Ready", "Detail"}, rows, nil))
	}

	if len(health.Dependencies) > 0 {
		rows := make([][]string, 0, len(health.Dependencies))
		for _, dep := range health.Dependencies {
			state := "available"
			switch {
			case dep.Available:
			case dep.Optional:
				state = "missing (optional)"
			default:
				state = "missing"
			}
			rows = append(rows, []string{dep.Name, dep.Command, state, dep.Detail})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable([]string{"Dependency", "Command", "State", "Detail"}, rows, nil))
	}
}
