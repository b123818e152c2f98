package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"studyhub/internal/api"
	"studyhub/internal/apiclient"
	"studyhub/internal/textutil"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	var saveDir string

	cmd := &cobra.Command{
		Use:   "fetch <job-id|blob-ref>",
		Short: "Download a job's final artifact or any stored blob",
		Long: `Fetch downloads a blob from the daemon. When given a job ID it downloads
that job's final artifact; anything else is treated as a blob reference.
Without --output or --save-dir the content is written to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(args[0])
			return ctx.withClient(cmd, func(c context.Context, client *apiclient.Client) error {
				ref, job, err := resolveBlobRef(c, client, target)
				if err != nil {
					return err
				}

				path := strings.TrimSpace(outputPath)
				if path == "" && strings.TrimSpace(saveDir) != "" {
					path = filepath.Join(strings.TrimSpace(saveDir), artifactFileName(ref, job))
				}

				var w io.Writer = cmd.OutOrStdout()
				var file *os.File
				if path != "" && path != "-" {
					if dir := filepath.Dir(path); dir != "" {
						if err := os.MkdirAll(dir, 0o755); err != nil {
							return fmt.Errorf("create output directory: %w", err)
						}
					}
					file, err = os.Create(path)
					if err != nil {
						return fmt.Errorf("create output file: %w", err)
					}
					w = file
				}

				contentType, n, err := client.FetchBlob(c, ref, w)
				if file != nil {
					if closeErr := file.Close(); err == nil {
						err = closeErr
					}
					if err != nil {
						_ = os.Remove(file.Name())
					}
				}
				if err != nil {
					return err
				}
				if file != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d bytes (%s) to %s\n", n, contentType, file.Name())
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write to this file instead of stdout")
	cmd.Flags().StringVar(&saveDir, "save-dir", "", "Write into this directory using a name derived from the job title")
	return cmd
}

// resolveBlobRef maps a job ID to its final artifact. Values that are not
// job IDs are returned unchanged with a nil job.
func resolveBlobRef(ctx context.Context, client *apiclient.Client, target string) (string, *api.Job, error) {
	job, err := client.GetJob(ctx, target)
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusNotFound || apiErr.Status == http.StatusBadRequest) {
			return target, nil, nil
		}
		return "", nil, err
	}
	if job.FinalArtifactRef == "" {
		return "", nil, fmt.Errorf("job %s has no artifact yet (status %s)", job.ID, job.Status)
	}
	return job.FinalArtifactRef, &job, nil
}

func artifactFileName(ref string, job *api.Job) string {
	if job == nil {
		return textutil.SanitizeToken(ref)
	}
	name := textutil.SanitizeFileName(job.Title)
	if name == "" {
		name = textutil.SanitizeToken(job.ID)
	}
	return name + ".pdf"
}
