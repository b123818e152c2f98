package main

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"studyhub/internal/apiclient"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var title string
	var contentType string
	var summary bool
	var concepts bool
	var quiz bool
	var noOCR bool

	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Submit a lecture recording or whiteboard photo for processing",
		Long: `Submit uploads a file to the daemon and prints the new job ID.

Lectures need at least one of --summary, --concepts, or --quiz. When none is
given, all three are requested. Whiteboard photos always run enhancement; OCR
runs unless --no-ocr is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			resolvedKind := strings.ToLower(strings.TrimSpace(kind))
			if resolvedKind == "" {
				resolvedKind = guessKind(path)
			}
			up := apiclient.Upload{
				Kind:        resolvedKind,
				Path:        path,
				ContentType: strings.TrimSpace(contentType),
				Title:       title,
			}
			if up.ContentType == "" {
				up.ContentType = guessContentType(path)
			}
			switch resolvedKind {
			case "lecture":
				up.Summary, up.Concepts, up.Quiz = summary, concepts, quiz
				if !summary && !concepts && !quiz {
					up.Summary, up.Concepts, up.Quiz = true, true, true
				}
			case "whiteboard":
				ocr := !noOCR
				up.OCR = &ocr
			}

			return ctx.withClient(cmd, func(c context.Context, client *apiclient.Client) error {
				id, err := client.Submit(c, up)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]string{"jobId": id})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s job %s\n", resolvedKind, id)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Job kind: lecture or whiteboard (guessed from the file extension when empty)")
	cmd.Flags().StringVarP(&title, "title", "t", "", "Title for the study material")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Override the detected content type")
	cmd.Flags().BoolVar(&summary, "summary", false, "Generate a summary")
	cmd.Flags().BoolVar(&concepts, "concepts", false, "Extract key concepts")
	cmd.Flags().BoolVar(&quiz, "quiz", false, "Generate a quiz")
	cmd.Flags().BoolVar(&noOCR, "no-ocr", false, "Skip text extraction for whiteboard photos")
	return cmd
}

func guessContentType(path string) string {
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if ct == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(ct); err == nil {
		return parsed
	}
	return ct
}

func guessKind(path string) string {
	ct := guessContentType(path)
	if strings.HasPrefix(ct, "image/") {
		return "whiteboard"
	}
	return "lecture"
}
