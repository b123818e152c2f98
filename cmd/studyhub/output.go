package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var statusColors = map[string]text.Colors{
	"completed":              {text.FgGreen},
	"running":                {text.FgBlue},
	"partially_failed":       {text.FgYellow},
	"cancellation_requested": {text.FgYellow},
	"failed":                 {text.FgRed},
	"cancelled":              {text.FgRed},
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// shouldColorize reports whether w is an interactive terminal.
func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func colorStatus(status string, colorize bool) string {
	colors, ok := statusColors[status]
	if !colorize || !ok {
		return status
	}
	return colors.Sprint(status)
}
