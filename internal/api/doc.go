// Package api defines the wire-format types shared by the daemon's HTTP
// handlers and the CLI client. It converts ledger jobs and orchestrator
// status into transport-friendly DTOs so consumers never depend on internal
// types.
//
// DTOs use camelCase JSON tags. Enums (kind, status, stage, outcome) are
// exposed as lowercase strings and timestamps use RFC3339 with
// milliseconds. Empty collections are encoded as [] or {} rather than null.
package api
