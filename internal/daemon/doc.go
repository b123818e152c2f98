// Package daemon coordinates the long-running studyhub process.
//
// It wires configuration, the job ledger, the blob store, the submission
// gateway, and the pipeline orchestrator into a single lifecycle with
// flock-based locking to prevent multiple instances, and serves the HTTP API
// (gin) used by the CLI and by browsers.
//
// Keep orchestration logic here: job processing lives in the workflow
// package while the daemon focuses on startup, shutdown, and the HTTP
// surface.
package daemon
