// Package ledger persists studyhub jobs and their per-stage results in SQLite.
//
// The ledger is the single source of truth for job progress. It owns the job
// state machine (pending → running → completed/failed/partially_failed, with
// the cancellation branch), rejects stage results for stages a job never
// requested, and refuses to mutate jobs that already reached a terminal
// status. Every mutation bumps the job's updated_at strictly monotonically.
//
// Writes for the same job are serialized inside the store in addition to the
// SQLite write lock, so concurrent optional stages can record their results
// without clobbering each other.
package ledger
