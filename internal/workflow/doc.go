// Package workflow drives studyhub jobs through their stage graphs.
//
// The Orchestrator polls the ledger for pending jobs (and wakes early when
// the gateway enqueues one), runs up to workflow.max_concurrent_jobs jobs at
// once, and executes each job's stages in dependency order: the blocking
// prerequisite first, optional sections concurrently, then the final render.
// Transient adapter failures are retried with exponential backoff, permanent
// ones are recorded immediately, and cancellation requests are honored
// between stages. Processing is idempotent: terminal jobs are left untouched
// and stages that already have a recorded result are never re-invoked, so a
// daemon restart simply resumes whatever was in flight.
package workflow
