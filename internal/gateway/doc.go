// Package gateway validates uploads and turns them into pending jobs.
//
// Submit checks kind, size, and content type, derives the requested stages
// from the submission options, stores the payload in the blob store, and
// records the job in the ledger. Nothing is written until validation has
// passed, and an upload that turns out larger than its limit while
// streaming leaves neither a blob nor a job behind.
package gateway
