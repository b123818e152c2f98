// Package stage defines the uniform adapter contract every pipeline step
// implements, the per-kind stage graph, and the concrete adapters that wrap
// the vendor clients under internal/services.
//
// Adapters are stateless: each Invoke receives its inputs and per-invocation
// options and returns either bytes or text. Failures are classified with
// services.ErrAdapterUnavailable (transient, retried by the orchestrator) or
// services.ErrAdapterRejected (permanent).
package stage
