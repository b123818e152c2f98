// Package llm provides an OpenAI-compatible chat client used by the
// summarize, concepts, and quiz stages.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Complete: send system/user prompts, receive free text.
// Client.CompleteJSON: same, but request a JSON object response.
// Client.Configured: report whether an API key is set.
//
// # Errors
//
// Failures come back tagged with services markers. 408/429/5xx, network
// timeouts and a missing API key are ErrAdapterUnavailable. Other 4xx,
// including a refused key (401/403), and empty or refused completions are
// ErrAdapterRejected.
//
// Each call is one HTTP request. Stage retries belong to the workflow
// orchestrator, which reads the markers above.
//
// DecodeLLMJSON and SanitizeJSON tolerate code fences and chatty prose
// around the JSON body.
package llm
