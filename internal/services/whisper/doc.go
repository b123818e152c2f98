// Package whisper uploads lecture recordings to an OpenAI-compatible
// /audio/transcriptions endpoint and returns the transcript text.
//
// Timeouts, 408, 429, and 5xx responses are reported as
// services.ErrAdapterUnavailable so the orchestrator can retry them; other
// 4xx responses (unsupported media, oversized upload) are
// services.ErrAdapterRejected.
package whisper
