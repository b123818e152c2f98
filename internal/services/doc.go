// Package services defines shared utilities consumed by the pipeline stages
// and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that let the orchestrator
//     tell transient adapter failures from permanent rejections, and let the
//     HTTP layer map failures onto status codes.
//
// Vendor clients live in subpackages (llm, whisper, tesseract, imaging, pdf)
// and report failures through the same markers.
package services
