// Package services defines shared utilities consumed by the upload, content,
// and authentication layers.
//
// Key responsibilities:
//   - Context helpers that stamp batch IDs, item positions, stage names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification (auth, slot, upload, transcode, content) uniform so the
//     CLI and the batch journal can report the failing step.
//
// Use these helpers when wiring new remote calls so error handling and
// observability stay consistent across the engine.
package services
