// Package journal keeps a local SQLite history of upload batches: one row per
// batch and one per file, updated as the orchestrator reports progress.
//
// Store satisfies batch.Recorder, so wiring it into an orchestrator is enough
// to populate the history shown by `yotoup batches`.
package journal
