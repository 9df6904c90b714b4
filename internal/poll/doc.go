// Package poll provides the poll-until loop shared by device login and
// transcode status checks.
//
// A Policy bounds the loop by attempt count, wall-clock deadline, or both.
// Sleeping goes through an injectable Sleeper so tests can script timing
// without waiting.
package poll
