// Package content is the card document service: full-document create or
// update, fetch, list, delete, and restore from a local snapshot. Every
// successful write and the first fetch of a card leave a snapshot in the
// version store; snapshot failures are logged, never returned.
package content
