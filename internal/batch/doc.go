// Package batch runs many upload pipelines at once under a simultaneity
// limit. Results stay index-addressed so the report lines up with the input
// regardless of completion order, and a failed file never cancels its
// siblings. Callers that need every file (creating a new card) check
// Report.Err before assembling anything.
package batch
