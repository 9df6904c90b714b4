// Package card models the playable card document and the pure transforms
// applied to it.
//
// Assemble turns ordered transcode results into chapters under one of two
// layouts: one chapter per file, or a single chapter holding every file as a
// track. The structural edits (merge, split, expand, relabel) rewrite chapter
// and track keys so they always read 01, 02, ... with overlay labels 1, 2, ...
// None of these functions touch the network.
package card
