// Package versions keeps local, immutable JSON snapshots of card documents.
//
// Each card gets a directory named after its cardId (or a slug of its title
// when it has no id yet). Snapshot files are named by UTC second,
// 20060102T150405Z.json, with -1, -2, ... appended when several land in the
// same second. Snapshots are never rewritten; restoring one replays it
// through the content service.
package versions
