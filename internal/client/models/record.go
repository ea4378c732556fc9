// Package models defines the client-side data types carried through the
// local store and the sync engine.
package models

import "time"

// Record is a note as the sync layer sees it: an opaque content blob keyed
// by a globally unique id, versioned by its last-writer timestamp.
type Record struct {
	// ID is a globally unique identifier, assigned at creation and never
	// reused, including across delete and re-create.
	ID string

	// Content is the serialized note payload. The sync layer never
	// interprets it.
	Content string

	// UpdatedAt is the last modification time in unix milliseconds. It
	// orders versions of the same record under last-writer-wins.
	UpdatedAt int64

	// Deleted marks the record as a tombstone. Tombstones keep their id
	// and timestamp so deletes replicate like any other write.
	Deleted bool
}

// Touch stamps the record with the current time.
func (r *Record) Touch(now time.Time) {
	r.UpdatedAt = now.UnixMilli()
}

// ConflictResolution records an automatic merge outcome. Conflicts are
// resolved data, not errors; the log exists so a user can audit what the
// merge decided.
type ConflictResolution struct {
	RecordID        string
	WinnerUpdatedAt int64
	LoserUpdatedAt  int64
	Strategy        string
	ResolvedAt      int64
}

// StrategyLWW is the only resolution strategy currently implemented.
const StrategyLWW = "lww"
