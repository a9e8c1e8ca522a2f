package models

import "time"

// NoteMetadata identifies one committed note file on disk; the index sync
// loop compares checksums against the database to find stale rows.
type NoteMetadata struct {
	Path      string
	Checksum  string
	UpdatedAt time.Time
}
