package entity

import "time"

// Snapshot is an opaque capture of the page at a point in time. The
// engine passes snapshots between ActionPort and OutcomeJudge without
// interpreting the image bytes.
type Snapshot struct {
	Ref     string
	Data    []byte
	Format  string
	PageURL string
	TakenAt time.Time
}
