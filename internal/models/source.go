package models

import "time"

// SourceRecord remembers the version of an inbox file that was last ingested.
// ModTime is in Unix nanoseconds.
type SourceRecord struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	ModTime    int64     `json:"mod_time"`
	Size       int64     `json:"size"`
	IngestedAt time.Time `json:"ingested_at"`
}
