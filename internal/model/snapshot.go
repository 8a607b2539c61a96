package model

import "time"

// Snapshot is one complete, immutable build of the name-keyed price index.
// Records is keyed by the normalized card name.
type Snapshot struct {
	Records         map[string]PriceRecord
	FetchedAt       time.Time
	SourceUpdatedAt string
}

// Len returns the number of indexed names.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Age returns how long ago the snapshot was fetched.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

// FetchedAtMillis returns the fetch time as Unix epoch milliseconds.
func (s *Snapshot) FetchedAtMillis() int64 {
	return s.FetchedAt.UnixMilli()
}
