package models

import "time"

// EquitySnapshot is one row of the persisted equity time series. A snapshot
// covers one UTC day per symbol and is updated in place on each fill of
// that day; a new row starts at day rollover.
type EquitySnapshot struct {
	Symbol           string
	Timestamp        time.Time
	Equity           float64
	RealizedTodayPnL float64
	UnrealizedPnL    float64
}

// Day returns the UTC date the snapshot belongs to.
func (s EquitySnapshot) Day() time.Time {
	return s.Timestamp.UTC().Truncate(24 * time.Hour)
}

// SameDay reports whether t falls on the snapshot's UTC date.
func (s EquitySnapshot) SameDay(t time.Time) bool {
	return s.Day().Equal(t.UTC().Truncate(24 * time.Hour))
}
