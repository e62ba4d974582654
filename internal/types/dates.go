package types

import "time"

// AddDays returns t shifted by n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// StartOfDay returns midnight of t's calendar day, preserving location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last instant of t's calendar day, preserving location.
func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

// DaysUntil returns the number of whole calendar days from `from` until `to`,
// negative when `to` is in the past.
func DaysUntil(from, to time.Time) int {
	f := StartOfDay(from.UTC())
	t := StartOfDay(to.UTC())
	return int(t.Sub(f).Hours() / 24)
}
