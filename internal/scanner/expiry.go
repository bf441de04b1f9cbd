package scanner

import (
	"strings"
	"time"
)

// MonthlyExpiry returns the monthly stock-option expiry relevant at now: the
// last Tuesday of the current month, or of the next month once that day has
// been reached. The result is midnight in now's location.
func MonthlyExpiry(now time.Time) time.Time {
	expiry := lastTuesday(now.Year(), now.Month(), now.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if !today.Before(expiry) {
		next := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
		expiry = lastTuesday(next.Year(), next.Month(), now.Location())
	}
	return expiry
}

func lastTuesday(year int, month time.Month, loc *time.Location) time.Time {
	// Day 0 of the following month is the last day of this one.
	d := time.Date(year, month+1, 0, 0, 0, 0, 0, loc)
	for d.Weekday() != time.Tuesday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// FormatExpiry renders an expiry as the exchange tag, e.g. 28JAN2025.
func FormatExpiry(t time.Time) string {
	return strings.ToUpper(t.Format("02Jan2006"))
}
