package domain

import "time"

// DaysInMonth returns the number of calendar days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthRange returns the half-open wall-clock window [start, end) covering the
// logical days of a month: from the 1st at dayStartHour:00 to the 1st of the
// following month at the same hour. Times are UTC wall clock.
func MonthRange(year int, month time.Month, dayStartHour int) (time.Time, time.Time) {
	start := time.Date(year, month, 1, dayStartHour, 0, 0, 0, time.UTC)
	end := time.Date(year, month+1, 1, dayStartHour, 0, 0, 0, time.UTC)
	return start, end
}

// logicalTime shifts t back by dayStartHour so that a logical day starting at
// dayStartHour:00 falls on a single calendar date.
func logicalTime(t time.Time, dayStartHour int) time.Time {
	return t.Add(-time.Duration(dayStartHour) * time.Hour)
}
