// Package dates holds the calendar arithmetic shared by every birthday
// component. A "date" here is a civil date represented as midnight UTC, so
// day differences never cross a DST boundary.
package dates

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Day is the length of one civil day.
const Day = 24 * time.Hour

// Civil strips the clock part of t as observed in t's own location and
// returns that calendar date at midnight UTC.
func Civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current civil date in loc according to clock.
func Today(clock clockwork.Clock, loc *time.Location) time.Time {
	return Civil(clock.Now().In(loc))
}

// IsLeap reports whether year is a Gregorian leap year.
func IsLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// InYear places the month and day of birthday in year. Feb 29 falls back to
// Feb 28 when year is not a leap year.
func InYear(birthday time.Time, year int) time.Time {
	m, d := birthday.Month(), birthday.Day()
	if m == time.February && d == 29 && !IsLeap(year) {
		d = 28
	}
	return time.Date(year, m, d, 0, 0, 0, 0, time.UTC)
}

// NextOccurrence returns the first date on or after ref that carries the
// month and day of birthday. The birthday's year is ignored.
func NextOccurrence(birthday, ref time.Time) time.Time {
	ref = Civil(ref)
	next := InYear(birthday, ref.Year())
	if next.Before(ref) {
		next = InYear(birthday, ref.Year()+1)
	}
	return next
}

// DaysUntil returns the number of whole days from ref to the next occurrence
// of birthday. It is zero when the birthday is on ref.
func DaysUntil(birthday, ref time.Time) int {
	return int(NextOccurrence(birthday, ref).Sub(Civil(ref)) / Day)
}

// IsBirthday reports whether birthday recurs on ref.
func IsBirthday(birthday, ref time.Time) bool {
	return DaysUntil(birthday, ref) == 0
}
