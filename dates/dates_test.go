package dates

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextOccurrence(t *testing.T) {
	tests := []struct {
		name     string
		birthday time.Time
		ref      time.Time
		want     time.Time
	}{
		{"later this year", date(1990, 12, 24), date(2024, 3, 1), date(2024, 12, 24)},
		{"today", date(1990, 3, 1), date(2024, 3, 1), date(2024, 3, 1)},
		{"already passed", date(1990, 1, 15), date(2024, 3, 1), date(2025, 1, 15)},
		{"leap day just passed", date(2000, 2, 29), date(2024, 3, 1), date(2025, 2, 28)},
		{"leap day in leap year", date(2000, 2, 29), date(2024, 2, 1), date(2024, 2, 29)},
		{"leap day in common year", date(2000, 2, 29), date(2023, 2, 1), date(2023, 2, 28)},
		{"new year rollover", date(1999, 1, 1), date(2024, 12, 31), date(2025, 1, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextOccurrence(tt.birthday, tt.ref))
		})
	}
}

func TestNextOccurrenceNeverBeforeReference(t *testing.T) {
	birthdays := []time.Time{date(1990, 1, 1), date(1990, 2, 28), date(2000, 2, 29), date(1990, 7, 15), date(1990, 12, 31)}
	for ref := date(2023, 1, 1); ref.Before(date(2025, 1, 1)); ref = ref.Add(Day) {
		for _, b := range birthdays {
			next := NextOccurrence(b, ref)
			require.False(t, next.Before(ref), "birthday %v ref %v", b, ref)

			days := DaysUntil(b, ref)
			require.GreaterOrEqual(t, days, 0)
			require.Less(t, days, 366)
			if b.Month() != time.February || b.Day() != 29 {
				require.Equal(t, b.Month(), next.Month())
				require.Equal(t, b.Day(), next.Day())
				require.Equal(t, days == 0, b.Month() == ref.Month() && b.Day() == ref.Day())
			}
		}
	}
}

func TestDaysUntil(t *testing.T) {
	ref := date(2024, 6, 10)
	assert.Equal(t, 0, DaysUntil(date(1990, 6, 10), ref))
	assert.Equal(t, 1, DaysUntil(date(1990, 6, 11), ref))
	assert.Equal(t, 364, DaysUntil(date(1990, 6, 9), ref))
}

func TestDaysUntilIgnoresClockTime(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	ref := time.Date(2024, 3, 30, 23, 30, 0, 0, berlin)
	assert.Equal(t, 1, DaysUntil(date(1990, 3, 31), ref))
	assert.True(t, IsBirthday(date(1990, 3, 30), ref))
}

func TestToday(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// 23:30 UTC on Dec 31 is already Jan 1 in Berlin.
	clock := clockwork.NewFakeClockAt(time.Date(2024, 12, 31, 23, 30, 0, 0, time.UTC))
	assert.Equal(t, date(2025, 1, 1), Today(clock, berlin))
	assert.Equal(t, date(2024, 12, 31), Today(clock, time.UTC))
}

func TestParseBirthday(t *testing.T) {
	today := date(2024, 6, 1)

	got, err := ParseBirthday("24.12.1990", today)
	require.NoError(t, err)
	assert.Equal(t, date(1990, 12, 24), got)

	got, err = ParseBirthday(" 1.2.1985 ", today)
	require.NoError(t, err)
	assert.Equal(t, date(1985, 2, 1), got)

	got, err = ParseBirthday("01.06.2024", today)
	require.NoError(t, err)
	assert.Equal(t, today, got)

	_, err = ParseBirthday("31.12.2024", today)
	var future *ValidationError
	require.True(t, errors.As(err, &future))
	assert.Contains(t, future.Reason, "future")

	for _, input := range []string{"", "1990-12-24", "02.06.2024", "32.01.1990", "29.02.1991", "01.13.1990", "01.01.1850", "01.01.2030", "abc"} {
		_, err := ParseBirthday(input, today)
		var verr *ValidationError
		assert.True(t, errors.As(err, &verr), "input %q", input)
	}
}
