package memory_graph //nolint:revive // var-naming: using underscores for domain clarity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRelative(t *testing.T) {
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	testCases := []struct {
		name string
		then time.Time
		want string
	}{
		{"seconds", now.Add(-20 * time.Second), "a few seconds ago"},
		{"future", now.Add(time.Minute), "a few seconds ago"},
		{"one minute", now.Add(-90 * time.Second), "a minute ago"},
		{"minutes", now.Add(-45 * time.Minute), "45 minutes ago"},
		{"small minutes spelled", now.Add(-5 * time.Minute), "five minutes ago"},
		{"one hour", now.Add(-61 * time.Minute), "an hour ago"},
		{"hours", now.Add(-23 * time.Hour), "23 hours ago"},
		{"one day", now.Add(-25 * time.Hour), "a day ago"},
		{"days", now.AddDate(0, 0, -6), "six days ago"},
		{"one week", now.AddDate(0, 0, -7), "a week ago"},
		{"three weeks", now.AddDate(0, 0, -22), "three weeks ago"},
		{"one month", time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC), "a month ago"},
		{"month end clamps", time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC), "two months ago"},
		{"just short of a month", time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC), "four weeks ago"},
		{"one year", time.Date(2023, 3, 31, 12, 0, 0, 0, time.UTC), "a year ago"},
		{"leap day anniversary", time.Date(2023, 2, 28, 12, 0, 0, 0, time.UTC), "a year ago"},
		{"years", time.Date(2019, 4, 1, 0, 0, 0, 0, time.UTC), "four years ago"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Relative(tc.then, now))
		})
	}
}

func TestRelative_VariableMonthLengths(t *testing.T) {
	// February to March is a month even though it is only 29 days
	then := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "a month ago", Relative(then, now))

	// 30 days in a 31-day month is not yet a month
	then = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	now = time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "four weeks ago", Relative(then, now))
}

func TestAddMonths(t *testing.T) {
	jan31 := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), addMonths(jan31, 1))
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), addMonths(jan31, 13))
	assert.Equal(t, time.Date(2023, 11, 30, 0, 0, 0, 0, time.UTC), addMonths(jan31, -2))
}
