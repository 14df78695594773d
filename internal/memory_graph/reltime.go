package memory_graph //nolint:revive // var-naming: using underscores for domain clarity

import (
	"fmt"
	"time"
)

var smallNumbers = []string{
	"zero", "one", "two", "three", "four", "five", "six",
	"seven", "eight", "nine", "ten", "eleven", "twelve",
}

func spell(n int) string {
	if n >= 0 && n < len(smallNumbers) {
		return smallNumbers[n]
	}
	return fmt.Sprint(n)
}

func plural(n int, one, unit string) string {
	if n == 1 {
		return one
	}
	return spell(n) + " " + unit + " ago"
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// addMonths moves t by n calendar months, clamping the day to the target
// month's length (Jan 31 + 1 month is the last day of February).
func addMonths(t time.Time, n int) time.Time {
	total := int(t.Month()) - 1 + n
	year := t.Year() + total/12
	month := total % 12
	if month < 0 {
		month += 12
		year--
	}
	m := time.Month(month + 1)
	day := min(t.Day(), daysIn(year, m, t.Location()))
	return time.Date(year, m, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// calendarDiff splits the span from then to now into whole calendar months
// and a remainder, the way a wall calendar would count it.
func calendarDiff(then, now time.Time) (months int, rest time.Duration) {
	months = (now.Year()-then.Year())*12 + int(now.Month()) - int(then.Month())
	for months > 0 && addMonths(then, months).After(now) {
		months--
	}
	return months, now.Sub(addMonths(then, months))
}

// Relative phrases the age of then as seen at now, e.g. "a day ago" or
// "three weeks ago". Both times are compared in now's location. Future
// timestamps read as "a few seconds ago".
func Relative(then, now time.Time) string {
	then = then.In(now.Location())
	if !then.Before(now) {
		return "a few seconds ago"
	}

	months, rest := calendarDiff(then, now)
	years := months / 12
	months %= 12
	days := int(rest / (24 * time.Hour))
	hours := int(rest / time.Hour % 24)
	minutes := int(rest / time.Minute % 60)

	switch {
	case years > 0:
		return plural(years, "a year ago", "years")
	case months > 0:
		return plural(months, "a month ago", "months")
	case days >= 7:
		return plural(days/7, "a week ago", "weeks")
	case days > 0:
		return plural(days, "a day ago", "days")
	case hours > 0:
		return plural(hours, "an hour ago", "hours")
	case minutes > 0:
		return plural(minutes, "a minute ago", "minutes")
	}
	return "a few seconds ago"
}
