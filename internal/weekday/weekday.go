// Package weekday encodes sets of weekdays to the compact wire form
// stored on weekly templates and resolves weekday names to calendar
// dates within a Monday-start week of the year.
package weekday

import (
	"fmt"
	"strings"
	"time"
)

// Canonical encoding order, Monday first.
var canonical = []time.Weekday{
	time.Monday,
	time.Tuesday,
	time.Wednesday,
	time.Thursday,
	time.Friday,
	time.Saturday,
	time.Sunday,
}

// Abbrev returns the locale-independent 3-letter form: "Mon".."Sun".
func Abbrev(d time.Weekday) string {
	return d.String()[:3]
}

// Parse converts a 3-letter abbreviation back into a weekday.
func Parse(abbrev string) (time.Weekday, error) {
	for _, d := range canonical {
		if Abbrev(d) == abbrev {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", abbrev)
}

// Encode joins the enabled weekdays into a comma-space separated list
// in canonical Mon..Sun order. An empty set encodes to "".
func Encode(days map[time.Weekday]bool) string {
	var parts []string
	for _, d := range canonical {
		if days[d] {
			parts = append(parts, Abbrev(d))
		}
	}
	return strings.Join(parts, ", ")
}

// Decode parses the wire form produced by Encode. "" decodes to an
// empty set.
func Decode(encoded string) (map[time.Weekday]bool, error) {
	days := make(map[time.Weekday]bool)
	if encoded == "" {
		return days, nil
	}
	for _, part := range strings.Split(encoded, ", ") {
		d, err := Parse(part)
		if err != nil {
			return nil, err
		}
		days[d] = true
	}
	return days, nil
}

// mondayIndex maps a weekday to 0..6 with Monday as 0.
func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// WeekNumber returns the week of year with Monday as the first day of
// the week; all days before the first Monday of the year are in week 0
// (strftime "%W" numbering, not ISO 8601).
func WeekNumber(t time.Time) int {
	return (t.YearDay() - 1 + 7 - mondayIndex(t.Weekday())) / 7
}

// DateOf returns the calendar date of the given weekday within the
// (year, week) pair under WeekNumber's numbering. For week 0 the
// resolved day can precede January 1st, in which case the date rolls
// back into the previous year.
func DateOf(year, week int, day time.Weekday, loc *time.Location) time.Time {
	jan1 := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	first := mondayIndex(jan1.Weekday())
	dow := mondayIndex(day)

	var julian int
	if week == 0 {
		julian = 1 + dow - first
	} else {
		week0len := (7 - first) % 7
		julian = 1 + week0len + 7*(week-1) + dow
	}
	// time.Date normalizes out-of-range days, so julian <= 0 lands in
	// the previous year.
	return time.Date(year, time.January, julian, 0, 0, 0, 0, loc)
}
