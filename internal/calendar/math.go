// Package calendar holds the date arithmetic and layout rules behind the
// month, week and day views: month grid generation, per-day event
// filtering, overlap grouping and hour-grid placement.
//
// Everything here is pure. Calendar components (year, month, day, hour) are
// read in the location carried by the time.Time values passed in, so callers
// convert to their display timezone first. Nothing reads the wall clock;
// "now" is always a parameter.
package calendar

import (
	"fmt"
	"time"
)

const (
	// DefaultSlotMinutes is the granularity of selectable start/end times.
	DefaultSlotMinutes = 15

	minutesPerDay = 24 * 60

	// invalidTime is what FormatTime returns for a zero time.
	invalidTime = "Invalid Date"
)

// IsLeapYear applies the Gregorian rule.
func IsLeapYear(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

// DaysInFebruary returns 29 for leap years and 28 otherwise.
func DaysInFebruary(year int) int {
	if IsLeapYear(year) {
		return 29
	}
	return 28
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	if month == time.February {
		return DaysInFebruary(year)
	}
	// Day 0 of next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsSameDay compares calendar dates, ignoring time of day. b is viewed in
// a's location.
func IsSameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// IsToday reports whether date falls on the same calendar day as now.
func IsToday(date, now time.Time) bool {
	return IsSameDay(date, now)
}

// StartOfDay returns 00:00:00.000 of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999 of t's day in t's location.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// StartOfWeek returns midnight of the Sunday on or before t.
func StartOfWeek(t time.Time) time.Time {
	day := StartOfDay(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// WeekDays returns the seven dates, Sunday first, of the week containing t.
func WeekDays(t time.Time) []time.Time {
	start := StartOfWeek(t)
	days := make([]time.Time, 7)
	for i := range days {
		days[i] = start.AddDate(0, 0, i)
	}
	return days
}

// CurrentTimeOffset is the share of the day elapsed at now, in percent.
// Used to place the current-time indicator on the hour grid.
func CurrentTimeOffset(now time.Time) float64 {
	minutes := now.Hour()*60 + now.Minute()
	return float64(minutes) / minutesPerDay * 100
}

// HourLabel renders an hour row heading: "12 AM", "1 AM", ..., "12 PM", "11 PM".
func HourLabel(hour int) string {
	switch {
	case hour == 0:
		return "12 AM"
	case hour < 12:
		return fmt.Sprintf("%d AM", hour)
	case hour == 12:
		return "12 PM"
	default:
		return fmt.Sprintf("%d PM", hour-12)
	}
}

// FormatTime renders t as "h:mm AM/PM". A zero time yields "Invalid Date"
// instead of a midnight label.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return invalidTime
	}
	return t.Format("3:04 PM")
}

// TimeSlot is one selectable time of day.
type TimeSlot struct {
	Value string `json:"value"` // "HH:MM", 24h
	Label string `json:"label"` // "h:mm AM/PM"
}

// normalizeQuantum returns q when it evenly divides an hour, otherwise the
// default quantum.
func normalizeQuantum(q int) int {
	if q <= 0 || 60%q != 0 {
		return DefaultSlotMinutes
	}
	return q
}

// TimeSlots enumerates every quantum mark of a day starting at 00:00. With
// the default 15 minute quantum that is 96 slots.
func TimeSlots(quantumMinutes int) []TimeSlot {
	q := normalizeQuantum(quantumMinutes)
	base := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

	slots := make([]TimeSlot, 0, minutesPerDay/q)
	for m := 0; m < minutesPerDay; m += q {
		t := base.Add(time.Duration(m) * time.Minute)
		slots = append(slots, TimeSlot{
			Value: t.Format("15:04"),
			Label: t.Format("3:04 PM"),
		})
	}
	return slots
}

// TimeSlotsFrom returns the slots at or after start's time of day, with
// start's minutes rounded down to the quantum. The list does not wrap past
// midnight, so a late start yields a short list; callers that need a
// non-empty list fall back to TimeSlots.
func TimeSlotsFrom(start time.Time, quantumMinutes int) []TimeSlot {
	q := normalizeQuantum(quantumMinutes)
	all := TimeSlots(q)

	floored := start.Minute() - start.Minute()%q
	idx := (start.Hour()*60 + floored) / q
	if idx >= len(all) {
		return []TimeSlot{}
	}
	return all[idx:]
}

// ParseClock parses an "HH:MM" value back into a time on day's date.
func ParseClock(day time.Time, value string) (time.Time, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: invalid time of day %q: %w", value, err)
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}
