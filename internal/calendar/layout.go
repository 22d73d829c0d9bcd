package calendar

import (
	"math"
	"time"

	"canopy/internal/model"
)

const (
	// DefaultHourHeight is the pixel height of one hour row.
	DefaultHourHeight = 58.0
	// DefaultMinEventHeight keeps zero-length and very short events visible
	// and clickable.
	DefaultMinEventHeight = 24.0
)

// Layout places events on a fixed-height hour grid.
type Layout struct {
	HourHeight float64
	MinHeight  float64
	Filter     FilterOptions
}

// NewLayout returns a Layout with the default minimum height and the
// start-day-only filter.
func NewLayout(hourHeight float64) Layout {
	return Layout{HourHeight: hourHeight, MinHeight: DefaultMinEventHeight}
}

// LayoutDay positions one day's events (already filtered to day) on an hour
// grid of hourHeight pixels per hour.
func LayoutDay(events []model.CalendarEvent, day time.Time, hourHeight float64) []model.PositionedEvent {
	return NewLayout(hourHeight).Position(events, day)
}

// Position lays out events that are already known to belong to day. The
// result is ordered by (start, id).
func (l Layout) Position(events []model.CalendarEvent, day time.Time) []model.PositionedEvent {
	out := make([]model.PositionedEvent, 0, len(events))
	if len(events) == 0 {
		return out
	}

	minHeight := l.MinHeight
	if minHeight < 0 {
		minHeight = 0
	}

	dayStart := StartOfDay(day)
	dayEnd := EndOfDay(day)

	for _, group := range GroupOverlaps(events) {
		for _, m := range group.Members {
			start, end := clampToDay(m.Event, dayStart, dayEnd)

			startHours := hoursOf(start)
			duration := hoursOf(end) - startHours

			height := duration * l.HourHeight
			if height < minHeight {
				height = minHeight
			}

			out = append(out, model.PositionedEvent{
				Event:          m.Event,
				EffectiveStart: start,
				EffectiveEnd:   end,
				Top:            startHours * l.HourHeight,
				Height:         height,
				Slot:           m.Slot,
				SlotCount:      m.SlotCount,
			})
		}
	}
	return out
}

// Day filters events to day with l.Filter and positions them.
func (l Layout) Day(events []model.CalendarEvent, day time.Time) []model.PositionedEvent {
	return l.Position(EventsOnDayWith(day, events, l.Filter), day)
}

// TimeAt maps a vertical offset on day's hour grid back to a time of day.
// The minute is floored, then rounded to the nearest quantum and kept within
// the day, so the last selectable time is midnight minus one quantum. It
// also returns the grid offset of the snapped time.
func (l Layout) TimeAt(day time.Time, offset float64, quantumMinutes int) (time.Time, float64) {
	q := normalizeQuantum(quantumMinutes)
	dayStart := StartOfDay(day)
	if l.HourHeight <= 0 || !(offset > 0) {
		return dayStart, 0
	}
	if limit := 24 * l.HourHeight; offset > limit {
		offset = limit
	}

	minutes := int(math.Floor(offset / l.HourHeight * 60))
	minutes = int(math.Round(float64(minutes)/float64(q))) * q
	if last := minutesPerDay - q; minutes > last {
		minutes = last
	}

	t := time.Date(dayStart.Year(), dayStart.Month(), dayStart.Day(), minutes/60, minutes%60, 0, 0, dayStart.Location())
	return t, float64(minutes) / 60 * l.HourHeight
}

// DayColumn is one day of a week view.
type DayColumn struct {
	Date   time.Time               `json:"date"`
	Events []model.PositionedEvent `json:"events"`
}

// Week lays out the seven days, Sunday first, of the week containing date.
func (l Layout) Week(events []model.CalendarEvent, date time.Time) []DayColumn {
	days := WeekDays(date)
	cols := make([]DayColumn, len(days))
	for i, d := range days {
		cols[i] = DayColumn{Date: d, Events: l.Day(events, d)}
	}
	return cols
}

// LayoutWeek is Week with the default Layout for hourHeight.
func LayoutWeek(events []model.CalendarEvent, date time.Time, hourHeight float64) []DayColumn {
	return NewLayout(hourHeight).Week(events, date)
}

// clampToDay clamps an event to [dayStart, dayEnd] so that
// dayStart <= start <= end <= dayEnd holds even for inverted events.
func clampToDay(ev model.CalendarEvent, dayStart, dayEnd time.Time) (time.Time, time.Time) {
	start := ev.Start.In(dayStart.Location())
	end := ev.End.In(dayStart.Location())

	start = clampTime(start, dayStart, dayEnd)
	end = clampTime(end, start, dayEnd)
	return start, end
}

func clampTime(t, lo, hi time.Time) time.Time {
	if t.Before(lo) {
		return lo
	}
	if t.After(hi) {
		return hi
	}
	return t
}

// hoursOf is the time of day in fractional hours, at minute resolution.
func hoursOf(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60
}
