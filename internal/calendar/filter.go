package calendar

import (
	"time"

	"canopy/internal/model"
)

// FilterOptions tunes how events are associated with a day.
type FilterOptions struct {
	// IncludeSpanningEvents also selects events that started on an earlier
	// day and are still running on the requested one. Off by default: an
	// event belongs only to the day it starts on.
	IncludeSpanningEvents bool
}

// EventsOnDay returns the events whose start falls on day's calendar date.
// An event that crosses midnight is not returned for its continuation day.
func EventsOnDay(day time.Time, events []model.CalendarEvent) []model.CalendarEvent {
	return EventsOnDayWith(day, events, FilterOptions{})
}

// EventsOnDayWith is EventsOnDay with explicit options. Input order is kept.
func EventsOnDayWith(day time.Time, events []model.CalendarEvent, opts FilterOptions) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0)
	if len(events) == 0 {
		return out
	}

	dayStart := StartOfDay(day)
	dayEnd := EndOfDay(day)

	for _, ev := range events {
		if IsSameDay(day, ev.Start) {
			out = append(out, ev)
			continue
		}
		if opts.IncludeSpanningEvents && spans(ev, dayStart, dayEnd) {
			out = append(out, ev)
		}
	}
	return out
}

// spans reports whether ev started before dayStart and has not ended by it.
func spans(ev model.CalendarEvent, dayStart, dayEnd time.Time) bool {
	return ev.Start.Before(dayStart) && ev.End.After(dayStart) && !ev.Start.After(dayEnd)
}

// EventsInMonth returns the events whose start falls in the given month and
// year. Input order is kept.
func EventsInMonth(events []model.CalendarEvent, month time.Month, year int) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0)
	for _, ev := range events {
		if ev.Start.Month() == month && ev.Start.Year() == year {
			out = append(out, ev)
		}
	}
	return out
}
