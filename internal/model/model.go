package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownRecurrence is returned by ParseRecurrence for labels outside the
// closed Never/Daily/Weekly/Monthly/Yearly set.
var ErrUnknownRecurrence = errors.New("unknown recurrence rule")

// Recurrence is the repeat label stored on an event. It is carried through
// import/export but never expanded into individual occurrences.
type Recurrence string

const (
	RecurrenceNever   Recurrence = "Never"
	RecurrenceDaily   Recurrence = "Daily"
	RecurrenceWeekly  Recurrence = "Weekly"
	RecurrenceMonthly Recurrence = "Monthly"
	RecurrenceYearly  Recurrence = "Yearly"
)

// Recurrences lists the accepted labels in the order the edit form shows them.
var Recurrences = []Recurrence{
	RecurrenceNever,
	RecurrenceDaily,
	RecurrenceWeekly,
	RecurrenceMonthly,
	RecurrenceYearly,
}

// ParseRecurrence maps a label to a Recurrence. Matching is case-insensitive
// and an empty label means Never.
func ParseRecurrence(s string) (Recurrence, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RecurrenceNever, nil
	}
	for _, r := range Recurrences {
		if strings.EqualFold(s, string(r)) {
			return r, nil
		}
	}
	return RecurrenceNever, fmt.Errorf("model: %w: %q", ErrUnknownRecurrence, s)
}

// Repeats reports whether the label describes a repeating event.
func (r Recurrence) Repeats() bool {
	return r != "" && r != RecurrenceNever
}

// CalendarEvent is a single event as supplied by the event source. Instances
// are treated as read-only by the layout code; a refresh replaces the whole
// list.
type CalendarEvent struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end"`
	Location    string     `json:"location"`
	Description string     `json:"description"`
	UserID      string     `json:"user_id"`
	Color       string     `json:"color"`
	Recurrence  Recurrence `json:"recurrence_rule,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Where an imported event came from.
	SourceID string `json:"source_id,omitempty"`
	UID      string `json:"uid,omitempty"`
}

// Duration is End - Start. It may be zero or negative; nothing here enforces
// End >= Start.
func (e CalendarEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// DayInfo is one cell of the month grid.
type DayInfo struct {
	Date time.Time `json:"date"`
	// IsCurrentMonth is a styling hint; it never affects filtering.
	IsCurrentMonth bool `json:"is_current_month"`
}

// PositionedEvent is an event placed on an hour grid for one (day,
// hourHeight) pair. It is recomputed on every layout pass.
type PositionedEvent struct {
	Event CalendarEvent `json:"event"`

	// EffectiveStart/EffectiveEnd are Start/End clamped to the rendered day.
	EffectiveStart time.Time `json:"effective_start"`
	EffectiveEnd   time.Time `json:"effective_end"`

	Top    float64 `json:"top"`
	Height float64 `json:"height"`

	Slot      int `json:"slot"`
	SlotCount int `json:"slot_count"`
}

// Width is the horizontal share of the column in percent.
func (p PositionedEvent) Width() float64 {
	if p.SlotCount <= 0 {
		return 100
	}
	return 100 / float64(p.SlotCount)
}

// Left is the horizontal offset in percent.
func (p PositionedEvent) Left() float64 {
	return float64(p.Slot) * p.Width()
}
