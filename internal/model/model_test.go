package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecurrence(t *testing.T) {
	cases := map[string]Recurrence{
		"":         RecurrenceNever,
		"never":    RecurrenceNever,
		"Daily":    RecurrenceDaily,
		" WEEKLY ": RecurrenceWeekly,
		"monthly":  RecurrenceMonthly,
		"Yearly":   RecurrenceYearly,
	}
	for in, want := range cases {
		got, err := ParseRecurrence(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseRecurrence("Fortnightly")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownRecurrence))
}

func TestRecurrenceRepeats(t *testing.T) {
	assert.False(t, RecurrenceNever.Repeats())
	assert.False(t, Recurrence("").Repeats())
	assert.True(t, RecurrenceMonthly.Repeats())
}

func TestPositionedEventGeometry(t *testing.T) {
	p := PositionedEvent{Slot: 1, SlotCount: 4}
	assert.InDelta(t, 25.0, p.Width(), 1e-9)
	assert.InDelta(t, 25.0, p.Left(), 1e-9)

	single := PositionedEvent{SlotCount: 1}
	assert.InDelta(t, 100.0, single.Width(), 1e-9)
	assert.InDelta(t, 0.0, single.Left(), 1e-9)

	unset := PositionedEvent{}
	assert.InDelta(t, 100.0, unset.Width(), 1e-9)
}
