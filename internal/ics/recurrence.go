package ics

import (
	"fmt"
	"strings"

	"github.com/teambition/rrule-go"

	"canopy/internal/model"
)

// recurrenceFromRRule maps an RRULE value to the recurrence label. Only the
// frequency is kept; INTERVAL, BYDAY, COUNT and the rest are dropped because
// the label set cannot express them. Sub-daily rules have no label and map
// to Never.
func recurrenceFromRRule(raw string) (model.Recurrence, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.RecurrenceNever, nil
	}
	raw = strings.TrimPrefix(raw, "RRULE:")

	opt, err := rrule.StrToROption(raw)
	if err != nil {
		return model.RecurrenceNever, fmt.Errorf("ics: parse RRULE %q: %w", raw, err)
	}

	switch opt.Freq {
	case rrule.DAILY:
		return model.RecurrenceDaily, nil
	case rrule.WEEKLY:
		return model.RecurrenceWeekly, nil
	case rrule.MONTHLY:
		return model.RecurrenceMonthly, nil
	case rrule.YEARLY:
		return model.RecurrenceYearly, nil
	default:
		return model.RecurrenceNever, nil
	}
}

// rruleFromRecurrence renders the label as an RRULE value ("FREQ=WEEKLY").
// Never and unknown labels yield "".
func rruleFromRecurrence(r model.Recurrence) string {
	var freq rrule.Frequency
	switch r {
	case model.RecurrenceDaily:
		freq = rrule.DAILY
	case model.RecurrenceWeekly:
		freq = rrule.WEEKLY
	case model.RecurrenceMonthly:
		freq = rrule.MONTHLY
	case model.RecurrenceYearly:
		freq = rrule.YEARLY
	default:
		return ""
	}
	opt := rrule.ROption{Freq: freq}
	return opt.RRuleString()
}
