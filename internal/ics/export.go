package ics

import (
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"

	"canopy/internal/model"
)

const productID = "-//canopy//calendar//EN"

// Export renders events as a VCALENDAR. Times are written in UTC; a
// repeating label becomes an RRULE with only FREQ set. Events without a UID
// get one derived from their id.
func Export(events []model.CalendarEvent, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	for _, ev := range events {
		uid := ev.UID
		if uid == "" {
			uid = strconv.FormatInt(ev.ID, 10) + "@canopy"
		}

		ve := cal.AddEvent(uid)
		ve.SetDtStampTime(stamp.UTC())
		ve.SetStartAt(ev.Start.UTC())
		ve.SetEndAt(ev.End.UTC())
		ve.SetSummary(ev.Name)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.Color != "" {
			ve.SetProperty("COLOR", ev.Color)
		}
		if !ev.CreatedAt.IsZero() {
			ve.SetCreatedTime(ev.CreatedAt.UTC())
		}
		if !ev.UpdatedAt.IsZero() {
			ve.SetModifiedAt(ev.UpdatedAt.UTC())
		}
		if rule := rruleFromRecurrence(ev.Recurrence); rule != "" {
			ve.AddProperty(ical.ComponentPropertyRrule, rule)
		}
	}

	return cal.Serialize()
}
