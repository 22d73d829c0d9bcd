package ics

import (
	"bytes"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "canopy/internal/log"
	"canopy/internal/model"
)

// ErrEmptyBody is returned by Parse for an empty payload.
var ErrEmptyBody = errors.New("empty ICS body")

// Parse converts an ICS payload into calendar events with times in loc.
//
//   - VEVENTs without a UID or DTSTART are logged and skipped.
//   - All-day events become [midnight, next midnight) in loc.
//   - RRULE is reduced to its recurrence label; occurrences are not expanded.
//   - COLOR (RFC 7986) wins over the source's fallback color.
//
// Event ids are derived from (source id, UID, start) so they stay stable
// across refreshes of the same feed.
func Parse(src Source, body []byte, loc *time.Location) ([]model.CalendarEvent, error) {
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, fmt.Errorf("ics: parse %s: %w", src.ID, err)
	}

	events := make([]model.CalendarEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp, loc)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "err", perr, "id", src.ID)
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "id", src.ID, "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent, loc *time.Location) (model.CalendarEvent, error) {
	out := model.CalendarEvent{
		SourceID: src.ID,
		UserID:   src.UserID,
		Color:    src.Color,
	}

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Name = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty("COLOR"); p != nil && p.Value != "" {
		out.Color = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, fmt.Errorf("event %s: missing DTSTART", out.UID)
	}
	allDay := isAllDay(dtStart)
	start, err := ve.GetStartAt()
	if err != nil && allDay {
		start, err = ve.GetAllDayStartAt()
	}
	if err != nil {
		return out, fmt.Errorf("event %s: DTSTART: %w", out.UID, err)
	}

	if allDay {
		y, m, d := start.Date()
		out.Start = time.Date(y, m, d, 0, 0, 0, 0, loc)
		out.End = out.Start.AddDate(0, 0, 1)
		end, err := ve.GetEndAt()
		if err != nil {
			end, err = ve.GetAllDayEndAt()
		}
		if err == nil && ve.GetProperty(ical.ComponentPropertyDtEnd) != nil {
			ey, em, ed := end.Date()
			if e := time.Date(ey, em, ed, 0, 0, 0, 0, loc); e.After(out.Start) {
				out.End = e
			}
		}
	} else {
		out.Start = start.In(loc)
		out.End = out.Start
		if end, err := ve.GetEndAt(); err == nil {
			out.End = end.In(loc)
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		rec, err := recurrenceFromRRule(p.Value)
		if err != nil {
			appLog.Warn("ics rrule ignored", "err", err, "uid", out.UID)
		}
		out.Recurrence = rec
	} else {
		out.Recurrence = model.RecurrenceNever
	}

	if p := ve.GetProperty(ical.ComponentPropertyCreated); p != nil {
		if t, err := parseICSTime(p.Value); err == nil {
			out.CreatedAt = t.In(loc)
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyLastModified); p != nil {
		if t, err := parseICSTime(p.Value); err == nil {
			out.UpdatedAt = t.In(loc)
		}
	}
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = out.CreatedAt
	}

	out.ID = EventID(src.ID, out.UID, out.Start)
	return out, nil
}

// isAllDay reports VALUE=DATE or a date-only DTSTART value.
func isAllDay(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// EventID derives a stable positive id from an event's origin.
func EventID(sourceID, uid string, start time.Time) int64 {
	h := fnv.New64a()
	h.Write([]byte(sourceID))
	h.Write([]byte{0})
	h.Write([]byte(uid))
	h.Write([]byte{0})
	h.Write([]byte(start.UTC().Format(time.RFC3339)))
	return int64(h.Sum64() & math.MaxInt64)
}

// parseICSTime parses basic UTC, floating and date-only ICS values.
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, time.Local)
	}
	return time.ParseInLocation("20060102", v, time.Local)
}
