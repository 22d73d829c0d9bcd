package calendar

import (
	"sort"
	"time"

	"canopy/internal/model"
)

// Placement is an event's horizontal column inside its overlap group.
type Placement struct {
	Event     model.CalendarEvent
	Slot      int
	SlotCount int
}

// OverlapGroup is a maximal run of events chained together by overlapping
// intervals. Members are ordered by (start, id) and Slot equals the index.
type OverlapGroup struct {
	Members []Placement
}

// Size is the number of columns the group needs.
func (g OverlapGroup) Size() int {
	return len(g.Members)
}

// sortByStart orders events by start, breaking ties on id.
func sortByStart(events []model.CalendarEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Start.Equal(events[j].Start) {
			return events[i].Start.Before(events[j].Start)
		}
		return events[i].ID < events[j].ID
	})
}

// GroupOverlaps partitions one day's events into overlap groups. It sorts by
// (start, id) and sweeps once, keeping the latest end seen in the open group:
// an event starting at or before that end joins the group, anything later
// closes it and opens a new one. Every event lands in exactly one group and
// the result does not depend on input order.
func GroupOverlaps(events []model.CalendarEvent) []OverlapGroup {
	if len(events) == 0 {
		return []OverlapGroup{}
	}

	sorted := make([]model.CalendarEvent, len(events))
	copy(sorted, events)
	sortByStart(sorted)

	var (
		groups  []OverlapGroup
		current []model.CalendarEvent
		maxEnd  time.Time
	)

	closeGroup := func() {
		if len(current) == 0 {
			return
		}
		members := make([]Placement, len(current))
		for i, ev := range current {
			members[i] = Placement{Event: ev, Slot: i, SlotCount: len(current)}
		}
		groups = append(groups, OverlapGroup{Members: members})
		current = nil
	}

	for _, ev := range sorted {
		if len(current) > 0 && !ev.Start.After(maxEnd) {
			current = append(current, ev)
			if ev.End.After(maxEnd) {
				maxEnd = ev.End
			}
			continue
		}
		closeGroup()
		current = append(current, ev)
		maxEnd = ev.End
	}
	closeGroup()

	return groups
}
