// Package store keeps the current event list in memory. The list is never
// edited in place: a refresh swaps in a new slice and readers always get a
// private copy.
package store

import (
	"sort"
	"sync"
	"time"

	"canopy/internal/calendar"
	"canopy/internal/model"
)

// Snapshot is the latest event list supplied by the event source.
type Snapshot struct {
	mu        sync.RWMutex
	events    []model.CalendarEvent
	byID      map[int64]int
	updatedAt time.Time
}

func New() *Snapshot {
	return &Snapshot{byID: map[int64]int{}}
}

// Replace swaps in a new event list. Events are kept sorted by (start, id)
// and a later duplicate id overrides an earlier one.
func (s *Snapshot) Replace(events []model.CalendarEvent, at time.Time) {
	byID := make(map[int64]model.CalendarEvent, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}
	next := make([]model.CalendarEvent, 0, len(byID))
	for _, ev := range byID {
		next = append(next, ev)
	}
	sort.Slice(next, func(i, j int) bool {
		if !next[i].Start.Equal(next[j].Start) {
			return next[i].Start.Before(next[j].Start)
		}
		return next[i].ID < next[j].ID
	})

	index := make(map[int64]int, len(next))
	for i, ev := range next {
		index[ev.ID] = i
	}

	s.mu.Lock()
	s.events = next
	s.byID = index
	s.updatedAt = at
	s.mu.Unlock()
}

// All returns a copy of every event.
func (s *Snapshot) All() []model.CalendarEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CalendarEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Month returns the events starting in the given month.
func (s *Snapshot) Month(year int, month time.Month) []model.CalendarEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return calendar.EventsInMonth(s.events, month, year)
}

// Get looks up a single event by id.
func (s *Snapshot) Get(id int64) (model.CalendarEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return model.CalendarEvent{}, false
	}
	return s.events[i], true
}

// Len is the number of events held.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// UpdatedAt is when the list was last replaced; zero before the first load.
func (s *Snapshot) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}
