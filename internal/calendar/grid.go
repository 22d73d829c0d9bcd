package calendar

import (
	"time"

	"canopy/internal/model"
)

const (
	// GridCells is the fixed size of a month grid: always six rows of seven
	// days, even for months that fit in five.
	GridCells = 42

	// VisibleEventsPerCell is how many events a month cell lists before
	// collapsing the rest into a "+N more" count.
	VisibleEventsPerCell = 2
)

// MonthGrid builds the 42-cell grid for the month containing ref. It starts
// with the trailing days of the previous month so that day 1 lands in its
// weekday column (Sunday first), then the month itself, then days of the
// next month until the grid is full. Dates are midnight in ref's location.
func MonthGrid(ref time.Time) []model.DayInfo {
	loc := ref.Location()
	year, month := ref.Year(), ref.Month()

	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	leading := int(first.Weekday())
	days := DaysInMonth(year, month)

	cells := make([]model.DayInfo, 0, GridCells)

	for i := leading; i > 0; i-- {
		cells = append(cells, model.DayInfo{Date: first.AddDate(0, 0, -i)})
	}
	for d := 0; d < days; d++ {
		cells = append(cells, model.DayInfo{Date: first.AddDate(0, 0, d), IsCurrentMonth: true})
	}
	next := first.AddDate(0, 1, 0)
	for i := 0; len(cells) < GridCells; i++ {
		cells = append(cells, model.DayInfo{Date: next.AddDate(0, 0, i)})
	}

	return cells
}

// MonthCell is a grid cell together with the events that belong to it.
type MonthCell struct {
	model.DayInfo

	Events []model.CalendarEvent `json:"events"`
	// Visible is the head of Events shown inline in the cell.
	Visible []model.CalendarEvent `json:"visible"`
	// More counts the events hidden behind Visible.
	More int `json:"more"`
}

// MonthCells combines MonthGrid with EventsOnDayWith for every cell.
func MonthCells(ref time.Time, events []model.CalendarEvent, opts FilterOptions) []MonthCell {
	grid := MonthGrid(ref)
	cells := make([]MonthCell, len(grid))

	for i, info := range grid {
		dayEvents := EventsOnDayWith(info.Date, events, opts)
		visible := dayEvents
		if len(visible) > VisibleEventsPerCell {
			visible = visible[:VisibleEventsPerCell]
		}
		cells[i] = MonthCell{
			DayInfo: info,
			Events:  dayEvents,
			Visible: visible,
			More:    len(dayEvents) - len(visible),
		}
	}
	return cells
}
