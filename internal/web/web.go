package web

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"canopy/internal/calendar"
	"canopy/internal/clock"
	"canopy/internal/config"
	"canopy/internal/ics"
	appLog "canopy/internal/log"
	"canopy/internal/model"
	"canopy/internal/pomodoro"
	"canopy/internal/refresh"
	"canopy/internal/store"
)

const dateLayout = "2006-01-02"

// Refresher triggers an immediate feed refresh.
type Refresher interface {
	RunOnce(ctx context.Context) (refresh.Result, error)
}

// Server exposes the calendar views over HTTP. Every view is computed from
// the current snapshot on each request; nothing is cached here.
type Server struct {
	cfg     *config.Config
	loc     *time.Location
	snap    *store.Snapshot
	refresh Refresher
	clock   clock.Clock

	router  *mux.Router
	limiter *IPRateLimiter

	// One shared focus timer; transitions take the server clock.
	timerMu sync.Mutex
	timer   *pomodoro.Timer
}

// Option customizes a Server.
type Option func(*Server)

// WithClock replaces the system clock.
func WithClock(c clock.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithRefresher enables POST /api/refresh.
func WithRefresher(r Refresher) Option {
	return func(s *Server) { s.refresh = r }
}

// NewServer constructs a new Server. Calendar days are computed in loc.
func NewServer(cfg *config.Config, loc *time.Location, snap *store.Snapshot, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		loc:    loc,
		snap:   snap,
		clock:  clock.NewSystem(),
		router: mux.NewRouter(),
	}
	for _, o := range opts {
		o(s)
	}
	p := cfg.Pomodoro
	s.timer = pomodoro.NewTimer(pomodoro.SettingsFromMinutes(p.Pomodoro, p.ShortBreak, p.LongBreak))
	if cfg.RateLimit.PerSecond > 0 {
		s.limiter = NewIPRateLimiter(rate.Limit(cfg.RateLimit.PerSecond), cfg.RateLimit.Burst)
	}
	s.registerRoutes()
	return s
}

// Handler returns the router wrapped in the request-id, access log, rate
// limit and (when configured) basic auth middleware.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = basicAuthMiddleware(s.cfg.BasicAuth.Username, s.cfg.BasicAuth.Password, h)
	}
	if s.limiter != nil {
		h = rateLimitMiddleware(s.limiter, h)
	}
	return requestIDMiddleware(accessLogMiddleware(h))
}

// Close releases background resources.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials mean auth is off.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

func (s *Server) registerRoutes() {
	r := s.router
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/events/{id:[0-9]+}", s.handleEvent).Methods(http.MethodGet)
	api.HandleFunc("/month", s.handleMonth).Methods(http.MethodGet)
	api.HandleFunc("/week", s.handleWeek).Methods(http.MethodGet)
	api.HandleFunc("/day", s.handleDay).Methods(http.MethodGet)
	api.HandleFunc("/timeslots", s.handleTimeSlots).Methods(http.MethodGet)
	api.HandleFunc("/pomodoro", s.handlePomodoro).Methods(http.MethodGet)
	api.HandleFunc("/pomodoro/{action:start|pause|reset}", s.handlePomodoroAction).Methods(http.MethodPost)
	api.HandleFunc("/pomodoro/mode", s.handlePomodoroMode).Methods(http.MethodPost)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)

	r.HandleFunc("/calendar.ics", s.handleICS).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

func (s *Server) now() time.Time {
	return s.clock.Now().In(s.loc)
}

func (s *Server) layout(hourHeight float64) calendar.Layout {
	return calendar.Layout{
		HourHeight: hourHeight,
		MinHeight:  s.cfg.Layout.MinEventHeight,
		Filter:     s.filter(),
	}
}

func (s *Server) filter() calendar.FilterOptions {
	return calendar.FilterOptions{IncludeSpanningEvents: s.cfg.Layout.IncludeSpanningEvents}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type eventsResponse struct {
	Year      int                   `json:"year"`
	Month     int                   `json:"month"`
	Events    []model.CalendarEvent `json:"events"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// handleEvents returns the events starting in one month.
//
// GET /api/events?year=2025&month=5 (both default to the current month)
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	q := r.URL.Query()

	year, err := parseIntDefault(q.Get("year"), now.Year())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid year")
		return
	}
	month, err := parseIntDefault(q.Get("month"), int(now.Month()))
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "invalid month")
		return
	}

	writeJSON(w, http.StatusOK, eventsResponse{
		Year:      year,
		Month:     month,
		Events:    s.snap.Month(year, time.Month(month)),
		UpdatedAt: s.snap.UpdatedAt(),
	})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	ev, ok := s.snap.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

type monthResponse struct {
	Year  int                  `json:"year"`
	Month int                  `json:"month"`
	Today string               `json:"today"`
	Cells []calendar.MonthCell `json:"cells"`
}

// handleMonth returns the 42-cell grid for the month containing date.
func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	ref, err := s.parseDate(r.URL.Query().Get("date"), now)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return
	}

	writeJSON(w, http.StatusOK, monthResponse{
		Year:  ref.Year(),
		Month: int(ref.Month()),
		Today: now.Format(dateLayout),
		Cells: calendar.MonthCells(ref, s.snap.All(), s.filter()),
	})
}

// positionedView adds the derived horizontal geometry to a placed event.
type positionedView struct {
	model.PositionedEvent
	Width float64 `json:"width"`
	Left  float64 `json:"left"`
	Label string  `json:"label"`
}

func toViews(in []model.PositionedEvent) []positionedView {
	out := make([]positionedView, len(in))
	for i, p := range in {
		out[i] = positionedView{
			PositionedEvent: p,
			Width:           p.Width(),
			Left:            p.Left(),
			Label:           calendar.FormatTime(p.Event.Start) + " - " + calendar.FormatTime(p.Event.End),
		}
	}
	return out
}

type dayColumnView struct {
	Date    string           `json:"date"`
	IsToday bool             `json:"is_today"`
	Events  []positionedView `json:"events"`
}

type weekResponse struct {
	Start      string          `json:"start"`
	HourHeight float64         `json:"hour_height"`
	Hours      []string        `json:"hours"`
	Days       []dayColumnView `json:"days"`
	// NowOffset is the current-time indicator in percent of the day, set
	// only when the week contains today.
	NowOffset *float64 `json:"now_offset,omitempty"`
}

// handleWeek lays out the Sunday-first week containing date.
//
// GET /api/week?date=2025-05-14&hour_height=58
func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	q := r.URL.Query()
	ref, err := s.parseDate(q.Get("date"), now)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return
	}
	hourHeight, err := s.parseHourHeight(q.Get("hour_height"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid hour_height")
		return
	}

	cols := s.layout(hourHeight).Week(s.snap.All(), ref)
	resp := weekResponse{
		Start:      calendar.StartOfWeek(ref).Format(dateLayout),
		HourHeight: hourHeight,
		Hours:      hourLabels(),
		Days:       make([]dayColumnView, len(cols)),
	}
	for i, c := range cols {
		today := calendar.IsToday(c.Date, now)
		resp.Days[i] = dayColumnView{
			Date:    c.Date.Format(dateLayout),
			IsToday: today,
			Events:  toViews(c.Events),
		}
		if today {
			off := calendar.CurrentTimeOffset(now)
			resp.NowOffset = &off
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type dayResponse struct {
	Date       string           `json:"date"`
	HourHeight float64          `json:"hour_height"`
	Hours      []string         `json:"hours"`
	Events     []positionedView `json:"events"`
	// NowOffset (percent) and NowTop (pixels) are set only for today.
	NowOffset *float64 `json:"now_offset,omitempty"`
	NowTop    *float64 `json:"now_top,omitempty"`
	// Pick is the snapped time under the at= offset, when one was given.
	Pick *pickView `json:"pick,omitempty"`
}

type pickView struct {
	Time  time.Time `json:"time"`
	Value string    `json:"value"`
	Label string    `json:"label"`
	Top   float64   `json:"top"`
}

// handleDay lays out a single day. With at=<px> it also resolves that grid
// offset to the nearest selectable time.
//
// GET /api/day?date=2025-05-14&hour_height=58&at=530
func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	q := r.URL.Query()
	day, err := s.parseDate(q.Get("date"), now)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return
	}
	hourHeight, err := s.parseHourHeight(q.Get("hour_height"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid hour_height")
		return
	}

	layout := s.layout(hourHeight)
	resp := dayResponse{
		Date:       day.Format(dateLayout),
		HourHeight: hourHeight,
		Hours:      hourLabels(),
		Events:     toViews(layout.Day(s.snap.All(), day)),
	}
	if v := q.Get("at"); v != "" {
		offset, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(offset) || math.IsInf(offset, 0) {
			writeError(w, http.StatusBadRequest, "invalid at")
			return
		}
		picked, top := layout.TimeAt(day, offset, s.cfg.Layout.SlotMinutes)
		resp.Pick = &pickView{
			Time:  picked,
			Value: picked.Format("15:04"),
			Label: calendar.FormatTime(picked),
			Top:   top,
		}
	}
	if calendar.IsToday(day, now) {
		off := calendar.CurrentTimeOffset(now)
		top := float64(now.Hour()*60+now.Minute()) / 60 * hourHeight
		resp.NowOffset = &off
		resp.NowTop = &top
	}
	writeJSON(w, http.StatusOK, resp)
}

type timeSlotsResponse struct {
	Quantum int                 `json:"quantum"`
	Slots   []calendar.TimeSlot `json:"slots"`
}

// handleTimeSlots lists selectable times of day from an optional start.
// When nothing is left before midnight the full day is returned.
//
// GET /api/timeslots?from=14:07&quantum=15
func (s *Server) handleTimeSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	quantum, err := parseIntDefault(q.Get("quantum"), s.cfg.Layout.SlotMinutes)
	if err != nil || quantum <= 0 || 60%quantum != 0 {
		writeError(w, http.StatusBadRequest, "invalid quantum, must divide 60")
		return
	}

	slots := calendar.TimeSlots(quantum)
	if from := q.Get("from"); from != "" {
		start, err := calendar.ParseClock(s.now(), from)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from, want HH:MM")
			return
		}
		if rest := calendar.TimeSlotsFrom(start, quantum); len(rest) > 0 {
			slots = rest
		}
	}
	writeJSON(w, http.StatusOK, timeSlotsResponse{Quantum: quantum, Slots: slots})
}

type pomodoroMode struct {
	Mode    pomodoro.Mode `json:"mode"`
	Minutes int           `json:"minutes"`
	Display string        `json:"display"`
}

type pomodoroState struct {
	Mode             pomodoro.Mode `json:"mode"`
	Running          bool          `json:"running"`
	Done             bool          `json:"done"`
	Remaining        string        `json:"remaining"`
	RemainingSeconds int64         `json:"remaining_seconds"`
	Progress         float64       `json:"progress"`
}

type pomodoroResponse struct {
	Modes []pomodoroMode `json:"modes"`
	Timer pomodoroState  `json:"timer"`
}

// handlePomodoro returns the configured mode lengths and the timer state.
func (s *Server) handlePomodoro(w http.ResponseWriter, _ *http.Request) {
	p := s.cfg.Pomodoro
	settings := pomodoro.SettingsFromMinutes(p.Pomodoro, p.ShortBreak, p.LongBreak)

	modes := []pomodoro.Mode{pomodoro.ModePomodoro, pomodoro.ModeShortBreak, pomodoro.ModeLongBreak}
	resp := pomodoroResponse{Modes: make([]pomodoroMode, 0, len(modes))}
	for _, m := range modes {
		d := settings.Length(m)
		resp.Modes = append(resp.Modes, pomodoroMode{
			Mode:    m,
			Minutes: int(d / time.Minute),
			Display: pomodoro.Format(d),
		})
	}

	s.timerMu.Lock()
	resp.Timer = s.timerState(s.clock.Now())
	s.timerMu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

// handlePomodoroAction starts, pauses or resets the timer.
//
// POST /api/pomodoro/start
func (s *Server) handlePomodoroAction(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()

	s.timerMu.Lock()
	switch mux.Vars(r)["action"] {
	case "start":
		s.timer.Start(now)
	case "pause":
		s.timer.Pause(now)
	case "reset":
		s.timer.Reset()
	}
	state := s.timerState(now)
	s.timerMu.Unlock()

	writeJSON(w, http.StatusOK, state)
}

// handlePomodoroMode switches mode, which also resets the countdown.
//
// POST /api/pomodoro/mode?mode=shortBreak
func (s *Server) handlePomodoroMode(w http.ResponseWriter, r *http.Request) {
	mode, err := pomodoro.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid mode")
		return
	}

	s.timerMu.Lock()
	s.timer.SetMode(mode)
	state := s.timerState(s.clock.Now())
	s.timerMu.Unlock()

	writeJSON(w, http.StatusOK, state)
}

// timerState must be called with timerMu held.
func (s *Server) timerState(now time.Time) pomodoroState {
	left := s.timer.Remaining(now)
	return pomodoroState{
		Mode:             s.timer.Mode(),
		Running:          s.timer.Running(),
		Done:             s.timer.Done(now),
		Remaining:        pomodoro.Format(left),
		RemainingSeconds: int64(left / time.Second),
		Progress:         s.timer.Progress(now),
	}
}

type refreshResponse struct {
	Sources    int       `json:"sources"`
	Failed     int       `json:"failed"`
	Events     int       `json:"events"`
	DurationMs int64     `json:"duration_ms"`
	Completed  time.Time `json:"completed"`
}

// handleRefresh runs one refresh pass synchronously.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		writeError(w, http.StatusServiceUnavailable, "refresh not available")
		return
	}

	res, err := s.refresh.RunOnce(r.Context())
	if err != nil {
		appLog.Error("api refresh failed", err, "request_id", RequestID(r.Context()))
		if errors.Is(err, refresh.ErrNoSources) {
			writeError(w, http.StatusServiceUnavailable, "no ICS sources configured")
			return
		}
		writeError(w, http.StatusBadGateway, "refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		Sources:    res.Sources,
		Failed:     res.Failed,
		Events:     res.Events,
		DurationMs: res.Duration.Milliseconds(),
		Completed:  res.Completed,
	})
}

// handleICS re-publishes the merged snapshot as a single calendar.
func (s *Server) handleICS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ics.Export(s.snap.All(), s.clock.Now())))
}

// parseDate reads YYYY-MM-DD in the display zone; empty means today.
func (s *Server) parseDate(v string, now time.Time) (time.Time, error) {
	if v == "" {
		return calendar.StartOfDay(now), nil
	}
	return time.ParseInLocation(dateLayout, v, s.loc)
}

func (s *Server) parseHourHeight(v string) (float64, error) {
	if v == "" {
		return s.cfg.Layout.HourHeight, nil
	}
	h, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(h) || math.IsInf(h, 0) || h <= 0 {
		return 0, errors.New("hour height must be a positive number")
	}
	return h, nil
}

func hourLabels() []string {
	out := make([]string, 24)
	for h := range out {
		out[h] = calendar.HourLabel(h)
	}
	return out
}

func parseIntDefault(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
