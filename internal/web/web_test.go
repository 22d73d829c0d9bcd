package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canopy/internal/clock"
	"canopy/internal/config"
	"canopy/internal/model"
	"canopy/internal/refresh"
	"canopy/internal/store"
)

var testNow = time.Date(2025, time.May, 14, 10, 30, 0, 0, time.UTC)

func event(id int64, name string, start time.Time, d time.Duration) model.CalendarEvent {
	return model.CalendarEvent{ID: id, Name: name, Start: start, End: start.Add(d), Color: "#55CBCD"}
}

func testSnapshot() *store.Snapshot {
	snap := store.New()
	snap.Replace([]model.CalendarEvent{
		event(1, "Standup", time.Date(2025, 5, 14, 9, 0, 0, 0, time.UTC), 90*time.Minute),
		event(2, "Review", time.Date(2025, 5, 14, 10, 0, 0, 0, time.UTC), time.Hour),
		event(3, "Lunch", time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC), time.Hour),
		event(4, "Trip", time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC), 2*time.Hour),
	}, testNow)
	return snap
}

type fakeRefresher struct {
	res refresh.Result
	err error
}

func (f fakeRefresher) RunOnce(context.Context) (refresh.Result, error) {
	return f.res, f.err
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) http.Handler {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	opts = append([]Option{WithClock(clock.NewFixed(testNow))}, opts...)
	s := NewServer(cfg, time.UTC, testSnapshot(), opts...)
	t.Cleanup(s.Close)
	return s.Handler()
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "192.0.2.1:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t, nil), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	h := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health").Code)

	rec := do(t, h, http.MethodGet, "/api/events")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEventsDefaultsToCurrentMonth(t *testing.T) {
	h := newTestServer(t, nil)

	var resp eventsResponse
	rec := do(t, h, http.MethodGet, "/api/events")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, 2025, resp.Year)
	assert.Equal(t, 5, resp.Month)
	require.Len(t, resp.Events, 3)
	assert.Equal(t, "Standup", resp.Events[0].Name)

	rec = do(t, h, http.MethodGet, "/api/events?year=2025&month=6")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, int64(4), resp.Events[0].ID)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/events?month=13").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/events?year=abc").Code)
}

func TestEventByID(t *testing.T) {
	h := newTestServer(t, nil)

	rec := do(t, h, http.MethodGet, "/api/events/3")
	require.Equal(t, http.StatusOK, rec.Code)
	var ev model.CalendarEvent
	decode(t, rec, &ev)
	assert.Equal(t, "Lunch", ev.Name)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/events/99").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/events/abc").Code)
}

func TestMonthGrid(t *testing.T) {
	h := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/api/month?date=2025-05-01")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Month int    `json:"month"`
		Today string `json:"today"`
		Cells []struct {
			Date           time.Time             `json:"date"`
			IsCurrentMonth bool                  `json:"is_current_month"`
			Events         []model.CalendarEvent `json:"events"`
			More           int                   `json:"more"`
		} `json:"cells"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, 5, resp.Month)
	assert.Equal(t, "2025-05-14", resp.Today)
	require.Len(t, resp.Cells, 42)

	// May 2025 starts on a Thursday: four leading April cells.
	assert.False(t, resp.Cells[0].IsCurrentMonth)
	assert.Equal(t, 27, resp.Cells[0].Date.Day())
	may14 := resp.Cells[4+13]
	assert.Equal(t, 14, may14.Date.Day())
	assert.Len(t, may14.Events, 2)
	assert.Equal(t, 0, may14.More)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/month?date=05/01/2025").Code)
}

type viewEvent struct {
	Event     model.CalendarEvent `json:"event"`
	Top       float64             `json:"top"`
	Height    float64             `json:"height"`
	Slot      int                 `json:"slot"`
	SlotCount int                 `json:"slot_count"`
	Width     float64             `json:"width"`
	Left      float64             `json:"left"`
	Label     string              `json:"label"`
}

func TestDayLayout(t *testing.T) {
	h := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/api/day?date=2025-05-14")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		HourHeight float64     `json:"hour_height"`
		Hours      []string    `json:"hours"`
		Events     []viewEvent `json:"events"`
		NowOffset  *float64    `json:"now_offset"`
		NowTop     *float64    `json:"now_top"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, 58.0, resp.HourHeight)
	require.Len(t, resp.Hours, 24)
	assert.Equal(t, "12 AM", resp.Hours[0])

	require.Len(t, resp.Events, 2)
	first := resp.Events[0]
	assert.InDelta(t, 9*58.0, first.Top, 1e-9)
	assert.InDelta(t, 1.5*58.0, first.Height, 1e-9)
	assert.Equal(t, 2, first.SlotCount)
	assert.InDelta(t, 50.0, first.Width, 1e-9)
	assert.InDelta(t, 0.0, first.Left, 1e-9)
	assert.InDelta(t, 50.0, resp.Events[1].Left, 1e-9)
	assert.Equal(t, "9:00 AM - 10:30 AM", first.Label)

	require.NotNil(t, resp.NowOffset)
	assert.InDelta(t, 43.75, *resp.NowOffset, 1e-9)
	require.NotNil(t, resp.NowTop)
	assert.InDelta(t, 10.5*58.0, *resp.NowTop, 1e-9)
}

func TestDayLayoutOtherDayAndHourHeight(t *testing.T) {
	h := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/api/day?date=2025-05-20&hour_height=100")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Events    []viewEvent `json:"events"`
		NowOffset *float64    `json:"now_offset"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.Events, 1)
	assert.InDelta(t, 1200.0, resp.Events[0].Top, 1e-9)
	assert.Nil(t, resp.NowOffset)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/day?hour_height=-1").Code)
}

func TestNonFiniteHourHeightRejected(t *testing.T) {
	h := newTestServer(t, nil)
	for _, path := range []string{"/api/day", "/api/week"} {
		for _, v := range []string{"NaN", "Inf", "-Inf", "%2BInf"} {
			rec := do(t, h, http.MethodGet, path+"?date=2025-04-10&hour_height="+v)
			assert.Equal(t, http.StatusBadRequest, rec.Code, "%s hour_height=%s", path, v)
			assert.Contains(t, rec.Body.String(), "invalid hour_height")
		}
	}
}

func TestDayPickSnapsOffset(t *testing.T) {
	h := newTestServer(t, nil)

	type pickResp struct {
		Pick *struct {
			Value string  `json:"value"`
			Label string  `json:"label"`
			Top   float64 `json:"top"`
		} `json:"pick"`
	}

	var resp pickResp
	rec := do(t, h, http.MethodGet, "/api/day?date=2025-05-20&hour_height=60&at=548")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	require.NotNil(t, resp.Pick)
	assert.Equal(t, "09:15", resp.Pick.Value)
	assert.Equal(t, "9:15 AM", resp.Pick.Label)
	assert.InDelta(t, 555.0, resp.Pick.Top, 1e-9)

	resp = pickResp{}
	rec = do(t, h, http.MethodGet, "/api/day?date=2025-05-20&hour_height=60&at=99999")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	require.NotNil(t, resp.Pick)
	assert.Equal(t, "23:45", resp.Pick.Value)

	resp = pickResp{}
	rec = do(t, h, http.MethodGet, "/api/day?date=2025-05-20")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Nil(t, resp.Pick)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/day?at=NaN").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/day?at=abc").Code)
}

func TestWeekLayout(t *testing.T) {
	h := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/api/week?date=2025-05-15")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Start string `json:"start"`
		Days  []struct {
			Date    string      `json:"date"`
			IsToday bool        `json:"is_today"`
			Events  []viewEvent `json:"events"`
		} `json:"days"`
		NowOffset *float64 `json:"now_offset"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "2025-05-11", resp.Start)
	require.Len(t, resp.Days, 7)
	assert.Equal(t, "2025-05-14", resp.Days[3].Date)
	assert.True(t, resp.Days[3].IsToday)
	assert.Len(t, resp.Days[3].Events, 2)
	assert.Empty(t, resp.Days[0].Events)
	assert.NotNil(t, resp.NowOffset)
}

func TestTimeSlots(t *testing.T) {
	h := newTestServer(t, nil)

	var resp timeSlotsResponse
	rec := do(t, h, http.MethodGet, "/api/timeslots")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Len(t, resp.Slots, 96)

	rec = do(t, h, http.MethodGet, "/api/timeslots?from=14:07")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	require.Len(t, resp.Slots, 40)
	assert.Equal(t, "14:00", resp.Slots[0].Value)
	assert.Equal(t, "2:00 PM", resp.Slots[0].Label)

	rec = do(t, h, http.MethodGet, "/api/timeslots?from=09:40&quantum=30")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, 30, resp.Quantum)
	assert.Equal(t, "09:30", resp.Slots[0].Value)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/timeslots?quantum=7").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/timeslots?from=25:99").Code)
}

func TestPomodoro(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Pomodoro.LongBreak = 20
	rec := do(t, newTestServer(t, cfg), http.MethodGet, "/api/pomodoro")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp pomodoroResponse
	decode(t, rec, &resp)
	require.Len(t, resp.Modes, 3)
	assert.Equal(t, "25:00", resp.Modes[0].Display)
	assert.Equal(t, 5, resp.Modes[1].Minutes)
	assert.Equal(t, 20, resp.Modes[2].Minutes)
}

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func TestPomodoroTimer(t *testing.T) {
	clk := &manualClock{now: testNow}
	h := newTestServer(t, nil, WithClock(clk))

	var state pomodoroState
	rec := do(t, h, http.MethodPost, "/api/pomodoro/start")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &state)
	assert.True(t, state.Running)
	assert.Equal(t, "25:00", state.Remaining)

	clk.now = clk.now.Add(10 * time.Minute)
	var resp pomodoroResponse
	rec = do(t, h, http.MethodGet, "/api/pomodoro")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &resp)
	assert.Equal(t, "15:00", resp.Timer.Remaining)
	assert.InDelta(t, 60.0, resp.Timer.Progress, 1e-9)

	rec = do(t, h, http.MethodPost, "/api/pomodoro/pause")
	decode(t, rec, &state)
	assert.False(t, state.Running)

	clk.now = clk.now.Add(time.Hour)
	rec = do(t, h, http.MethodGet, "/api/pomodoro")
	decode(t, rec, &resp)
	assert.Equal(t, int64(15*60), resp.Timer.RemainingSeconds)

	rec = do(t, h, http.MethodPost, "/api/pomodoro/mode?mode=shortBreak")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &state)
	assert.Equal(t, "shortBreak", string(state.Mode))
	assert.Equal(t, "05:00", state.Remaining)

	do(t, h, http.MethodPost, "/api/pomodoro/start")
	clk.now = clk.now.Add(6 * time.Minute)
	rec = do(t, h, http.MethodGet, "/api/pomodoro")
	decode(t, rec, &resp)
	assert.True(t, resp.Timer.Done)
	assert.Equal(t, "00:00", resp.Timer.Remaining)

	rec = do(t, h, http.MethodPost, "/api/pomodoro/reset")
	decode(t, rec, &state)
	assert.Equal(t, "05:00", state.Remaining)
	assert.False(t, state.Done)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/pomodoro/mode?mode=nap").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/pomodoro/skip").Code)
}

func TestRefresh(t *testing.T) {
	h := newTestServer(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodPost, "/api/refresh").Code)

	ok := fakeRefresher{res: refresh.Result{Sources: 2, Events: 7, Duration: 1500 * time.Millisecond, Completed: testNow}}
	h = newTestServer(t, nil, WithRefresher(ok))
	rec := do(t, h, http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp refreshResponse
	decode(t, rec, &resp)
	assert.Equal(t, 7, resp.Events)
	assert.Equal(t, int64(1500), resp.DurationMs)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/api/refresh").Code)

	h = newTestServer(t, nil, WithRefresher(fakeRefresher{err: refresh.ErrNoSources}))
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodPost, "/api/refresh").Code)

	h = newTestServer(t, nil, WithRefresher(fakeRefresher{err: errors.New("boom")}))
	assert.Equal(t, http.StatusBadGateway, do(t, h, http.MethodPost, "/api/refresh").Code)
}

func TestCalendarExport(t *testing.T) {
	rec := do(t, newTestServer(t, nil), http.MethodGet, "/calendar.ics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/calendar"))
	body := rec.Body.String()
	assert.Contains(t, body, "BEGIN:VCALENDAR")
	assert.Contains(t, body, "SUMMARY:Standup")
	assert.Equal(t, 4, strings.Count(body, "BEGIN:VEVENT"))
}

func TestRateLimit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimit = config.RateLimitConfig{PerSecond: 0.001, Burst: 2}
	h := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/pomodoro").Code, "request %d", i)
	}
	rec := do(t, h, http.MethodGet, "/api/pomodoro")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "too many requests")

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/pomodoro", nil)
	req.RemoteAddr = "192.0.2.1:5000"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "other client has its own bucket")
}

func TestRequestID(t *testing.T) {
	h := newTestServer(t, nil)

	rec := do(t, h, http.MethodGet, "/health")
	_, err := uuid.Parse(rec.Header().Get(requestIDHeader))
	assert.NoError(t, err)

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, id)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEqual(t, "not-a-uuid", rec.Header().Get(requestIDHeader))
}

func TestUnknownRoute(t *testing.T) {
	rec := do(t, newTestServer(t, nil), http.MethodGet, "/api/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not found")
}
