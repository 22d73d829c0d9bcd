// Package pomodoro models the focus timer: three modes with configurable
// lengths and a countdown that can be started, paused and reset. The timer
// never reads the clock itself; every transition takes the current instant.
package pomodoro

import (
	"fmt"
	"time"
)

type Mode string

const (
	ModePomodoro   Mode = "pomodoro"
	ModeShortBreak Mode = "shortBreak"
	ModeLongBreak  Mode = "longBreak"
)

// ParseMode accepts the three mode names.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePomodoro, ModeShortBreak, ModeLongBreak:
		return Mode(s), nil
	}
	return "", fmt.Errorf("pomodoro: unknown mode %q", s)
}

// Settings are the mode lengths.
type Settings struct {
	Pomodoro   time.Duration `json:"pomodoro"`
	ShortBreak time.Duration `json:"short_break"`
	LongBreak  time.Duration `json:"long_break"`
}

// DefaultSettings is 25/5/15 minutes.
func DefaultSettings() Settings {
	return Settings{
		Pomodoro:   25 * time.Minute,
		ShortBreak: 5 * time.Minute,
		LongBreak:  15 * time.Minute,
	}
}

// SettingsFromMinutes builds Settings from whole minutes; non-positive
// values keep the default for that mode.
func SettingsFromMinutes(pomodoro, short, long int) Settings {
	s := DefaultSettings()
	if pomodoro > 0 {
		s.Pomodoro = time.Duration(pomodoro) * time.Minute
	}
	if short > 0 {
		s.ShortBreak = time.Duration(short) * time.Minute
	}
	if long > 0 {
		s.LongBreak = time.Duration(long) * time.Minute
	}
	return s
}

// Length returns the configured length of m.
func (s Settings) Length(m Mode) time.Duration {
	switch m {
	case ModeShortBreak:
		return s.ShortBreak
	case ModeLongBreak:
		return s.LongBreak
	default:
		return s.Pomodoro
	}
}

// Timer is a countdown for one mode.
type Timer struct {
	settings Settings
	mode     Mode

	// left is the remaining time as of startedAt (or now, when paused).
	left      time.Duration
	running   bool
	startedAt time.Time
}

// NewTimer returns a paused timer in pomodoro mode.
func NewTimer(s Settings) *Timer {
	t := &Timer{settings: s, mode: ModePomodoro}
	t.Reset()
	return t
}

func (t *Timer) Mode() Mode { return t.mode }

func (t *Timer) Running() bool { return t.running }

// SetMode switches mode and resets the countdown.
func (t *Timer) SetMode(m Mode) {
	t.mode = m
	t.Reset()
}

// SetSettings changes the lengths and resets the countdown.
func (t *Timer) SetSettings(s Settings) {
	t.settings = s
	t.Reset()
}

// Reset stops the timer and restores the full length of the current mode.
func (t *Timer) Reset() {
	t.running = false
	t.startedAt = time.Time{}
	t.left = t.settings.Length(t.mode)
}

// Start resumes the countdown at now. Starting a running or finished timer
// does nothing.
func (t *Timer) Start(now time.Time) {
	if t.running || t.left <= 0 {
		return
	}
	t.running = true
	t.startedAt = now
}

// Pause freezes the remaining time at now.
func (t *Timer) Pause(now time.Time) {
	if !t.running {
		return
	}
	t.left = t.Remaining(now)
	t.running = false
	t.startedAt = time.Time{}
}

// Remaining is the time left at now, never negative.
func (t *Timer) Remaining(now time.Time) time.Duration {
	left := t.left
	if t.running {
		left -= now.Sub(t.startedAt)
	}
	if left < 0 {
		return 0
	}
	return left
}

// Done reports whether the countdown has reached zero.
func (t *Timer) Done(now time.Time) bool {
	return t.Remaining(now) == 0
}

// Progress is the remaining share of the mode length in percent.
func (t *Timer) Progress(now time.Time) float64 {
	total := t.settings.Length(t.mode)
	if total <= 0 {
		return 0
	}
	return float64(t.Remaining(now)) / float64(total) * 100
}

// Format renders d as "MM:SS", rounding partial seconds up so a running
// timer shows 00:00 only when it is actually done.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
