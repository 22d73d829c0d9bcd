package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen       = "127.0.0.1:8080"
	defaultTimezone     = "Local"
	defaultRefreshCron  = "*/15 * * * *"
	defaultHourHeight   = 58
	defaultMinHeight    = 24
	defaultSlotMinutes  = 15
	defaultCacheDir     = "/var/lib/canopy/ics-cache"
	defaultEventColor   = "#55CBCD"
	defaultRatePerSec   = 10
	defaultRateBurst    = 20
	defaultPomodoroMins = 25
	defaultShortMins    = 5
	defaultLongMins     = 15
)

// ICSConfig describes a single ICS subscription feeding the calendar.
type ICSConfig struct {
	// ID is an internal identifier used for de-dup, event ids and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// UserID is stamped on every event imported from this feed.
	UserID string `yaml:"user_id" json:"user_id"`
	// Color is used for events that carry no COLOR property of their own.
	Color string `yaml:"color" json:"color"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// LayoutConfig controls the hour grid used by the day and week views.
type LayoutConfig struct {
	// HourHeight is the pixel height of one hour row.
	HourHeight float64 `yaml:"hour_height" json:"hour_height"`
	// MinEventHeight keeps very short events visible.
	MinEventHeight float64 `yaml:"min_event_height" json:"min_event_height"`
	// SlotMinutes is the quantum of selectable start/end times. Must divide 60.
	SlotMinutes int `yaml:"slot_minutes" json:"slot_minutes"`
	// IncludeSpanningEvents shows events that started on an earlier day on
	// their continuation days as well.
	IncludeSpanningEvents bool `yaml:"include_spanning_events" json:"include_spanning_events"`
}

// LogConfig controls the application logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`
	// File, when set, switches output from stderr to a rotated file.
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
}

// RateLimitConfig is a per-client token bucket for the HTTP API.
// PerSecond <= 0 disables limiting.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second" json:"per_second"`
	Burst     int     `yaml:"burst" json:"burst"`
}

// PomodoroConfig holds the timer lengths in minutes.
type PomodoroConfig struct {
	Pomodoro   int `yaml:"pomodoro" json:"pomodoro"`
	ShortBreak int `yaml:"short_break" json:"short_break"`
	LongBreak  int `yaml:"long_break" json:"long_break"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone in which calendar days are computed
	// (e.g. "Asia/Seoul"). "Local" uses the host zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron schedule (e.g. "*/15 * * * *") for refetching
	// the ICS feeds.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheDir holds the per-feed HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Layout    LayoutConfig    `yaml:"layout" json:"layout"`
	Log       LogConfig       `yaml:"log" json:"log"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Pomodoro  PomodoroConfig  `yaml:"pomodoro" json:"pomodoro"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values so that partially-filled configs
// still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}

	if c.Layout.HourHeight <= 0 {
		c.Layout.HourHeight = defaultHourHeight
	}
	if c.Layout.MinEventHeight <= 0 {
		c.Layout.MinEventHeight = defaultMinHeight
	}
	if c.Layout.SlotMinutes <= 0 || 60%c.Layout.SlotMinutes != 0 {
		c.Layout.SlotMinutes = defaultSlotMinutes
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = 28
	}

	if c.RateLimit.PerSecond == 0 {
		c.RateLimit.PerSecond = defaultRatePerSec
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = defaultRateBurst
	}

	if c.Pomodoro.Pomodoro <= 0 {
		c.Pomodoro.Pomodoro = defaultPomodoroMins
	}
	if c.Pomodoro.ShortBreak <= 0 {
		c.Pomodoro.ShortBreak = defaultShortMins
	}
	if c.Pomodoro.LongBreak <= 0 {
		c.Pomodoro.LongBreak = defaultLongMins
	}

	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	for i := range c.ICS {
		src := &c.ICS[i]
		if src.ID == "" {
			switch {
			case src.Name != "":
				src.ID = src.Name
			default:
				src.ID = src.URL
			}
		}
		if src.Color == "" {
			src.Color = defaultEventColor
		}
	}
}

// Location resolves Timezone. An unknown zone is an error so a typo is not
// silently rendered in the wrong zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is read, unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".canopy-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
