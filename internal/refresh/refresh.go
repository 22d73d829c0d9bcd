// Package refresh pulls the configured ICS feeds into the event snapshot,
// once on demand or on a cron schedule.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"canopy/internal/config"
	"canopy/internal/ics"
	appLog "canopy/internal/log"
	"canopy/internal/model"
	"canopy/internal/store"
)

// ErrNoSources is returned by RunOnce when no feed has a URL.
var ErrNoSources = errors.New("refresh: no ICS sources configured")

// Fetcher is the part of ics.Fetcher the refresher needs.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, []error)
}

// Result summarizes one refresh pass.
type Result struct {
	Sources   int
	Failed    int
	Events    int
	Duration  time.Duration
	Completed time.Time
}

// Refresher runs fetch -> parse -> replace.
type Refresher struct {
	sources []ics.Source
	loc     *time.Location
	fetcher Fetcher
	snap    *store.Snapshot
	now     func() time.Time

	// Serializes passes so a slow fetch and a manual trigger do not race.
	runMu sync.Mutex
}

// New builds a Refresher for cfg's feeds, parsing times into loc.
func New(cfg *config.Config, loc *time.Location, fetcher Fetcher, snap *store.Snapshot) *Refresher {
	return &Refresher{
		sources: Sources(cfg),
		loc:     loc,
		fetcher: fetcher,
		snap:    snap,
		now:     time.Now,
	}
}

// Sources converts configured feeds into ics sources, skipping entries
// without a URL.
func Sources(cfg *config.Config) []ics.Source {
	out := make([]ics.Source, 0, len(cfg.ICS))
	for _, c := range cfg.ICS {
		if c.URL == "" {
			continue
		}
		out = append(out, ics.Source{ID: c.ID, URL: c.URL, UserID: c.UserID, Color: c.Color})
	}
	return out
}

// RunOnce fetches and parses every feed and replaces the snapshot. A feed
// that fails is logged and left out; if every feed fails the snapshot is
// kept as is and an error is returned.
func (r *Refresher) RunOnce(ctx context.Context) (Result, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	started := r.now()
	res := Result{Sources: len(r.sources)}
	if len(r.sources) == 0 {
		return res, ErrNoSources
	}

	fetched, fetchErrs := r.fetcher.FetchAll(ctx, r.sources)
	res.Failed = len(fetchErrs)
	if len(fetched) == 0 {
		return res, fmt.Errorf("refresh: all %d sources failed: %w", len(r.sources), errors.Join(fetchErrs...))
	}

	events := make([]model.CalendarEvent, 0)
	for _, f := range fetched {
		parsed, err := ics.Parse(f.Source, f.Body, r.loc)
		if err != nil {
			res.Failed++
			appLog.Error("refresh: parse failed for source", err, "id", f.Source.ID)
			continue
		}
		events = append(events, parsed...)
	}
	if res.Failed == res.Sources {
		return res, errors.New("refresh: no source produced events")
	}

	res.Completed = r.now()
	r.snap.Replace(events, res.Completed)
	res.Events = r.snap.Len()
	res.Duration = res.Completed.Sub(started)

	appLog.Info("refresh completed",
		"sources", res.Sources,
		"failed", res.Failed,
		"events", res.Events,
		"duration", res.Duration,
	)
	return res, nil
}

// Start runs RunOnce immediately and then on schedule until ctx is cancelled.
// It returns once the schedule is installed.
func (r *Refresher) Start(ctx context.Context, schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	})
	if err != nil {
		return fmt.Errorf("refresh: invalid schedule %q: %w", schedule, err)
	}

	if _, err := r.RunOnce(ctx); err != nil {
		appLog.Error("initial refresh failed", err)
	}

	c.Start()
	appLog.Info("refresh scheduled", "cron", schedule)

	go func() {
		<-ctx.Done()
		stopped := c.Stop()
		<-stopped.Done()
		appLog.Info("refresh scheduler stopped")
	}()
	return nil
}
