// Package refresh keeps the latest loaded calendar set in memory and
// reloads it on a cron schedule.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "freecal/internal/log"
	"freecal/internal/source"
)

// LoadFunc produces a fresh calendar set.
type LoadFunc func(ctx context.Context) source.Set

// Refresher owns the current snapshot. Snapshots are replaced wholesale
// and never mutated after publication.
type Refresher struct {
	load LoadFunc

	// loadMu serialises loads so a slow refresh is never doubled up.
	loadMu sync.Mutex

	mu   sync.RWMutex
	snap *source.Set

	cron *cron.Cron
}

func New(load LoadFunc) *Refresher {
	return &Refresher{load: load}
}

// Refresh loads synchronously and publishes the result.
func (r *Refresher) Refresh(ctx context.Context) source.Set {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	started := time.Now()
	set := r.load(ctx)
	if set.LoadedAt.IsZero() {
		set.LoadedAt = time.Now()
	}

	r.mu.Lock()
	r.snap = &set
	r.mu.Unlock()

	appLog.Info("refresh completed", "sources", len(set.Sources), "events", len(set.Events), "warnings", len(set.Warnings), "took", time.Since(started).String())
	return set
}

// Snapshot returns the last published set. ok is false before the first
// refresh.
func (r *Refresher) Snapshot() (source.Set, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.snap == nil {
		return source.Set{}, false
	}
	return *r.snap, true
}

// Start schedules Refresh on spec (standard five-field cron) until ctx is
// done. It does not run an initial refresh.
func (r *Refresher) Start(ctx context.Context, spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", spec, err)
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() { r.Refresh(ctx) }); err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}
	r.cron = c
	c.Start()
	appLog.Info("refresh scheduled", "cron", spec)

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		appLog.Debug("refresh scheduler stopped")
	}()
	return nil
}

// Next reports the next scheduled run, if any.
func (r *Refresher) Next() (time.Time, bool) {
	if r.cron == nil {
		return time.Time{}, false
	}
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}, false
	}
	return entries[0].Next, true
}
