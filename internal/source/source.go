// Package source turns configured calendars into parsed events.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"freecal/internal/config"
	"freecal/internal/ics"
	appLog "freecal/internal/log"
	"freecal/internal/model"
)

// Set is the outcome of loading every configured calendar. Events still
// contain unexpanded recurring definitions.
type Set struct {
	Sources  []model.Source
	Events   []model.Event
	Active   map[string]bool
	Warnings []string
	LoadedAt time.Time
}

// Loader reads calendars over HTTP, from disk and from CalDAV.
type Loader struct {
	fetcher  *ics.Fetcher
	caldav   *ics.CalDAVLoader
	location *time.Location
}

func NewLoader(fetcher *ics.Fetcher, caldav *ics.CalDAVLoader, loc *time.Location) *Loader {
	if loc == nil {
		loc = time.Local
	}
	return &Loader{fetcher: fetcher, caldav: caldav, location: loc}
}

type loaded struct {
	sources []model.Source
	events  []model.Event
	errs    []error
}

// LoadAll loads every calendar concurrently. A failing calendar becomes a
// warning and is left out of Sources; the others are unaffected. from and
// to bound CalDAV queries only.
func (l *Loader) LoadAll(ctx context.Context, cals []config.CalendarConfig, from, to time.Time) Set {
	results := make([]loaded, len(cals))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, cal := range cals {
		g.Go(func() error {
			results[i] = l.load(gctx, cal, from, to)
			return nil
		})
	}
	_ = g.Wait()

	set := Set{Active: make(map[string]bool), LoadedAt: time.Now()}
	for i, res := range results {
		for _, err := range res.errs {
			appLog.Error("calendar load failed", err, "id", cals[i].ID)
			set.Warnings = append(set.Warnings, err.Error())
		}
		for _, src := range res.sources {
			set.Sources = append(set.Sources, src)
			if cals[i].IsActive() {
				set.Active[src.ID] = true
			}
		}
		set.Events = append(set.Events, res.events...)
	}

	appLog.Info("calendars loaded", "calendars", len(cals), "sources", len(set.Sources), "events", len(set.Events), "warnings", len(set.Warnings))
	return set
}

func (l *Loader) load(ctx context.Context, cal config.CalendarConfig, from, to time.Time) loaded {
	src := model.Source{ID: cal.ID, Name: cal.Name, Overlay: cal.Overlay}

	switch {
	case cal.URL != "":
		if l.fetcher == nil {
			return failed(fmt.Errorf("calendar %s: no fetcher configured", cal.ID))
		}
		res, err := l.fetcher.Fetch(ctx, ics.Feed{Source: src, URL: cal.URL})
		if err != nil {
			return failed(fmt.Errorf("calendar %s: %w", cal.ID, err))
		}
		events, err := ics.ParseICS(src, res.Body, l.location)
		if err != nil {
			return failed(fmt.Errorf("calendar %s: %w", cal.ID, err))
		}
		return loaded{sources: []model.Source{src}, events: events}

	case cal.Path != "":
		info, err := os.Stat(cal.Path)
		if err != nil {
			return failed(fmt.Errorf("calendar %s: %w", cal.ID, err))
		}
		if info.IsDir() {
			return l.loadDir(cal)
		}
		events, err := LoadFile(src, cal.Path, l.location)
		if err != nil {
			return failed(fmt.Errorf("calendar %s: %w", cal.ID, err))
		}
		return loaded{sources: []model.Source{src}, events: events}

	case cal.CalDAV != nil:
		if l.caldav == nil {
			return failed(fmt.Errorf("calendar %s: no caldav loader configured", cal.ID))
		}
		events, err := l.caldav.Load(ctx, ics.Collection{
			Source:   src,
			Endpoint: cal.CalDAV.Endpoint,
			Username: cal.CalDAV.Username,
			Password: cal.CalDAV.Password,
			Calendar: cal.CalDAV.Calendar,
		}, from, to)
		if err != nil {
			return failed(fmt.Errorf("calendar %s: %w", cal.ID, err))
		}
		return loaded{sources: []model.Source{src}, events: events}
	}

	return failed(fmt.Errorf("calendar %s: no url, path or caldav set", cal.ID))
}

// loadDir turns every .ics file of a directory into its own source named
// after the file.
func (l *Loader) loadDir(cal config.CalendarConfig) loaded {
	entries, err := os.ReadDir(cal.Path)
	if err != nil {
		return failed(fmt.Errorf("calendar %s: %w", cal.ID, err))
	}

	var out loaded
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".ics") {
			continue
		}
		name := FileSourceName(entry.Name())
		src := model.Source{ID: cal.ID + "/" + name, Name: name, Overlay: cal.Overlay}
		events, err := LoadFile(src, filepath.Join(cal.Path, entry.Name()), l.location)
		if err != nil {
			out.errs = append(out.errs, fmt.Errorf("calendar %s: %w", src.ID, err))
			continue
		}
		out.sources = append(out.sources, src)
		out.events = append(out.events, events...)
	}
	slices.SortFunc(out.sources, func(a, b model.Source) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// LoadFile parses one .ics file as the events of src.
func LoadFile(src model.Source, path string, loc *time.Location) ([]model.Event, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ics.ParseICS(src, body, loc)
}

// FileSourceName is the display name of a file-backed source.
func FileSourceName(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func failed(err error) loaded {
	return loaded{errs: []error{err}}
}
