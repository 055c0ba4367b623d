// Package report runs availability queries over a loaded calendar set and
// renders the result for terminals and JSON consumers.
package report

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"freecal/internal/availability"
	"freecal/internal/ics"
	"freecal/internal/model"
	"freecal/internal/source"
)

// ErrRangeTooLong is returned for queries spanning more than MaxDays.
var ErrRangeTooLong = errors.New("date range too long")

// Request describes one availability query.
type Request struct {
	// From and To are calendar days, inclusive, read in Location.
	From, To time.Time

	Window availability.WorkWindow

	// Sources restricts the active selection; empty keeps the set's own.
	Sources []string

	Scope          availability.OverrideScope
	Location       *time.Location
	MaxOccurrences int

	// Fit replaces From/To with the days covering every concrete event.
	Fit bool

	// MaxDays bounds the number of days, after Fit. Zero means no limit.
	MaxDays int
}

// Result is the payload served by /api/availability and `freecal report`.
type Result struct {
	Range    availability.Range      `json:"range"`
	Window   availability.WorkWindow `json:"window"`
	Timezone string                  `json:"timezone"`
	Warnings []string                `json:"warnings"`
	Sources  []model.Source          `json:"sources"`
	Days     availability.Stats      `json:"days"`
}

// Build expands recurring events over the requested days and aggregates
// them. memo may be nil.
func Build(set source.Set, req Request, memo *availability.Memo) (Result, error) {
	if err := req.Window.Validate(); err != nil {
		return Result{}, err
	}
	loc := req.Location
	if loc == nil {
		loc = time.Local
	}

	rng := availability.DayRange(req.From, req.To, loc)
	if req.Fit {
		if fit, ok := availability.FitRange(set.Events, loc); ok {
			rng = fit
		}
	}
	if rng.End.Before(rng.Start) {
		return Result{}, fmt.Errorf("range %s..%s is inverted", req.From.Format(availability.DateLayout), req.To.Format(availability.DateLayout))
	}
	if err := CheckRange(rng, req.MaxDays); err != nil {
		return Result{}, err
	}
	warnings := slices.Clone(set.Warnings)
	if warnings == nil {
		warnings = []string{}
	}

	// An overnight window on the last day reaches into the next one.
	expanded := ics.ExpandAll(set.Events, ics.ExpandConfig{
		DisplayLocation:        loc,
		RangeStart:             rng.Start,
		RangeEnd:               rng.End.Add(24 * time.Hour),
		MaxOccurrencesPerEvent: req.MaxOccurrences,
	})
	if len(expanded.Failed) > 0 {
		warnings = append(warnings, fmt.Sprintf("%d recurring events could not be expanded: %s", len(expanded.Failed), strings.Join(expanded.Failed, ", ")))
	}

	active := set.Active
	if len(req.Sources) > 0 {
		active = make(map[string]bool, len(req.Sources))
		known := make(map[string]bool, len(set.Sources))
		for _, s := range set.Sources {
			known[s.ID] = true
		}
		for _, id := range req.Sources {
			if !known[id] {
				warnings = append(warnings, fmt.Sprintf("unknown source %q", id))
			}
			active[id] = true
		}
	}

	in := availability.Input{
		Events:   expanded.Events,
		Sources:  set.Sources,
		Active:   active,
		Range:    rng,
		Window:   req.Window,
		Location: loc,
		Scope:    req.Scope,
	}
	var stats availability.Stats
	if memo != nil {
		stats = memo.Compute(in)
	} else {
		stats = availability.Compute(in)
	}

	sources := set.Sources
	if sources == nil {
		sources = []model.Source{}
	}
	return Result{
		Range:    rng,
		Window:   req.Window,
		Timezone: loc.String(),
		Warnings: warnings,
		Sources:  sources,
		Days:     stats,
	}, nil
}

// CheckRange rejects ranges covering more than maxDays calendar days.
// maxDays <= 0 disables the check.
func CheckRange(rng availability.Range, maxDays int) error {
	if maxDays <= 0 {
		return nil
	}
	if n := rng.Days(); n > maxDays {
		return fmt.Errorf("%w: %s..%s covers %d days, limit is %d", ErrRangeTooLong,
			rng.Start.Format(availability.DateLayout), rng.End.Format(availability.DateLayout), n, maxDays)
	}
	return nil
}

// ParseDay reads a YYYY-MM-DD day in loc; empty yields def.
func ParseDay(s string, loc *time.Location, def time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	t, err := time.ParseInLocation(availability.DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

// SplitList splits a comma-separated id list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
