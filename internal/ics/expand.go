package ics

import (
	"fmt"
	"iter"
	"runtime"
	"sort"
	"time"

	"github.com/teambition/rrule-go"
	"golang.org/x/sync/errgroup"

	appLog "freecal/internal/log"
	"freecal/internal/model"
)

const (
	// DefaultMaxOccurrences caps how many occurrences of one recurring
	// definition are evaluated. Expansion stops silently at the cap.
	DefaultMaxOccurrences = 5000
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the zone occurrences are converted to. If nil,
	// time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd define the inclusive time window.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent is the per-definition cap. Zero means
	// DefaultMaxOccurrences.
	MaxOccurrencesPerEvent int
}

// ExpandResult is the flat list of concrete events inside the range.
type ExpandResult struct {
	Events []model.Event

	// Failed lists UIDs whose recurrence rule could not be iterated. Those
	// definitions contributed nothing; everything else was expanded.
	Failed []string
}

// ExpandAll turns a mix of concrete events and recurring definitions into
// concrete events intersecting the range. Definitions are expanded
// independently and in parallel. Concrete events carrying a RECURRENCE-ID
// replace the matching instance of their master.
func ExpandAll(events []model.Event, cfg ExpandConfig) ExpandResult {
	var result ExpandResult
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = DefaultMaxOccurrences
	}
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result
	}

	replaced := make(map[string]bool)
	masters := make([]model.Event, 0)
	for _, ev := range events {
		if ev.IsRecurring() {
			masters = append(masters, ev)
			continue
		}
		if ev.RecurrenceID != nil {
			replaced[instanceKey(ev.SourceID, ev.UID, *ev.RecurrenceID)] = true
		}
		if inRange(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
			result.Events = append(result.Events, inLocation(ev, cfg.DisplayLocation))
		}
	}

	expanded := make([][]model.Event, len(masters))
	failed := make([]bool, len(masters))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, master := range masters {
		g.Go(func() error {
			if _, err := newRuleSet(master.Recurrence); err != nil {
				appLog.Error("expand: failed to parse RRULE", err, "uid", master.UID, "source", master.SourceID, "rrule", master.Recurrence.RRule)
				failed[i] = true
				return nil
			}
			for occ := range Occurrences(master, cfg.RangeStart, cfg.RangeEnd, cfg.MaxOccurrencesPerEvent) {
				if replaced[instanceKey(master.SourceID, master.UID, occ.Start)] {
					continue
				}
				expanded[i] = append(expanded[i], inLocation(occ, cfg.DisplayLocation))
			}
			return nil
		})
	}
	_ = g.Wait()

	for i := range masters {
		result.Events = append(result.Events, expanded[i]...)
		if failed[i] {
			result.Failed = append(result.Failed, masters[i].UID)
		}
	}

	sort.SliceStable(result.Events, func(i, j int) bool {
		return result.Events[i].Start.Before(result.Events[j].Start)
	})
	return result
}

// Occurrences lazily yields the concrete occurrences of a recurring
// definition that intersect [rangeStart, rangeEnd].
//
// Occurrences ending before rangeStart are skipped, the first one starting
// after rangeEnd ends the sequence, and at most limit occurrences are
// evaluated (skipped ones included). A malformed rule yields nothing. The
// sequence can be ranged over any number of times; each pass restarts the
// rule from its DTSTART.
func Occurrences(ev model.Event, rangeStart, rangeEnd time.Time, limit int) iter.Seq[model.Event] {
	return func(yield func(model.Event) bool) {
		if ev.Recurrence == nil {
			return
		}
		if limit <= 0 {
			limit = DefaultMaxOccurrences
		}

		set, err := newRuleSet(ev.Recurrence)
		if err != nil {
			return
		}

		duration := ev.Recurrence.Duration
		if duration <= 0 {
			duration = model.DefaultDuration
		}

		next := set.Iterator()
		for evaluated := 0; evaluated < limit; evaluated++ {
			start, ok := next()
			if !ok {
				return
			}
			end := start.Add(duration)

			if end.Before(rangeStart) {
				continue
			}
			if start.After(rangeEnd) {
				return
			}
			if !yield(ev.Occurrence(start, end)) {
				return
			}
		}
	}
}

func newRuleSet(rec *model.Recurrence) (*rrule.Set, error) {
	if rec == nil {
		return nil, fmt.Errorf("no recurrence")
	}

	opt, err := rrule.StrToROptionInLocation(rec.RRule, rec.DTStart.Location())
	if err != nil {
		return nil, fmt.Errorf("parse rrule %q: %w", rec.RRule, err)
	}
	opt.Dtstart = rec.DTStart

	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("build rrule %q: %w", rec.RRule, err)
	}

	set := &rrule.Set{}
	set.RRule(rule)
	for _, ex := range rec.ExDates {
		set.ExDate(ex.In(rec.DTStart.Location()))
	}
	for _, rd := range rec.RDates {
		set.RDate(rd.In(rec.DTStart.Location()))
	}
	return set, nil
}

func inRange(start, end, rangeStart, rangeEnd time.Time) bool {
	return !end.Before(rangeStart) && !start.After(rangeEnd)
}

func inLocation(ev model.Event, loc *time.Location) model.Event {
	ev.Start = ev.Start.In(loc)
	ev.End = ev.End.In(loc)
	return ev
}

func instanceKey(sourceID, uid string, start time.Time) string {
	return sourceID + "|" + uid + "|" + start.UTC().Format(time.RFC3339Nano)
}
