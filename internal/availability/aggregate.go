package availability

import (
	"cmp"
	"math"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"freecal/internal/interval"
	"freecal/internal/model"
)

// Compute builds one DayStat per local calendar day of in.Range. It is a
// pure function of in; days are computed concurrently and independently.
//
// The group union covers active, non-overlay sources. Free-override events
// never count as busy; they cut busy time according to in.Scope. Every
// active non-overlay source from in.Sources gets a per-person entry, fully
// free when it has nothing scheduled that day. Events whose source id is
// missing from in.Sources are aggregated but never synthesized.
func Compute(in Input) Stats {
	if in.Location == nil {
		in.Location = time.Local
	}
	if in.Scope == "" {
		in.Scope = ScopeGroup
	}
	days := calendarDays(in.Range, in.Location)
	if len(days) == 0 {
		return newStats(nil)
	}

	agg := newAggregator(in)
	out := make([]DayStat, len(days))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, day := range days {
		g.Go(func() error {
			out[i] = agg.day(day)
			return nil
		})
	}
	_ = g.Wait()

	return newStats(out)
}

type aggregator struct {
	in      Input
	byDay   map[string][]int
	overlay map[string]bool
	names   map[string]string
}

func newAggregator(in Input) *aggregator {
	a := &aggregator{
		in:      in,
		byDay:   make(map[string][]int),
		overlay: make(map[string]bool),
		names:   make(map[string]string, len(in.Sources)),
	}
	for id, on := range in.Overlay {
		if on {
			a.overlay[id] = true
		}
	}
	for _, src := range in.Sources {
		a.names[src.ID] = cmp.Or(src.Name, src.ID)
		if src.Overlay {
			a.overlay[src.ID] = true
		}
	}
	for i, ev := range in.Events {
		if ev.IsRecurring() {
			continue
		}
		for _, seg := range SplitByDay(ev.Start, ev.End, in.Location) {
			a.byDay[seg.Date] = append(a.byDay[seg.Date], i)
		}
	}
	return a
}

func (a *aggregator) active(id string) bool {
	return a.in.Active == nil || a.in.Active[id]
}

func (a *aggregator) displayName(ev model.Event) string {
	if name, ok := a.names[ev.SourceID]; ok {
		return name
	}
	return cmp.Or(ev.SourceName, ev.SourceID)
}

type person struct {
	id, name string
	busy     []interval.Interval
	cuts     []interval.Interval
}

func (a *aggregator) day(day time.Time) DayStat {
	ws, we := a.in.Window.Bounds(day, a.in.Location)
	total := int(math.Round(we.Sub(ws).Minutes()))

	stat := DayStat{
		Date:         day.Format(DateLayout),
		WindowStart:  ws,
		WindowEnd:    we,
		TotalMinutes: total,
		MergedBusy:   []interval.Interval{},
		PerPerson:    []PersonStat{},
		Titles:       []Item{},
	}

	var groupBusy, groupCuts, overlayBusy []interval.Interval
	people := make(map[string]*person)

	if total > 0 {
		seen := make(map[int]bool)
		for _, key := range dayKeys(ws, we, a.in.Location) {
			for _, idx := range a.byDay[key] {
				if seen[idx] {
					continue
				}
				seen[idx] = true

				ev := a.in.Events[idx]
				if !a.active(ev.SourceID) {
					continue
				}
				clipped, ok := interval.Clip(interval.Interval{Start: ev.Start, End: ev.End}, ws, we)
				if !ok {
					continue
				}

				item := Item{
					SourceID:     ev.SourceID,
					SourceName:   a.displayName(ev),
					Summary:      ev.Summary,
					Start:        clipped.Start,
					End:          clipped.End,
					AllDay:       ev.AllDay,
					Urgent:       ev.Urgent,
					FreeOverride: ev.FreeOverride,
					Overlay:      a.overlay[ev.SourceID],
				}
				stat.Titles = append(stat.Titles, item)
				if item.Urgent {
					stat.HasUrgent = true
				}
				if item.Overlay {
					stat.OverlayItems = append(stat.OverlayItems, item)
					overlayBusy = append(overlayBusy, clipped)
					continue
				}

				p := people[ev.SourceID]
				if p == nil {
					p = &person{id: ev.SourceID, name: item.SourceName}
					people[ev.SourceID] = p
				}
				if ev.FreeOverride {
					p.cuts = append(p.cuts, clipped)
					groupCuts = append(groupCuts, clipped)
				} else {
					p.busy = append(p.busy, clipped)
					groupBusy = append(groupBusy, clipped)
				}
			}
		}
	}

	var sourceBusy []interval.Interval
	for _, p := range people {
		busy := interval.Subtract(interval.Merge(p.busy), interval.Merge(p.cuts))
		sourceBusy = append(sourceBusy, busy...)
		stat.PerPerson = append(stat.PerPerson, personStat(p.id, p.name, busy, ws, we, total))
	}
	for _, src := range a.in.Sources {
		if _, ok := people[src.ID]; ok || !a.active(src.ID) || a.overlay[src.ID] {
			continue
		}
		stat.PerPerson = append(stat.PerPerson, personStat(src.ID, a.names[src.ID], []interval.Interval{}, ws, we, total))
	}

	switch a.in.Scope {
	case ScopeSource:
		stat.MergedBusy = interval.Merge(sourceBusy)
	default:
		stat.MergedBusy = interval.Subtract(interval.Merge(groupBusy), interval.Merge(groupCuts))
	}
	if len(overlayBusy) > 0 {
		stat.OverlayBusy = interval.Merge(overlayBusy)
	}
	stat.BusyMinutes = minutes(interval.Total(stat.MergedBusy), total)
	stat.FreeMinutes = total - stat.BusyMinutes
	stat.FreeRatio = ratio(stat.FreeMinutes, total)

	slices.SortFunc(stat.PerPerson, func(x, y PersonStat) int {
		return cmp.Or(
			strings.Compare(strings.ToLower(x.SourceName), strings.ToLower(y.SourceName)),
			strings.Compare(x.SourceID, y.SourceID),
		)
	})
	sortItems(stat.Titles)
	sortItems(stat.OverlayItems)

	return stat
}

func personStat(id, name string, busy []interval.Interval, ws, we time.Time, total int) PersonStat {
	busyMin := minutes(interval.Total(busy), total)
	return PersonStat{
		SourceID:    id,
		SourceName:  name,
		BusyMinutes: busyMin,
		FreeMinutes: total - busyMin,
		FreeRatio:   ratio(total-busyMin, total),
		MergedBusy:  busy,
		FreeBlocks:  interval.Invert(busy, ws, we),
	}
}

func sortItems(items []Item) {
	slices.SortStableFunc(items, func(x, y Item) int {
		return cmp.Or(
			x.Start.Compare(y.Start),
			strings.Compare(x.SourceName, y.SourceName),
			strings.Compare(x.Summary, y.Summary),
		)
	})
}

// calendarDays returns local midnights from the day of r.Start through the
// day of r.End.
func calendarDays(r Range, loc *time.Location) []time.Time {
	if r.End.Before(r.Start) {
		return nil
	}
	sy, sm, sd := r.Start.In(loc).Date()
	ey, em, ed := r.End.In(loc).Date()
	last := time.Date(ey, em, ed, 0, 0, 0, 0, loc)

	var days []time.Time
	for i := 0; ; i++ {
		day := time.Date(sy, sm, sd+i, 0, 0, 0, 0, loc)
		if day.After(last) {
			return days
		}
		days = append(days, day)
	}
}
