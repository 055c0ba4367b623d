// Package availability measures how free a group of calendar sources is,
// day by day, inside a working-hours window.
package availability

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"freecal/internal/interval"
	"freecal/internal/model"
)

// ErrInvalidWindow is returned by WorkWindow.Validate.
var ErrInvalidWindow = errors.New("invalid work window")

// DateLayout is the key format of Stats.
const DateLayout = "2006-01-02"

// WorkWindow is the daily working-hours window. EndHour < StartHour wraps
// past midnight; StartHour == EndHour is an empty window.
type WorkWindow struct {
	StartHour int `json:"start" yaml:"start"`
	EndHour   int `json:"end" yaml:"end"`
}

// DefaultWindow is 09:00-17:00.
var DefaultWindow = WorkWindow{StartHour: 9, EndHour: 17}

func (w WorkWindow) Validate() error {
	if w.StartHour < 0 || w.StartHour > 23 {
		return fmt.Errorf("%w: start hour %d not in [0,23]", ErrInvalidWindow, w.StartHour)
	}
	if w.EndHour < 0 || w.EndHour > 24 {
		return fmt.Errorf("%w: end hour %d not in [0,24]", ErrInvalidWindow, w.EndHour)
	}
	return nil
}

// Overnight reports whether the window ends on the following day.
func (w WorkWindow) Overnight() bool {
	return w.EndHour < w.StartHour
}

// SpanHours is the nominal window length in hours.
func (w WorkWindow) SpanHours() int {
	switch {
	case w.EndHour > w.StartHour:
		return w.EndHour - w.StartHour
	case w.EndHour == w.StartHour:
		return 0
	default:
		return ((w.EndHour - w.StartHour) + 24) % 24
	}
}

// Bounds returns [ws, we) for the calendar day of day in loc. Wall-clock
// hours are resolved with time.Date, so DST days get their real length.
func (w WorkWindow) Bounds(day time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := day.In(loc).Date()
	ws := time.Date(y, m, d, w.StartHour, 0, 0, 0, loc)
	switch {
	case w.EndHour == w.StartHour:
		return ws, ws
	case w.Overnight():
		return ws, time.Date(y, m, d+1, w.EndHour, 0, 0, 0, loc)
	default:
		return ws, time.Date(y, m, d, w.EndHour, 0, 0, 0, loc)
	}
}

func (w WorkWindow) String() string {
	return fmt.Sprintf("%02d:00-%02d:00", w.StartHour, w.EndHour)
}

// Range is an inclusive query range. Days are taken from the local date of
// Start through the local date of End.
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DayRange returns the range covering whole local days from..to.
func DayRange(from, to time.Time, loc *time.Location) Range {
	fy, fm, fd := from.In(loc).Date()
	ty, tm, td := to.In(loc).Date()
	return Range{
		Start: time.Date(fy, fm, fd, 0, 0, 0, 0, loc),
		End:   time.Date(ty, tm, td+1, 0, 0, 0, 0, loc).Add(-time.Nanosecond),
	}
}

// Days counts the calendar days the range touches, in the zone of Start.
// Spans beyond roughly 290 years saturate.
func (r Range) Days() int {
	fy, fm, fd := r.Start.Date()
	ty, tm, td := r.End.In(r.Start.Location()).Date()
	from := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	to := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from)/(24*time.Hour)) + 1
}

// OverrideScope decides whose busy time a free-override event cancels.
type OverrideScope string

const (
	// ScopeGroup subtracts every source's overrides from the group union.
	ScopeGroup OverrideScope = "group"
	// ScopeSource lets an override free only its own source.
	ScopeSource OverrideScope = "source"
)

// ParseOverrideScope accepts "group", "source" or "" (group).
func ParseOverrideScope(s string) (OverrideScope, error) {
	switch OverrideScope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeGroup:
		return ScopeGroup, nil
	case ScopeSource:
		return ScopeSource, nil
	}
	return "", fmt.Errorf("unknown override scope %q", s)
}

// Input is everything one computation depends on. Events must already be
// concrete; run recurring definitions through ics.ExpandAll first.
type Input struct {
	Events  []model.Event
	Sources []model.Source

	// Active selects contributing source ids. Nil means every source.
	Active map[string]bool

	Range    Range
	Window   WorkWindow
	Location *time.Location

	// Overlay marks extra source ids as excluded from the group union, on
	// top of Source.Overlay.
	Overlay map[string]bool

	Scope OverrideScope
}

// Item is one event clipped to a day's work window.
type Item struct {
	SourceID     string    `json:"source_id"`
	SourceName   string    `json:"source_name"`
	Summary      string    `json:"summary"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	AllDay       bool      `json:"all_day"`
	Urgent       bool      `json:"urgent"`
	FreeOverride bool      `json:"free_override"`
	Overlay      bool      `json:"overlay,omitempty"`
}

// PersonStat is the breakdown for one source on one day.
type PersonStat struct {
	SourceID    string              `json:"source_id"`
	SourceName  string              `json:"source_name"`
	BusyMinutes int                 `json:"busy_minutes"`
	FreeMinutes int                 `json:"free_minutes"`
	FreeRatio   float64             `json:"free_ratio"`
	MergedBusy  []interval.Interval `json:"merged_busy"`
	FreeBlocks  []interval.Interval `json:"free_blocks"`
}

// DayStat is the availability of one calendar date.
type DayStat struct {
	Date         string              `json:"date"`
	WindowStart  time.Time           `json:"window_start"`
	WindowEnd    time.Time           `json:"window_end"`
	TotalMinutes int                 `json:"total_minutes"`
	BusyMinutes  int                 `json:"busy_minutes"`
	FreeMinutes  int                 `json:"free_minutes"`
	FreeRatio    float64             `json:"free_ratio"`
	MergedBusy   []interval.Interval `json:"merged_busy"`
	PerPerson    []PersonStat        `json:"per_person"`
	Titles       []Item              `json:"titles"`
	HasUrgent    bool                `json:"has_urgent"`
	OverlayItems []Item              `json:"overlay_items,omitempty"`
	// OverlayBusy is the merged span of OverlayItems; not part of BusyMinutes.
	OverlayBusy  []interval.Interval `json:"overlay_busy,omitempty"`
}

// minutes rounds d to whole minutes and clamps it into [0, total].
func minutes(d time.Duration, total int) int {
	m := int(math.Round(d.Minutes()))
	return max(0, min(m, total))
}

func ratio(free, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(free) / float64(total)
}
