package model

import (
	"regexp"
	"strings"
	"time"
)

// DefaultDuration is applied when an event has no usable end or duration.
const DefaultDuration = 30 * time.Minute

var freeWord = regexp.MustCompile(`(?i)\bfree\b`)

// Source is a named calendar whose events take part in aggregation.
type Source struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Overlay sources (e.g. a standing broadcast schedule) are shown next
	// to the group but never counted in the group union.
	Overlay bool `json:"overlay,omitempty"`
}

// Recurrence is a not-yet-expanded recurring definition.
type Recurrence struct {
	// RRule is the raw RRULE value, e.g. "FREQ=WEEKLY;BYDAY=MO".
	RRule string

	// DTStart anchors the rule.
	DTStart time.Time

	// Duration of each occurrence; zero means none was defined.
	Duration time.Duration

	ExDates []time.Time
	RDates  []time.Time
}

// Event is one scheduled item from one source, either concrete
// (Start/End set, Recurrence nil) or a recurring definition.
type Event struct {
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name"`
	UID        string `json:"uid"`

	Summary string `json:"summary"`

	// Urgent and FreeOverride are derived from Summary by Tag and never
	// recomputed downstream.
	Urgent       bool `json:"urgent"`
	FreeOverride bool `json:"free_override"`

	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"all_day"`

	Recurrence *Recurrence `json:"-"`

	// RecurrenceID is set on a concrete event that replaces one instance
	// of a recurring definition with the same UID.
	RecurrenceID *time.Time `json:"-"`
}

// IsRecurring reports whether the event still needs expansion.
func (e Event) IsRecurring() bool {
	return e.Recurrence != nil
}

// Tag derives the urgency and free-override flags from the summary.
func Tag(e *Event) {
	e.Urgent = IsUrgent(e.Summary)
	e.FreeOverride = IsFreeOverride(e.Summary)
}

// IsUrgent reports whether a title marks an event as urgent.
func IsUrgent(summary string) bool {
	return strings.Contains(summary, "!")
}

// IsFreeOverride reports whether a title carves out free time.
func IsFreeOverride(summary string) bool {
	return freeWord.MatchString(summary)
}

// NewEvent builds a tagged concrete event. A missing or inverted end falls
// back to DefaultDuration.
func NewEvent(src Source, uid, summary string, start, end time.Time, allDay bool) Event {
	if end.IsZero() || end.Before(start) {
		end = start.Add(DefaultDuration)
	}
	ev := Event{
		SourceID:   src.ID,
		SourceName: src.Name,
		UID:        uid,
		Summary:    summary,
		Start:      start,
		End:        end,
		AllDay:     allDay,
	}
	Tag(&ev)
	return ev
}

// NewRecurringEvent builds a tagged recurring definition.
func NewRecurringEvent(src Source, uid, summary string, rec Recurrence, allDay bool) Event {
	ev := Event{
		SourceID:   src.ID,
		SourceName: src.Name,
		UID:        uid,
		Summary:    summary,
		Start:      rec.DTStart,
		AllDay:     allDay,
		Recurrence: &rec,
	}
	if rec.Duration > 0 {
		ev.End = rec.DTStart.Add(rec.Duration)
	} else {
		ev.End = rec.DTStart.Add(DefaultDuration)
	}
	Tag(&ev)
	return ev
}

// Occurrence returns a concrete copy of a recurring definition at the
// given instant. Tags are carried over unchanged.
func (e Event) Occurrence(start, end time.Time) Event {
	occ := e
	occ.Start = start
	occ.End = end
	occ.Recurrence = nil
	return occ
}
