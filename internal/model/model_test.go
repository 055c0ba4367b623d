package model

import (
	"testing"
	"time"
)

func TestTagging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		summary string
		urgent  bool
		free    bool
	}{
		{summary: "Free", free: true},
		{summary: "free time", free: true},
		{summary: "FREE!", urgent: true, free: true},
		{summary: "Freestyle session"},
		{summary: "Carefree lunch"},
		{summary: "Deadline!", urgent: true},
		{summary: "Standup"},
	}

	for _, tc := range tests {
		t.Run(tc.summary, func(t *testing.T) {
			t.Parallel()
			ev := NewEvent(Source{ID: "a"}, "uid", tc.summary, time.Now(), time.Now().Add(time.Hour), false)
			if ev.Urgent != tc.urgent {
				t.Fatalf("urgent = %v, want %v", ev.Urgent, tc.urgent)
			}
			if ev.FreeOverride != tc.free {
				t.Fatalf("free override = %v, want %v", ev.FreeOverride, tc.free)
			}
		})
	}
}

func TestNewEvent_DefaultsMissingEnd(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	ev := NewEvent(Source{ID: "a", Name: "Alice"}, "uid", "Sync", start, time.Time{}, false)
	if !ev.End.Equal(start.Add(DefaultDuration)) {
		t.Fatalf("end = %v, want start+30m", ev.End)
	}
	if ev.SourceName != "Alice" {
		t.Fatalf("source name not carried: %q", ev.SourceName)
	}
}

func TestOccurrence_KeepsTags(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	def := NewRecurringEvent(Source{ID: "a"}, "uid", "Free!", Recurrence{RRule: "FREQ=DAILY", DTStart: start}, false)
	if !def.IsRecurring() {
		t.Fatalf("expected recurring definition")
	}

	occ := def.Occurrence(start.Add(24*time.Hour), start.Add(25*time.Hour))
	if occ.IsRecurring() {
		t.Fatalf("occurrence must be concrete")
	}
	if !occ.Urgent || !occ.FreeOverride {
		t.Fatalf("tags lost on occurrence: %+v", occ)
	}
}
