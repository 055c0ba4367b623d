package availability

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"freecal/internal/model"
)

func TestWorkWindow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		w          WorkWindow
		valid      bool
		span       int
		start, end time.Time
	}{
		{w: WorkWindow{9, 17}, valid: true, span: 8, start: at(4, 9, 0), end: at(4, 17, 0)},
		{w: WorkWindow{0, 24}, valid: true, span: 24, start: at(4, 0, 0), end: at(5, 0, 0)},
		{w: WorkWindow{22, 2}, valid: true, span: 4, start: at(4, 22, 0), end: at(5, 2, 0)},
		{w: WorkWindow{12, 12}, valid: true, span: 0, start: at(4, 12, 0), end: at(4, 12, 0)},
		{w: WorkWindow{24, 24}, valid: false},
		{w: WorkWindow{-1, 5}, valid: false},
		{w: WorkWindow{8, 25}, valid: false},
	}
	for _, tt := range tests {
		err := tt.w.Validate()
		if tt.valid != (err == nil) {
			t.Errorf("%s: Validate() = %v", tt.w, err)
		}
		if !tt.valid {
			if !errors.Is(err, ErrInvalidWindow) {
				t.Errorf("%s: error %v does not wrap ErrInvalidWindow", tt.w, err)
			}
			continue
		}
		if got := tt.w.SpanHours(); got != tt.span {
			t.Errorf("%s: span %d, want %d", tt.w, got, tt.span)
		}
		ws, we := tt.w.Bounds(at(4, 15, 30), time.UTC)
		if !ws.Equal(tt.start) || !we.Equal(tt.end) {
			t.Errorf("%s: bounds %s..%s, want %s..%s", tt.w, ws, we, tt.start, tt.end)
		}
	}
}

func TestParseOverrideScope(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]OverrideScope{"": ScopeGroup, "group": ScopeGroup, " Source ": ScopeSource} {
		got, err := ParseOverrideScope(in)
		if err != nil || got != want {
			t.Errorf("ParseOverrideScope(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseOverrideScope("everyone"); err == nil {
		t.Error("expected error for unknown scope")
	}
}

func TestStatsJSONKeepsChronologicalOrder(t *testing.T) {
	t.Parallel()

	stats := Compute(Input{
		Sources:  []model.Source{alice},
		Range:    DayRange(time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), time.UTC),
		Window:   DefaultWindow,
		Location: time.UTC,
	})

	data, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(data)
	dates := []string{"2024-02-28", "2024-02-29", "2024-03-01", "2024-03-02"}
	last := -1
	for _, d := range dates {
		idx := strings.Index(body, `"`+d+`":`)
		if idx <= last {
			t.Fatalf("key %s out of order in %s", d, body)
		}
		last = idx
	}

	var back Stats
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := back.Keys(); strings.Join(got, ",") != strings.Join(dates, ",") {
		t.Fatalf("keys after round trip = %v", got)
	}
	if d, ok := back.Get("2024-02-29"); !ok || d.TotalMinutes != 480 || len(d.PerPerson) != 1 {
		t.Fatalf("decoded day = %+v", d)
	}
}

func TestMemo(t *testing.T) {
	t.Parallel()

	in := Input{
		Events:   []model.Event{event(alice, "Standup", at(4, 9, 0), at(4, 10, 0))},
		Sources:  []model.Source{alice},
		Range:    oneDay(4),
		Window:   DefaultWindow,
		Location: time.UTC,
	}
	memo := NewMemo(1)

	first := memo.Compute(in)
	again := memo.Compute(in)
	if hits, misses := memo.Counters(); hits != 1 || misses != 1 {
		t.Fatalf("counters = %d hits %d misses", hits, misses)
	}
	if first.Len() != again.Len() {
		t.Fatalf("cached stats differ")
	}

	changed := in
	changed.Window = WorkWindow{StartHour: 8, EndHour: 18}
	d := mustDay(t, memo.Compute(changed), "2024-03-04")
	if d.TotalMinutes != 600 {
		t.Fatalf("changed window served from cache: %d", d.TotalMinutes)
	}

	// size 1: the first entry was evicted.
	memo.Compute(in)
	if hits, misses := memo.Counters(); hits != 1 || misses != 3 {
		t.Fatalf("counters after eviction = %d hits %d misses", hits, misses)
	}

	memo.Reset()
	memo.Compute(in)
	if _, misses := memo.Counters(); misses != 4 {
		t.Fatalf("reset did not clear entries")
	}
}

func TestInputKeyDistinguishesSelection(t *testing.T) {
	t.Parallel()

	base := Input{Sources: []model.Source{alice, bob}, Range: oneDay(4), Window: DefaultWindow, Location: time.UTC}
	all := base
	none := base
	none.Active = map[string]bool{}
	onlyA := base
	onlyA.Active = map[string]bool{"a": true, "b": false}
	onlyA2 := base
	onlyA2.Active = map[string]bool{"a": true}

	if InputKey(all) == InputKey(none) {
		t.Error("nil and empty selections must differ")
	}
	if InputKey(onlyA) != InputKey(onlyA2) {
		t.Error("false entries must not change the key")
	}
}

func TestInputKeyFarDates(t *testing.T) {
	t.Parallel()

	// 2^64ns apart: identical UnixNano values after wraparound.
	early := time.Date(1000, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early
	for range 4 {
		late = late.Add(time.Duration(1 << 62))
	}
	if early.UnixNano() != late.UnixNano() {
		t.Skip("UnixNano did not wrap on this platform")
	}

	a := Input{Range: Range{Start: early, End: early}, Window: DefaultWindow, Location: time.UTC}
	b := Input{Range: Range{Start: late, End: late}, Window: DefaultWindow, Location: time.UTC}
	if InputKey(a) == InputKey(b) {
		t.Fatalf("ranges %s and %s share a memo key", early, late)
	}
}

func TestFitRange(t *testing.T) {
	t.Parallel()

	if _, ok := FitRange(nil, time.UTC); ok {
		t.Fatal("empty event list should not fit")
	}

	r, ok := FitRange([]model.Event{
		event(alice, "late", at(9, 22, 0), at(10, 0, 0)),
		event(bob, "early", at(4, 9, 0), at(4, 10, 0)),
	}, time.UTC)
	if !ok {
		t.Fatal("expected a range")
	}
	if !r.Start.Equal(at(4, 0, 0)) {
		t.Errorf("start = %s", r.Start)
	}
	if got := r.End.Format(DateLayout); got != "2024-03-09" {
		t.Errorf("end day = %s, an end at midnight belongs to the previous day", got)
	}
}
