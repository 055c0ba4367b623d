package interval

import (
	"math/rand"
	"testing"
	"time"
)

var base = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return base.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func iv(h1, m1, h2, m2 int) Interval {
	return Interval{Start: at(h1, m1), End: at(h2, m2)}
}

func equalSets(a, b []Interval) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) || !a[i].End.Equal(b[i].End) {
			return false
		}
	}
	return true
}

func TestMerge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []Interval
		want []Interval
	}{
		{name: "empty", in: nil, want: []Interval{}},
		{name: "overlapping", in: []Interval{iv(9, 30, 11, 0), iv(9, 0, 10, 0)}, want: []Interval{iv(9, 0, 11, 0)}},
		{name: "touching", in: []Interval{iv(9, 0, 10, 0), iv(10, 0, 11, 0)}, want: []Interval{iv(9, 0, 11, 0)}},
		{name: "disjoint", in: []Interval{iv(13, 0, 14, 0), iv(9, 0, 10, 0)}, want: []Interval{iv(9, 0, 10, 0), iv(13, 0, 14, 0)}},
		{name: "contained", in: []Interval{iv(9, 0, 17, 0), iv(10, 0, 11, 0)}, want: []Interval{iv(9, 0, 17, 0)}},
		{name: "drops_empty", in: []Interval{iv(9, 0, 9, 0), iv(12, 0, 11, 0)}, want: []Interval{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Merge(tc.in); !equalSets(got, tc.want) {
				t.Fatalf("Merge() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMerge_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := []Interval{iv(11, 0, 12, 0), iv(9, 0, 10, 0)}
	_ = Merge(in)
	if !in[0].Start.Equal(at(11, 0)) {
		t.Fatalf("input was reordered: %v", in)
	}
}

func TestInvert(t *testing.T) {
	t.Parallel()

	merged := []Interval{iv(9, 0, 10, 0), iv(12, 0, 13, 0)}
	got := Invert(merged, at(9, 0), at(17, 0))
	want := []Interval{iv(10, 0, 12, 0), iv(13, 0, 17, 0)}
	if !equalSets(got, want) {
		t.Fatalf("Invert() = %v, want %v", got, want)
	}

	if got := Invert(nil, at(9, 0), at(17, 0)); !equalSets(got, []Interval{iv(9, 0, 17, 0)}) {
		t.Fatalf("Invert(empty) = %v", got)
	}
	if got := Invert([]Interval{iv(8, 0, 18, 0)}, at(9, 0), at(17, 0)); len(got) != 0 {
		t.Fatalf("expected no gaps, got %v", got)
	}
	if got := Invert(nil, at(9, 0), at(9, 0)); len(got) != 0 {
		t.Fatalf("expected no gaps for empty bound, got %v", got)
	}
}

func TestSubtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		busy []Interval
		cuts []Interval
		want []Interval
	}{
		{
			name: "hole_in_middle",
			busy: []Interval{iv(9, 0, 13, 0)},
			cuts: []Interval{iv(10, 0, 12, 0)},
			want: []Interval{iv(9, 0, 10, 0), iv(12, 0, 13, 0)},
		},
		{
			name: "cut_spans_many_busy",
			busy: []Interval{iv(9, 0, 10, 0), iv(11, 0, 12, 0), iv(15, 0, 16, 0)},
			cuts: []Interval{iv(9, 30, 11, 30)},
			want: []Interval{iv(9, 0, 9, 30), iv(11, 30, 12, 0), iv(15, 0, 16, 0)},
		},
		{
			name: "busy_spans_many_cuts",
			busy: []Interval{iv(9, 0, 17, 0)},
			cuts: []Interval{iv(10, 0, 11, 0), iv(12, 0, 13, 0), iv(16, 0, 18, 0)},
			want: []Interval{iv(9, 0, 10, 0), iv(11, 0, 12, 0), iv(13, 0, 16, 0)},
		},
		{
			name: "fully_covered",
			busy: []Interval{iv(10, 0, 11, 0)},
			cuts: []Interval{iv(9, 0, 12, 0)},
			want: []Interval{},
		},
		{
			name: "no_cuts",
			busy: []Interval{iv(10, 0, 11, 0)},
			cuts: nil,
			want: []Interval{iv(10, 0, 11, 0)},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Subtract(tc.busy, tc.cuts); !equalSets(got, tc.want) {
				t.Fatalf("Subtract() = %v, want %v", got, tc.want)
			}
		})
	}
}

func randomIntervals(rnd *rand.Rand, n int) []Interval {
	out := make([]Interval, 0, n)
	for i := 0; i < n; i++ {
		s := rnd.Intn(24 * 60)
		l := rnd.Intn(180)
		out = append(out, Interval{
			Start: base.Add(time.Duration(s) * time.Minute),
			End:   base.Add(time.Duration(s+l) * time.Minute),
		})
	}
	return out
}

func covered(ivs []Interval, minute int) bool {
	p := base.Add(time.Duration(minute) * time.Minute)
	for _, iv := range ivs {
		if !p.Before(iv.Start) && p.Before(iv.End) {
			return true
		}
	}
	return false
}

func TestMerge_Properties(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		in := randomIntervals(rnd, rnd.Intn(12))
		out := Merge(in)

		for i := 1; i < len(out); i++ {
			if !out[i-1].End.Before(out[i].Start) {
				t.Fatalf("round %d: intervals %v and %v touch or overlap", round, out[i-1], out[i])
			}
		}
		for m := 0; m < 28*60; m++ {
			if covered(in, m) != covered(out, m) {
				t.Fatalf("round %d: coverage differs at minute %d", round, m)
			}
		}
	}
}

func TestInvert_ComplementLaw(t *testing.T) {
	t.Parallel()

	lower, upper := at(9, 0), at(17, 0)
	rnd := rand.New(rand.NewSource(11))
	for round := 0; round < 200; round++ {
		var clipped []Interval
		for _, raw := range randomIntervals(rnd, rnd.Intn(10)) {
			if c, ok := Clip(raw, lower, upper); ok {
				clipped = append(clipped, c)
			}
		}
		merged := Merge(clipped)
		gaps := Invert(merged, lower, upper)

		for _, g := range gaps {
			if g.Empty() {
				t.Fatalf("round %d: zero-length gap %v", round, g)
			}
		}
		union := Merge(append(append([]Interval{}, merged...), gaps...))
		if len(union) != 1 || !union[0].Start.Equal(lower) || !union[0].End.Equal(upper) {
			t.Fatalf("round %d: union %v does not cover bound exactly", round, union)
		}
		if Total(merged)+Total(gaps) != upper.Sub(lower) {
			t.Fatalf("round %d: busy and gaps overlap", round)
		}
	}
}

func TestSubtract_Idempotent(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewSource(23))
	for round := 0; round < 200; round++ {
		busy := Merge(randomIntervals(rnd, rnd.Intn(10)))
		cuts := Merge(randomIntervals(rnd, rnd.Intn(6)))

		once := Subtract(busy, cuts)
		twice := Subtract(once, cuts)
		if !equalSets(once, twice) {
			t.Fatalf("round %d: subtract not idempotent: %v vs %v", round, once, twice)
		}
		for m := 0; m < 28*60; m++ {
			want := covered(busy, m) && !covered(cuts, m)
			if covered(once, m) != want {
				t.Fatalf("round %d: minute %d coverage mismatch", round, m)
			}
		}
	}
}

func TestClip(t *testing.T) {
	t.Parallel()

	got, ok := Clip(iv(8, 0, 10, 0), at(9, 0), at(17, 0))
	if !ok || !got.Start.Equal(at(9, 0)) || !got.End.Equal(at(10, 0)) {
		t.Fatalf("Clip() = %v, %v", got, ok)
	}
	if _, ok := Clip(iv(7, 0, 8, 0), at(9, 0), at(17, 0)); ok {
		t.Fatalf("expected interval outside bound to be dropped")
	}
}
