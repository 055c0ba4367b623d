package interval

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns End-Start, or zero for empty/inverted intervals.
func (iv Interval) Duration() time.Duration {
	if !iv.End.After(iv.Start) {
		return 0
	}
	return iv.End.Sub(iv.Start)
}

// Empty reports whether the interval has no positive length.
func (iv Interval) Empty() bool {
	return !iv.End.After(iv.Start)
}

// Overlaps reports whether two half-open intervals share any instant.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Clip restricts iv to [lo, hi). The second result is false when nothing
// of positive length remains.
func Clip(iv Interval, lo, hi time.Time) (Interval, bool) {
	out := iv
	if out.Start.Before(lo) {
		out.Start = lo
	}
	if out.End.After(hi) {
		out.End = hi
	}
	if out.Empty() {
		return Interval{}, false
	}
	return out, true
}

// Total sums the durations of the given intervals.
func Total(ivs []Interval) time.Duration {
	var sum time.Duration
	for _, iv := range ivs {
		sum += iv.Duration()
	}
	return sum
}

// Merge returns the minimal sorted set of disjoint intervals covering the
// input. Touching intervals are joined. Empty intervals are dropped and the
// input slice is left untouched.
func Merge(ivs []Interval) []Interval {
	if len(ivs) == 0 {
		return []Interval{}
	}

	sorted := make([]Interval, 0, len(ivs))
	for _, iv := range ivs {
		if iv.Empty() {
			continue
		}
		sorted = append(sorted, iv)
	}
	if len(sorted) == 0 {
		return []Interval{}
	}

	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].Start.Before(sorted[j].Start)
		}
		return sorted[i].End.Before(sorted[j].End)
	})

	out := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Invert returns the gaps of a merged set inside [lower, upper). Every gap
// has positive length.
func Invert(merged []Interval, lower, upper time.Time) []Interval {
	out := []Interval{}
	if !upper.After(lower) {
		return out
	}

	cur := lower
	for _, iv := range merged {
		if !cur.Before(upper) {
			break
		}
		if !iv.End.After(cur) {
			continue
		}
		if iv.Start.After(cur) {
			gapEnd := iv.Start
			if gapEnd.After(upper) {
				gapEnd = upper
			}
			out = append(out, Interval{Start: cur, End: gapEnd})
		}
		if iv.End.After(cur) {
			cur = iv.End
		}
	}
	if cur.Before(upper) {
		out = append(out, Interval{Start: cur, End: upper})
	}
	return out
}

// Subtract removes every range covered by cuts from busy. Both inputs must
// already be merged.
func Subtract(busy, cuts []Interval) []Interval {
	out := []Interval{}
	if len(busy) == 0 {
		return out
	}
	if len(cuts) == 0 {
		return append(out, busy...)
	}

	j := 0
	for _, b := range busy {
		cur := b.Start

		// cuts ending at or before this busy block cannot affect later ones either
		for j < len(cuts) && !cuts[j].End.After(b.Start) {
			j++
		}

		for k := j; k < len(cuts) && cuts[k].Start.Before(b.End); k++ {
			c := cuts[k]
			if c.Start.After(cur) {
				out = append(out, Interval{Start: cur, End: c.Start})
			}
			if c.End.After(cur) {
				cur = c.End
			}
			if !cur.Before(b.End) {
				break
			}
		}

		if cur.Before(b.End) {
			out = append(out, Interval{Start: cur, End: b.End})
		}
	}
	return out
}
