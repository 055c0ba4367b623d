package availability

import "time"

// Segment is the part of an interval that falls on one local calendar day.
type Segment struct {
	Date  string
	Start time.Time
	End   time.Time
}

// SplitByDay cuts [start, end) at every local midnight in loc. Empty or
// inverted intervals yield nothing.
func SplitByDay(start, end time.Time, loc *time.Location) []Segment {
	if !end.After(start) {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}

	var segs []Segment
	cursor := start
	for cursor.Before(end) {
		local := cursor.In(loc)
		y, m, d := local.Date()
		segEnd := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
		if end.Before(segEnd) {
			segEnd = end
		}
		segs = append(segs, Segment{Date: local.Format(DateLayout), Start: cursor, End: segEnd})
		cursor = segEnd
	}
	return segs
}

// dayKeys lists the local dates touched by [start, end), end excluded.
func dayKeys(start, end time.Time, loc *time.Location) []string {
	if !end.After(start) {
		return []string{start.In(loc).Format(DateLayout)}
	}
	segs := SplitByDay(start, end, loc)
	keys := make([]string, 0, len(segs))
	for _, s := range segs {
		keys = append(keys, s.Date)
	}
	return keys
}
