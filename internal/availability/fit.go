package availability

import (
	"time"

	"freecal/internal/model"
)

// FitRange returns the whole-day range covering every concrete event. ok is
// false when there is nothing to cover.
func FitRange(events []model.Event, loc *time.Location) (r Range, ok bool) {
	if loc == nil {
		loc = time.Local
	}
	var first, last time.Time
	for _, ev := range events {
		if ev.IsRecurring() {
			continue
		}
		if !ok || ev.Start.Before(first) {
			first = ev.Start
		}
		end := ev.End
		if end.After(ev.Start) {
			// An end at midnight belongs to the previous day.
			end = end.Add(-time.Nanosecond)
		}
		if !ok || end.After(last) {
			last = end
		}
		ok = true
	}
	if !ok {
		return Range{}, false
	}
	return DayRange(first, last, loc), true
}
