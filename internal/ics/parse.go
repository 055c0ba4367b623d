package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	eical "github.com/emersion/go-ical"

	appLog "freecal/internal/log"
	"freecal/internal/model"
)

// ParseICS parses one ICS payload into tagged events for src.
//
//   - Recurring VEVENTs (RRULE present) become definitions; expansion
//     happens in expand.go.
//   - A VEVENT without DTEND uses DURATION, then one day for all-day
//     events, then model.DefaultDuration.
//   - Floating and date-only values are read in loc.
//
// A VEVENT that cannot be mapped is logged and skipped; only an
// unparseable document is an error.
func ParseICS(src model.Source, body []byte, loc *time.Location) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID)
		return nil, fmt.Errorf("parse ics for %s: %w", src.ID, err)
	}

	events := make([]model.Event, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp, loc)
		if perr != nil {
			appLog.Debug("ics vevent skipped", "id", src.ID, "reason", perr.Error())
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "id", src.ID, "event_count", len(events))
	return events, nil
}

func parseVEvent(src model.Source, ve *ical.VEvent, loc *time.Location) (model.Event, error) {
	uid := strings.TrimSpace(propertyValue(ve.GetProperty(ical.ComponentPropertyUniqueId)))
	summary := sanitize(propertyValue(ve.GetProperty(ical.ComponentPropertySummary)))
	if uid == "" {
		uid = summary
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return model.Event{}, errors.New("missing DTSTART")
	}
	allDay := isAllDay(dtStart)

	start, err := eventTime(dtStart, allDay, loc, func() (time.Time, error) { return ve.GetStartAt() })
	if err != nil {
		return model.Event{}, fmt.Errorf("DTSTART: %w", err)
	}

	var end time.Time
	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		if parsed, endErr := eventTime(dtEnd, isAllDay(dtEnd), loc, func() (time.Time, error) { return ve.GetEndAt() }); endErr == nil {
			end = parsed
		}
	}

	var duration time.Duration
	if !end.IsZero() && !end.Before(start) {
		duration = end.Sub(start)
	} else if d, ok := parseDuration(propertyValue(ve.GetProperty(ical.ComponentPropertyDuration))); ok {
		duration = d
		end = start.Add(d)
	} else if allDay {
		duration = 24 * time.Hour
		end = start.Add(duration)
	}

	if rule := strings.TrimSpace(propertyValue(ve.GetProperty(ical.ComponentPropertyRrule))); rule != "" {
		rec := model.Recurrence{
			RRule:    rule,
			DTStart:  start,
			Duration: duration,
			ExDates:  collectDateTimes(ve.GetProperties(ical.ComponentPropertyExdate), loc),
			RDates:   collectDateTimes(ve.GetProperties(ical.ComponentPropertyRdate), loc),
		}
		return model.NewRecurringEvent(src, uid, summary, rec, allDay), nil
	}

	ev := model.NewEvent(src, uid, summary, start, end, allDay)
	if rid := ve.GetProperty(ical.ComponentPropertyRecurrenceId); rid != nil {
		if at, ridErr := parseICSTime(rid.Value, rid.ICalParameters, loc); ridErr == nil {
			ev.RecurrenceID = &at
		}
	}
	return ev, nil
}

// eventTime reads DTSTART/DTEND. Date-only and floating values are anchored
// in loc; UTC and TZID values go through the library first.
func eventTime(prop *ical.IANAProperty, allDay bool, loc *time.Location, fromLib func() (time.Time, error)) (time.Time, error) {
	if allDay {
		return time.ParseInLocation("20060102", strings.TrimSpace(prop.Value), loc)
	}
	if isFloating(prop) {
		return parseICSTime(prop.Value, nil, loc)
	}
	if t, err := fromLib(); err == nil {
		return t, nil
	}
	return parseICSTime(prop.Value, prop.ICalParameters, loc)
}

func collectDateTimes(properties []*ical.IANAProperty, loc *time.Location) []time.Time {
	if len(properties) == 0 {
		return nil
	}

	results := make([]time.Time, 0, len(properties))
	for _, property := range properties {
		if property == nil {
			continue
		}
		for _, value := range strings.Split(property.Value, ",") {
			parsed, err := parseICSTime(value, property.ICalParameters, loc)
			if err != nil {
				continue
			}
			results = append(results, parsed)
		}
	}
	return results
}

// parseICSTime parses a DATE or DATE-TIME value, honouring a TZID
// parameter when the zone is known to the system.
func parseICSTime(value string, params map[string][]string, loc *time.Location) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, errors.New("empty time value")
	}

	if tzIDs, ok := params["TZID"]; ok && len(tzIDs) > 0 && strings.TrimSpace(tzIDs[0]) != "" {
		if loaded, err := time.LoadLocation(strings.TrimSpace(tzIDs[0])); err == nil {
			loc = loaded
		}
	}

	if strings.HasSuffix(trimmed, "Z") {
		return time.Parse("20060102T150405Z", trimmed)
	}
	if strings.Contains(trimmed, "T") {
		return time.ParseInLocation("20060102T150405", trimmed, loc)
	}
	return time.ParseInLocation("20060102", trimmed, loc)
}

// parseDuration reads an RFC 5545 DURATION value such as "PT1H30M".
// Zero and negative durations are rejected.
func parseDuration(value string) (time.Duration, bool) {
	prop := eical.NewProp(eical.PropDuration)
	prop.Value = strings.TrimSpace(value)
	d, err := prop.Duration()
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

func isAllDay(property *ical.IANAProperty) bool {
	if property == nil {
		return false
	}
	if values, ok := property.ICalParameters["VALUE"]; ok {
		for _, value := range values {
			if strings.EqualFold(strings.TrimSpace(value), "DATE") {
				return true
			}
		}
	}
	return !strings.Contains(property.Value, "T")
}

func isFloating(property *ical.IANAProperty) bool {
	if strings.HasSuffix(strings.TrimSpace(property.Value), "Z") {
		return false
	}
	tzIDs := property.ICalParameters["TZID"]
	return len(tzIDs) == 0 || strings.TrimSpace(tzIDs[0]) == ""
}

func propertyValue(property *ical.IANAProperty) string {
	if property == nil {
		return ""
	}
	return property.Value
}

func sanitize(value string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(value)), " ")
}
