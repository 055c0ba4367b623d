package ics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	appLog "freecal/internal/log"
	"freecal/internal/model"
)

// Collection is a source backed by one or more CalDAV calendars.
type Collection struct {
	Source   model.Source
	Endpoint string
	Username string
	Password string

	// Calendar selects a calendar by display name or path. Empty merges
	// every calendar under the home set into Source.
	Calendar string
}

type calendarClient interface {
	FindCurrentUserPrincipal(ctx context.Context) (string, error)
	FindCalendarHomeSet(ctx context.Context, principal string) (string, error)
	FindCalendars(ctx context.Context, calendarHomeSet string) ([]caldav.Calendar, error)
	QueryCalendar(ctx context.Context, calendar string, query *caldav.CalendarQuery) ([]caldav.CalendarObject, error)
}

// CalDAVLoader reads VEVENTs from CalDAV servers.
type CalDAVLoader struct {
	httpClient *http.Client
	location   *time.Location
	dial       func(c Collection) (calendarClient, error)
}

// NewCalDAVLoader returns a loader that parses floating times in loc.
func NewCalDAVLoader(httpClient *http.Client, loc *time.Location) *CalDAVLoader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	l := &CalDAVLoader{httpClient: httpClient, location: loc}
	l.dial = l.connect
	return l
}

func (l *CalDAVLoader) connect(c Collection) (calendarClient, error) {
	var hc webdav.HTTPClient = l.httpClient
	if c.Username != "" {
		hc = webdav.HTTPClientWithBasicAuth(hc, c.Username, c.Password)
	}
	client, err := caldav.NewClient(hc, c.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("create caldav client: %w", err)
	}
	return client, nil
}

// Load queries the selected calendars for VEVENTs overlapping [from, to]
// and parses them as events of c.Source. Recurring masters come back
// unexpanded.
func (l *CalDAVLoader) Load(ctx context.Context, c Collection, from, to time.Time) ([]model.Event, error) {
	if c.Endpoint == "" {
		return nil, fmt.Errorf("collection %s: endpoint is empty", c.Source.ID)
	}
	client, err := l.dial(c)
	if err != nil {
		return nil, err
	}

	paths, err := findCalendars(ctx, client, c.Calendar)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", c.Source.ID, err)
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: from.UTC(),
				End:   to.UTC(),
			}},
		},
	}

	events := make([]model.Event, 0)
	for _, p := range paths {
		objects, err := client.QueryCalendar(ctx, p, query)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", p, err)
		}
		for _, obj := range objects {
			parsed, err := decodeObject(c.Source, obj, l.location)
			if err != nil {
				appLog.Debug("caldav object skipped", "id", c.Source.ID, "path", obj.Path, "reason", err.Error())
				continue
			}
			events = append(events, parsed...)
		}
		appLog.Debug("caldav calendar queried", "id", c.Source.ID, "calendar", p, "objects", len(objects))
	}

	appLog.Info("caldav collection loaded", "id", c.Source.ID, "calendars", len(paths), "event_count", len(events))
	return events, nil
}

func findCalendars(ctx context.Context, client calendarClient, want string) ([]string, error) {
	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}
	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find calendar home set: %w", err)
	}
	calendars, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	paths := make([]string, 0, len(calendars))
	for _, cal := range calendars {
		if !supportsEvents(cal) {
			continue
		}
		if want == "" || cal.Name == want || strings.TrimSuffix(cal.Path, "/") == strings.TrimSuffix(want, "/") {
			paths = append(paths, cal.Path)
		}
	}
	if len(paths) == 0 {
		if want == "" {
			return nil, fmt.Errorf("no event calendars under %s", homeSet)
		}
		return nil, fmt.Errorf("no calendar named %q", want)
	}
	return paths, nil
}

func supportsEvents(cal caldav.Calendar) bool {
	if len(cal.SupportedComponentSet) == 0 {
		return true
	}
	for _, comp := range cal.SupportedComponentSet {
		if comp == ical.CompEvent {
			return true
		}
	}
	return false
}

// decodeObject re-encodes the server's calendar object and feeds it
// through ParseICS so CalDAV and HTTP feeds share one mapping.
func decodeObject(src model.Source, obj caldav.CalendarObject, loc *time.Location) ([]model.Event, error) {
	if obj.Data == nil {
		return nil, fmt.Errorf("object %s has no calendar data", obj.Path)
	}
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(obj.Data); err != nil {
		return nil, fmt.Errorf("encode %s: %w", obj.Path, err)
	}
	return ParseICS(src, buf.Bytes(), loc)
}
