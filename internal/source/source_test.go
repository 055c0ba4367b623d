package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"freecal/internal/config"
	"freecal/internal/ics"
)

func ics1(uid, summary, start, end string) string {
	return strings.Join([]string{
		"BEGIN:VCALENDAR", "VERSION:2.0", "PRODID:-//freecal//test//EN",
		"BEGIN:VEVENT", "UID:" + uid, "SUMMARY:" + summary, "DTSTART:" + start, "DTEND:" + end, "END:VEVENT",
		"END:VCALENDAR", "",
	}, "\r\n")
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadAll(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "alice.ics"), ics1("a1", "Standup", "20240304T090000Z", "20240304T100000Z"))

	team := filepath.Join(dir, "team")
	if err := os.Mkdir(team, 0o700); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(team, "bob.ics"), ics1("b1", "Planning", "20240304T093000Z", "20240304T110000Z"))
	writeFile(t, filepath.Join(team, "carol.ICS"), ics1("c1", "Free", "20240304T120000Z", "20240304T130000Z"))
	writeFile(t, filepath.Join(team, "notes.txt"), "ignored")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(ics1("r1", "Broadcast", "20240304T150000Z", "20240304T160000Z")))
	}))
	defer srv.Close()

	inactive := false
	cals := []config.CalendarConfig{
		{ID: "alice", Name: "Alice", Path: filepath.Join(dir, "alice.ics")},
		{ID: "team", Path: team},
		{ID: "radio", Name: "Radio", URL: srv.URL + "/radio.ics", Overlay: true, Active: &inactive},
		{ID: "missing", Name: "Missing", Path: filepath.Join(dir, "nope.ics")},
	}

	loader := NewLoader(ics.NewFetcher(t.TempDir(), srv.Client()), nil, time.UTC)
	set := loader.LoadAll(context.Background(), cals, time.Time{}, time.Time{})

	if len(set.Warnings) != 1 || !strings.Contains(set.Warnings[0], "missing") {
		t.Fatalf("warnings = %v", set.Warnings)
	}

	var ids []string
	for _, s := range set.Sources {
		ids = append(ids, s.ID)
	}
	if got := strings.Join(ids, ","); got != "alice,team/bob,team/carol,radio" {
		t.Fatalf("sources = %s", got)
	}
	if set.Sources[1].Name != "bob" {
		t.Errorf("file source name = %q, want bob", set.Sources[1].Name)
	}
	if !set.Sources[3].Overlay {
		t.Errorf("radio should be overlay")
	}
	if !set.Active["alice"] || !set.Active["team/carol"] || set.Active["radio"] {
		t.Errorf("active = %v", set.Active)
	}
	if len(set.Events) != 4 {
		t.Fatalf("got %d events, want 4", len(set.Events))
	}
	for _, ev := range set.Events {
		if ev.UID == "c1" && !ev.FreeOverride {
			t.Errorf("carol's Free event not tagged")
		}
		if ev.UID == "b1" && ev.SourceID != "team/bob" {
			t.Errorf("bob event attributed to %q", ev.SourceID)
		}
	}
}

func TestLoadAllWithoutCalDAVLoader(t *testing.T) {
	t.Parallel()

	loader := NewLoader(nil, nil, time.UTC)
	set := loader.LoadAll(context.Background(), []config.CalendarConfig{
		{ID: "dav", CalDAV: &config.CalDAVConfig{Endpoint: "https://dav.example.com/"}},
		{ID: "web", URL: "https://example.com/x.ics"},
		{ID: "empty"},
	}, time.Now(), time.Now())
	if len(set.Sources) != 0 || len(set.Warnings) != 3 {
		t.Fatalf("set = %+v", set)
	}
}

func TestFileSourceName(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"/data/Team Calendar.ics": "Team Calendar",
		"alice.ICS":               "alice",
		"plain":                   "plain",
	} {
		if got := FileSourceName(in); got != want {
			t.Errorf("FileSourceName(%q) = %q, want %q", in, got, want)
		}
	}
}
