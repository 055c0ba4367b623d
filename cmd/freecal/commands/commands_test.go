package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"freecal/internal/report"
)

const teamICS = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\nUID:1\r\nSUMMARY:Planning\r\nDTSTART:20240304T100000Z\r\nDTEND:20240304T120000Z\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:2\r\nSUMMARY:Free 13-15\r\nDTSTART:20240304T130000Z\r\nDTEND:20240304T150000Z\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

// The commands share package state, so these tests run sequentially.

func run(t *testing.T, args ...string) string {
	t.Helper()
	for _, c := range rootCmd.Commands() {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("freecal %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	ics := filepath.Join(dir, "team.ics")
	if err := os.WriteFile(ics, []byte(teamICS), 0o644); err != nil {
		t.Fatal(err)
	}
	conf := "timezone: UTC\n" +
		"cache_dir: " + filepath.Join(dir, "cache") + "\n" +
		"calendars:\n  - id: team\n    name: Team\n    path: " + ics + "\n"
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(conf), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersion(t *testing.T) {
	out := run(t, "version")
	if !strings.HasPrefix(out, "freecal dev") {
		t.Fatalf("version output = %q", out)
	}
}

func TestReportJSON(t *testing.T) {
	path := writeConfig(t)
	out := run(t, "--config", path, "report", "--from", "2024-03-04", "--to", "2024-03-04", "--json")

	var res report.Result
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	d, ok := res.Days.Get("2024-03-04")
	if !ok {
		t.Fatalf("missing day in %s", out)
	}
	// 10-12 busy; the Free event adds nothing.
	if d.BusyMinutes != 120 || d.FreeMinutes != 360 {
		t.Fatalf("busy %d free %d", d.BusyMinutes, d.FreeMinutes)
	}
}

func TestReportText(t *testing.T) {
	path := writeConfig(t)
	out := run(t, "--config", path, "report", "--from", "2024-03-04", "--to", "2024-03-04", "--start", "10", "--end", "12", "--titles")
	for _, want := range []string{"10:00-12:00", "2024-03-04", "0%", "Planning"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}
