package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the default config path.
const EnvConfigPath = "FREECAL_CONFIG"

// ErrEmptyPath is returned by Load and Save for an empty path.
var ErrEmptyPath = errors.New("config path is empty")

// sourceNamespace seeds the derived calendar ids.
var sourceNamespace = uuid.MustParse("5b0e3f7c-6a1d-4c52-9a53-3c1f0e8d2a41")

// CalDAVConfig points a calendar at a CalDAV server.
type CalDAVConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"-"`
	// Calendar is a display name or path; empty merges all calendars.
	Calendar string `yaml:"calendar,omitempty" json:"calendar,omitempty"`
}

// CalendarConfig is one source. Exactly one of URL, Path or CalDAV is
// expected; Path may also name a directory of .ics files.
type CalendarConfig struct {
	ID     string        `yaml:"id" json:"id"`
	Name   string        `yaml:"name" json:"name"`
	URL    string        `yaml:"url,omitempty" json:"url,omitempty"`
	Path   string        `yaml:"path,omitempty" json:"path,omitempty"`
	CalDAV *CalDAVConfig `yaml:"caldav,omitempty" json:"caldav,omitempty"`

	// Overlay keeps the source out of the group union.
	Overlay bool `yaml:"overlay,omitempty" json:"overlay,omitempty"`

	// Active defaults to true when omitted.
	Active *bool `yaml:"active,omitempty" json:"active,omitempty"`
}

// IsActive reports whether the calendar takes part by default.
func (c CalendarConfig) IsActive() bool {
	return c.Active == nil || *c.Active
}

// WorkHours is the default working-hours window.
type WorkHours struct {
	Start int `yaml:"start" json:"start"`
	End   int `yaml:"end" json:"end"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone days are cut in (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron spec for reloading every calendar.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays and BackfillDays bound the loaded window around today.
	HorizonDays  int `yaml:"horizon_days" json:"horizon_days"`
	BackfillDays int `yaml:"backfill_days" json:"backfill_days"`

	WorkHours WorkHours `yaml:"work_hours" json:"work_hours"`

	// OverrideScope is "group" or "source".
	OverrideScope string `yaml:"override_scope" json:"override_scope"`

	// MaxOccurrences caps evaluated occurrences per recurring event.
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`

	// MaxRangeDays caps the number of days one query may cover.
	MaxRangeDays int `yaml:"max_range_days" json:"max_range_days"`

	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
	LogFile  string `yaml:"log_file,omitempty" json:"log_file,omitempty"`

	Calendars []CalendarConfig `yaml:"calendars" json:"calendars"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// DefaultPath resolves the config path: FREECAL_CONFIG (after loading a
// .env in the working directory), then the user config dir.
func DefaultPath() string {
	_ = godotenv.Load()
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "freecal", "config.yaml")
	}
	return "freecal.yaml"
}

// Normalize fills in missing values and derives calendar ids.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 30
	}
	if c.BackfillDays < 0 {
		c.BackfillDays = 0
	}
	if c.WorkHours == (WorkHours{}) {
		c.WorkHours = WorkHours{Start: 9, End: 17}
	}
	switch strings.ToLower(strings.TrimSpace(c.OverrideScope)) {
	case "source":
		c.OverrideScope = "source"
	default:
		c.OverrideScope = "group"
	}
	if c.MaxOccurrences <= 0 {
		c.MaxOccurrences = 5000
	}
	if c.MaxRangeDays <= 0 {
		c.MaxRangeDays = 366
	}
	if c.CacheDir == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			c.CacheDir = filepath.Join(dir, "freecal")
		} else {
			c.CacheDir = filepath.Join(os.TempDir(), "freecal-cache")
		}
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
	for i := range c.Calendars {
		cal := &c.Calendars[i]
		if cal.ID == "" {
			cal.ID = deriveID(*cal)
		}
		if cal.Name == "" {
			cal.Name = deriveName(*cal)
		}
	}
}

// Validate reports configuration a run cannot proceed with.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.WorkHours.Start < 0 || c.WorkHours.Start > 23 || c.WorkHours.End < 0 || c.WorkHours.End > 24 {
		return fmt.Errorf("work_hours %d-%d out of range", c.WorkHours.Start, c.WorkHours.End)
	}
	seen := make(map[string]bool, len(c.Calendars))
	var errs []error
	for _, cal := range c.Calendars {
		if seen[cal.ID] {
			errs = append(errs, fmt.Errorf("duplicate calendar id %q", cal.ID))
		}
		seen[cal.ID] = true
		kinds := 0
		if cal.URL != "" {
			kinds++
		}
		if cal.Path != "" {
			kinds++
		}
		if cal.CalDAV != nil {
			kinds++
		}
		if kinds != 1 {
			errs = append(errs, fmt.Errorf("calendar %q: set exactly one of url, path, caldav", cal.ID))
		}
	}
	return errors.Join(errs...)
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func deriveID(cal CalendarConfig) string {
	key := cal.URL
	switch {
	case key != "":
	case cal.Path != "":
		key = "file:" + filepath.Clean(cal.Path)
	case cal.CalDAV != nil:
		key = "caldav:" + cal.CalDAV.Endpoint + "#" + cal.CalDAV.Username + "/" + cal.CalDAV.Calendar
	default:
		key = "name:" + cal.Name
	}
	return uuid.NewSHA1(sourceNamespace, []byte(key)).String()[:8]
}

func deriveName(cal CalendarConfig) string {
	switch {
	case cal.Path != "":
		base := filepath.Base(cal.Path)
		return strings.TrimSuffix(base, filepath.Ext(base))
	case cal.CalDAV != nil && cal.CalDAV.Calendar != "":
		return cal.CalDAV.Calendar
	}
	return cal.ID
}

// Load reads the YAML config at path. On first run it writes a default
// config with 0600 permissions and returns it.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg atomically (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return ErrEmptyPath
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".freecal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save writes c to path; see the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
