package commands

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"freecal/internal/config"
	"freecal/internal/ics"
	appLog "freecal/internal/log"
	"freecal/internal/source"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose    bool
	configPath string

	cfg    *config.Config
	loc    *time.Location
	loader *source.Loader
)

var rootCmd = &cobra.Command{
	Use:   "freecal",
	Short: "freecal shows when a group of people is free",
	Long: `freecal reads calendar feeds (ICS over HTTP, local .ics files, CalDAV),
expands recurring events and reports per-day free/busy statistics for a
group inside a daily work window, as a terminal table, JSON or a heatmap.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := appLog.Init(verbose, cfg.LogFile); err != nil {
			return err
		}
		if loc, err = cfg.Location(); err != nil {
			return err
		}

		client := &http.Client{Timeout: 30 * time.Second}
		loader = source.NewLoader(
			ics.NewFetcher(filepath.Join(cfg.CacheDir, "ics"), client),
			ics.NewCalDAVLoader(client, loc),
			loc,
		)

		appLog.Debug("freecal starting",
			"version", Version,
			"commit", Commit,
			"config", configPath,
			"timezone", loc.String(),
			"calendars", len(cfg.Calendars),
		)
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// today is midnight of the current day in the configured zone.
func today() time.Time {
	y, m, d := time.Now().In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// loadWindow loads every configured calendar. from and to bound CalDAV
// queries.
func loadWindow(ctx context.Context, from, to time.Time) source.Set {
	return loader.LoadAll(ctx, cfg.Calendars, from, to)
}

func previewPath() string {
	return filepath.Join(cfg.CacheDir, "preview.png")
}
