package commands

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"freecal/internal/availability"
	"freecal/internal/report"
)

var reportFlags struct {
	from, to   string
	start, end int
	sources    string
	scope      string
	json       bool
	fit        bool
	perPerson  bool
	titles     bool
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print per-day group availability",
	Example: `  freecal report --from 2024-03-04 --to 2024-03-08
  freecal report --start 22 --end 2 --sources alice,bob --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := reportFlags

		from, err := report.ParseDay(f.from, loc, today())
		if err != nil {
			return err
		}
		to, err := report.ParseDay(f.to, loc, from.AddDate(0, 0, cfg.HorizonDays))
		if err != nil {
			return err
		}

		window := availability.WorkWindow{StartHour: cfg.WorkHours.Start, EndHour: cfg.WorkHours.End}
		if cmd.Flags().Changed("start") {
			window.StartHour = f.start
		}
		if cmd.Flags().Changed("end") {
			window.EndHour = f.end
		}
		scopeName := cfg.OverrideScope
		if f.scope != "" {
			scopeName = f.scope
		}
		scope, err := availability.ParseOverrideScope(scopeName)
		if err != nil {
			return err
		}

		set := loadWindow(cmd.Context(), from, to.AddDate(0, 0, 2))
		res, err := report.Build(set, report.Request{
			From:           from,
			To:             to,
			Window:         window,
			Sources:        report.SplitList(f.sources),
			Scope:          scope,
			Location:       loc,
			MaxOccurrences: cfg.MaxOccurrences,
			Fit:            f.fit,
			MaxDays:        cfg.MaxRangeDays,
		}, nil)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if f.json {
			return report.WriteJSON(out, res)
		}
		color := false
		if file, ok := out.(*os.File); ok {
			color = isatty.IsTerminal(file.Fd()) && os.Getenv("NO_COLOR") == ""
		}
		return report.WriteText(out, res, report.TextOptions{
			PerPerson: f.perPerson,
			Titles:    f.titles,
			Color:     color,
		})
	},
}

func init() {
	fl := reportCmd.Flags()
	fl.StringVar(&reportFlags.from, "from", "", "first day, YYYY-MM-DD (default today)")
	fl.StringVar(&reportFlags.to, "to", "", "last day, YYYY-MM-DD (default from + horizon_days)")
	fl.IntVar(&reportFlags.start, "start", 9, "work window start hour (default from config)")
	fl.IntVar(&reportFlags.end, "end", 17, "work window end hour, may wrap past midnight (default from config)")
	fl.StringVar(&reportFlags.sources, "sources", "", "comma-separated source ids to include")
	fl.StringVar(&reportFlags.scope, "scope", "", `free-override scope: "group" or "source"`)
	fl.BoolVar(&reportFlags.json, "json", false, "print JSON instead of a table")
	fl.BoolVar(&reportFlags.fit, "fit", false, "fit the range to the days that have events")
	fl.BoolVar(&reportFlags.perPerson, "per-person", false, "add one row per source")
	fl.BoolVar(&reportFlags.titles, "titles", false, "list event titles under each day")
	rootCmd.AddCommand(reportCmd)
}
