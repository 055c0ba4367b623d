package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"
	"time"

	"freecal/internal/availability"
	"freecal/internal/interval"
)

// TextOptions tunes WriteText.
type TextOptions struct {
	// PerPerson adds one indented row per source under each day.
	PerPerson bool
	// Titles lists the events of each day.
	Titles bool
	// Color appends an ANSI heat bar; only for terminals.
	Color bool
}

// WriteJSON writes res as indented JSON.
func WriteJSON(w io.Writer, res Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// WriteText writes a fixed-width table, one row per day.
func WriteText(w io.Writer, res Result, opts TextOptions) error {
	loc := res.Range.Start.Location()
	fmt.Fprintf(w, "Availability %s .. %s, window %s (%s)\n\n",
		res.Range.Start.Format(availability.DateLayout),
		res.Range.End.Format(availability.DateLayout),
		res.Window, res.Timezone)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tFREE\tFREE MIN\tBUSY MIN\tURGENT\tBUSY\t")
	for _, day := range res.Days.Days() {
		urgent := ""
		if day.HasUrgent {
			urgent = "!"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			day.Date, percent(day.FreeRatio, day.TotalMinutes), day.FreeMinutes, day.BusyMinutes,
			urgent, spans(day.MergedBusy, loc), heat(day.FreeRatio, day.TotalMinutes, opts.Color))

		if opts.PerPerson {
			for _, p := range day.PerPerson {
				fmt.Fprintf(tw, "  %s\t%s\t%d\t%d\t\t%s\t%s\n",
					p.SourceName, percent(p.FreeRatio, day.TotalMinutes), p.FreeMinutes, p.BusyMinutes,
					spans(p.MergedBusy, loc), heat(p.FreeRatio, day.TotalMinutes, opts.Color))
			}
		}
		if opts.Titles {
			for _, it := range day.Titles {
				mark := " "
				switch {
				case it.Urgent:
					mark = "!"
				case it.FreeOverride:
					mark = "+"
				case it.Overlay:
					mark = "~"
				}
				fmt.Fprintf(tw, "    %s %s-%s\t%s\t\t\t\t%s\t\n", mark,
					it.Start.In(loc).Format("15:04"), it.End.In(loc).Format("15:04"), it.SourceName, it.Summary)
			}
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(res.Warnings) > 0 {
		fmt.Fprintln(w, "\nWarnings:")
		for _, warn := range res.Warnings {
			fmt.Fprintf(w, "  - %s\n", warn)
		}
	}
	return nil
}

func percent(ratio float64, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%d%%", int(math.Round(ratio*100)))
}

func spans(ivs []interval.Interval, loc *time.Location) string {
	if len(ivs) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(ivs))
	for _, iv := range ivs {
		parts = append(parts, iv.Start.In(loc).Format("15:04")+"-"+iv.End.In(loc).Format("15:04"))
	}
	return strings.Join(parts, " ")
}

// Hue maps a free ratio onto the heatmap scale: 0 is red, 120 is green.
func Hue(ratio float64) float64 {
	return math.Max(0, math.Min(1, ratio)) * 120
}

func heat(ratio float64, total int, color bool) string {
	if !color || total == 0 {
		return ""
	}
	r, g, b := hslToRGB(Hue(ratio), 0.7, 0.45)
	blocks := 1 + int(math.Round(ratio*9))
	return fmt.Sprintf("\x1b[38;2;%d;%d;%dm%s\x1b[0m", r, g, b, strings.Repeat("█", blocks))
}

func hslToRGB(h, s, l float64) (uint8, uint8, uint8) {
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	default:
		r, g, b = 0, c, x
	}
	to := func(v float64) uint8 { return uint8(math.Round((v + m) * 255)) }
	return to(r), to(g), to(b)
}
