package commands

import (
	"github.com/spf13/cobra"

	"freecal/internal/capture"
)

var captureOpts capture.Options

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Screenshot the heatmap page of a running server to PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := captureOpts
		if opts.URL == "" {
			opts.URL = "http://" + cfg.Listen + "/"
		}
		if opts.Out == "" {
			opts.Out = previewPath()
		}
		return capture.CaptureHeatmapPNG(cmd.Context(), opts)
	},
}

func init() {
	fl := captureCmd.Flags()
	fl.StringVar(&captureOpts.URL, "url", "", "page to capture (default http://<listen>/)")
	fl.StringVar(&captureOpts.Out, "out", "", "output PNG (default <cache_dir>/preview.png)")
	fl.IntVar(&captureOpts.Width, "width", capture.DefaultWidth, "viewport width in pixels")
	fl.IntVar(&captureOpts.Height, "height", capture.DefaultHeight, "viewport height in pixels")
	fl.DurationVar(&captureOpts.Timeout, "timeout", capture.DefaultTimeout, "overall capture timeout")
	rootCmd.AddCommand(captureCmd)
}
