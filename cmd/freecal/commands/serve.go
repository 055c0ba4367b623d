package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	appLog "freecal/internal/log"
	"freecal/internal/refresh"
	"freecal/internal/source"
	"freecal/internal/web"
)

var (
	serveListen string
	serveOpen   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the availability API and heatmap page",
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveListen != "" {
			cfg.Listen = serveListen
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		r := refresh.New(func(ctx context.Context) source.Set {
			from := today().AddDate(0, 0, -cfg.BackfillDays)
			to := today().AddDate(0, 0, cfg.HorizonDays+1)
			return loadWindow(ctx, from, to)
		})
		r.Refresh(ctx)
		if err := r.Start(ctx, cfg.RefreshCron); err != nil {
			return err
		}
		if next, ok := r.Next(); ok {
			appLog.Debug("next refresh", "at", next.String())
		}

		srv := web.NewServer(cfg, loc, r, previewPath())
		if serveOpen {
			url := "http://" + cfg.Listen + "/"
			go func() {
				if err := browser.OpenURL(url); err != nil {
					appLog.Error("failed to open browser", err, "url", url)
				}
			}()
		}
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().BoolVar(&serveOpen, "open", false, "open the heatmap in the default browser")
	rootCmd.AddCommand(serveCmd)
}
