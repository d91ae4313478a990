package main

import (
	"time"

	"github.com/spf13/cobra"
)

func daemonCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Refresh all feeds in a loop with configurable interval",
		Long: `Continuously refresh every feed on a timer.
Designed for running inside a container or as a background service.
Handles SIGINT/SIGTERM for graceful shutdown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				interval = cfg.Sync.Interval
			}

			engine, closeDB, err := openEngine()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx := cmd.Context()
			logger.Info("daemon starting", "interval", interval)

			cycle := 1
			for {
				start := time.Now()
				summary, err := engine.RefreshAll(ctx)
				switch {
				case summary == nil:
					logger.Error("refresh cycle failed", "cycle", cycle, "error", err)
				case err != nil:
					logger.Warn("refresh cycle finished with errors",
						"cycle", cycle, "errored", summary.FeedsErrored, "new_articles", summary.NewArticles,
						"duration", time.Since(start).Round(time.Millisecond))
				default:
					logger.Info("refresh cycle completed",
						"cycle", cycle, "new_articles", summary.NewArticles,
						"duration", time.Since(start).Round(time.Millisecond))
				}

				cycle++

				// Wait for the next tick or a shutdown signal.
				timer := time.NewTimer(interval)
				select {
				case <-ctx.Done():
					timer.Stop()
					logger.Info("daemon received shutdown signal, exiting")
					return nil
				case <-timer.C:
				}
			}
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "duration between refresh cycles (default from config sync.interval)")
	return cmd
}
