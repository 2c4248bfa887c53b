package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	serveAddr     string
	serveNoWorker bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the watch channel, HTTP API and alert worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			cfg.ListenAddr = serveAddr
		}

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		for _, repo := range []interface{ EnsureLoaded() error }{a.accidents, a.slopes} {
			if err := repo.EnsureLoaded(); err != nil {
				logger.Warn("dataset not loaded, region alerts will retry", zap.Error(err))
			}
		}

		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			return a.server().Run(ctx, cfg.ListenAddr)
		})
		if !serveNoWorker {
			g.Go(func() error {
				return a.scheduler.Run(ctx)
			})
		}
		if cfg.WatchDatasets {
			g.Go(func() error {
				return a.datasetWatcher().Run(ctx)
			})
		}

		logger.Info("dive-relay started",
			zap.String("addr", cfg.ListenAddr),
			zap.Bool("worker", !serveNoWorker),
			zap.Strings("alerts", a.registry.Kinds()))
		err = g.Wait()
		logger.Info("dive-relay stopped")
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides LISTEN_ADDR)")
	serveCmd.Flags().BoolVar(&serveNoWorker, "no-worker", false, "Serve requests without running scheduled checks")
}
