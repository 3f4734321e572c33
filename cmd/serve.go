package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"recordimages/internal/server"
	"recordimages/internal/storage"
)

func newServeCmd(configPath *string) *cobra.Command {
	var noWarm bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Starts the record API and serves stored images under web_path.

When kafka_broker is set, lifecycle events are published and a warmer
consumes them to pre-generate the configured presets.`,
		Example: `  recordimages serve --config config.yaml
  recordimages serve --no-warm`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			db, err := storage.NewStorage(ctx, a.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			pub, err := a.publisher()
			if err != nil {
				return err
			}
			if pub != nil {
				defer pub.Close()
			}

			b, err := a.behavior(pub)
			if err != nil {
				return err
			}

			warmDone := make(chan error, 1)
			if pub != nil && !noWarm {
				go func() { warmDone <- a.warmer(b).Run(ctx) }()
			} else {
				warmDone <- nil
			}

			srv := server.NewServer(a.cfg, db, b, a.logger)
			serverErr := make(chan error, 1)
			go func() { serverErr <- srv.Start() }()

			select {
			case <-ctx.Done():
				a.logger.Info("shutting down")
			case err := <-serverErr:
				if err != nil {
					return err
				}
			}

			cancel()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			if err := srv.Stop(shutdownCtx); err != nil {
				a.logger.Error("server shutdown failed", "error", err)
				return err
			}
			return <-warmDone
		},
	}

	cmd.Flags().BoolVar(&noWarm, "no-warm", false, "Do not run the preset warmer in this process")
	return cmd
}
