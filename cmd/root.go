package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"recordimages/internal/events"
	"recordimages/internal/images"
	"recordimages/internal/logger"
	"recordimages/internal/models"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "recordimages",
		Short: "Image uploads attached to records",
		Long: `recordimages stores the images uploaded with a record under a
directory derived from the record's key, serves resized variants on demand
and removes everything when the record goes away.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional
			_ = godotenv.Load()
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")

	cmd.AddCommand(
		newServeCmd(&configPath),
		newWarmCmd(&configPath),
		newPurgeCmd(&configPath),
		newResolveCmd(&configPath),
	)
	return cmd
}

type app struct {
	cfg    *models.Config
	logger *slog.Logger
}

func loadApp(configPath string) (*app, error) {
	cfg, err := models.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	l, err := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: l}, nil
}

// behavior builds the image behavior. With a publisher, every stored and
// removed original is announced on the configured topic.
func (a *app) behavior(pub *events.Publisher) (*images.Behavior, error) {
	cfg := a.cfg.Images()
	if pub != nil {
		pub.Attach(&cfg)
	}
	return images.New(cfg, images.WithLogger(a.logger))
}

// publisher returns nil when no broker is configured.
func (a *app) publisher() (*events.Publisher, error) {
	if a.cfg.KafkaBroker == "" {
		return nil, nil
	}
	if a.cfg.KafkaTopic == "" {
		return nil, fmt.Errorf("kafka_topic required with kafka_broker")
	}
	return events.NewPublisher(a.cfg.KafkaBroker, a.cfg.KafkaTopic, a.logger), nil
}

func (a *app) warmer(b *images.Behavior) *events.Warmer {
	r := events.NewReader(a.cfg.KafkaBroker, a.cfg.KafkaTopic, a.cfg.KafkaGroup)
	return events.NewWarmer(r, b, a.cfg.PresetsFor, a.logger)
}
