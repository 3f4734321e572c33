package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newWarmCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "Consume image events and pre-generate presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			if a.cfg.KafkaBroker == "" || a.cfg.KafkaTopic == "" {
				return fmt.Errorf("warm needs kafka_broker and kafka_topic")
			}
			b, err := a.behavior(nil)
			if err != nil {
				return err
			}
			a.logger.Info("warmer started", "topic", a.cfg.KafkaTopic, "group", a.cfg.KafkaGroup)
			return a.warmer(b).Run(cmd.Context())
		},
	}
}
