/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/calmspace/apiserver/config"
	"github.com/calmspace/apiserver/internal/logging"
	"github.com/calmspace/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

// eventsCmd represents the events command.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect domain events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log every event published on the events channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		closeLogs := initLogging(cfg)
		defer closeLogs()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		backend, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("connect message broker: %w", err)
		}
		if backend == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer backend.Close()

		publisher := mq.NewPublisher(backend, cfg.MQ.EventsChannel)
		logging.Info().Str("channel", cfg.MQ.EventsChannel).Msg("tailing events")
		err = publisher.Consume(ctx, func(_ context.Context, evt mq.Event) error {
			logging.Info().
				Str("type", evt.Type).
				Int64("user_id", evt.UserID).
				Time("occurred_at", evt.OccurredAt).
				Interface("data", evt.Data).
				Msg("event")
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
