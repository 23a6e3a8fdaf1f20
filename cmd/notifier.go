/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazardwatch/apiserver/internal/mq"
	"github.com/hazardwatch/apiserver/types"
	"github.com/spf13/cobra"
)

// notifierCmd represents the notifier command
var notifierCmd = &cobra.Command{
	Use:   "notifier",
	Short: "Consumes complaint events and logs department notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		backend, err := mq.NewBackend(cmd.Context(), cfg.Queue)
		if err != nil {
			return fmt.Errorf("open queue: %w", err)
		}
		if backend == nil {
			return errors.New("QUEUE_BACKEND must be set to run the notifier")
		}
		bus := mq.NewEventBus(backend, cfg.Queue.Channel)
		defer bus.Close()

		logger.Info("notifier consuming complaint events", "channel", cfg.Queue.Channel)
		err = bus.Consume(cmd.Context(), logger, func(ctx context.Context, event types.ComplaintEvent) error {
			attrs := []any{
				"complaint_id", event.ComplaintID,
				"category", event.Category,
				"department", event.Category.Label(),
				"status", event.Status,
				"actor_id", event.ActorID,
				"occurred_at", event.OccurredAt,
			}
			switch event.Type {
			case types.ComplaintCreated:
				logger.Info("new complaint for department", attrs...)
			case types.ComplaintStatusChanged:
				logger.Info("complaint status changed", append(attrs, "prev_status", event.PrevStatus)...)
			default:
				logger.Info("complaint updated", attrs...)
			}
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(notifierCmd)
}
