package main

import (
	"context"
	"time"

	notificationdomain "github.com/smallbiznis/waitlist/internal/notification/domain"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func dripCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "drip",
		Short: "Send due day-2 and day-5 emails once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				notifications notificationdomain.Service
				log           *zap.Logger
			)
			app := fx.New(
				infrastructure(),
				domains(),
				fx.Populate(&notifications, &log),
				fx.NopLogger,
			)
			if err := app.Err(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return err
			}
			defer func() {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer stopCancel()
				_ = app.Stop(stopCtx)
			}()

			result, err := notifications.ProcessDrip(ctx)
			if err != nil {
				return err
			}
			log.Info("drip run finished",
				zap.Int("day2_sent", result.Day2Sent),
				zap.Int("day5_sent", result.Day5Sent),
				zap.Int("errors", len(result.Errors)),
			)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "upper bound for the whole run")
	return cmd
}
