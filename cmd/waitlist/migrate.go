package main

import (
	"context"
	"time"

	"github.com/smallbiznis/waitlist/internal/migration"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				infrastructure(),
				migration.Module,
				fx.NopLogger,
			)
			if err := app.Err(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := app.Start(ctx); err != nil {
				return err
			}
			return app.Stop(ctx)
		},
	}
}
