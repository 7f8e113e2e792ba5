package main

import (
	"github.com/smallbiznis/waitlist/internal/migration"
	"github.com/smallbiznis/waitlist/internal/scheduler"
	"github.com/smallbiznis/waitlist/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when SCHEDULER_ENABLED is set, the background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				infrastructure(),
				migration.Module,
				domains(),
				server.Module,
				scheduler.Module,
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
}
