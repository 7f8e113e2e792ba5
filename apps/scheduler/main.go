package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/waitlist/internal/clock"
	"github.com/smallbiznis/waitlist/internal/config"
	"github.com/smallbiznis/waitlist/internal/events"
	"github.com/smallbiznis/waitlist/internal/idgen"
	"github.com/smallbiznis/waitlist/internal/notification"
	"github.com/smallbiznis/waitlist/internal/observability"
	"github.com/smallbiznis/waitlist/internal/project"
	"github.com/smallbiznis/waitlist/internal/providers"
	"github.com/smallbiznis/waitlist/internal/ranking"
	"github.com/smallbiznis/waitlist/internal/ratelimit"
	"github.com/smallbiznis/waitlist/internal/scheduler"
	"github.com/smallbiznis/waitlist/internal/signup"
	"github.com/smallbiznis/waitlist/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		idgen.Module,

		// Outbox dispatch and drip need the notification graph only.
		events.Module,
		providers.Module,
		ratelimit.Module,
		ranking.Module,
		project.Module,
		signup.Module,
		notification.Module,

		// No server module; this binary always runs the job loop.
		fx.Decorate(func(cfg config.Config) config.Config {
			cfg.Scheduler.Enabled = true
			return cfg
		}),
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
