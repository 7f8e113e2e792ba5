package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/waitlist/internal/audit"
	"github.com/smallbiznis/waitlist/internal/billing"
	"github.com/smallbiznis/waitlist/internal/clock"
	"github.com/smallbiznis/waitlist/internal/config"
	"github.com/smallbiznis/waitlist/internal/events"
	"github.com/smallbiznis/waitlist/internal/feedback"
	"github.com/smallbiznis/waitlist/internal/idgen"
	"github.com/smallbiznis/waitlist/internal/notification"
	"github.com/smallbiznis/waitlist/internal/observability"
	"github.com/smallbiznis/waitlist/internal/project"
	"github.com/smallbiznis/waitlist/internal/providers"
	"github.com/smallbiznis/waitlist/internal/ranking"
	"github.com/smallbiznis/waitlist/internal/ratelimit"
	"github.com/smallbiznis/waitlist/internal/reporting"
	"github.com/smallbiznis/waitlist/internal/server"
	"github.com/smallbiznis/waitlist/internal/signup"
	"github.com/smallbiznis/waitlist/pkg/db"
	"go.uber.org/fx"
)

// The API binary leaves drip scheduling to apps/scheduler or the cron route.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		idgen.Module,

		events.Module,
		providers.Module,
		ratelimit.Module,
		ranking.Module,

		project.Module,
		signup.Module,
		notification.Module,
		reporting.Module,
		billing.Module,
		feedback.Module,
		audit.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
