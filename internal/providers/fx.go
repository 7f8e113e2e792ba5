package providers

import (
	"github.com/smallbiznis/waitlist/internal/providers/email"
	"github.com/smallbiznis/waitlist/internal/providers/slack"
	"go.uber.org/fx"
)

// Module bundles the outbound delivery channels.
var Module = fx.Module("providers",
	email.Module,
	slack.Module,
)
