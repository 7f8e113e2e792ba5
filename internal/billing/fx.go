package billing

import (
	"github.com/smallbiznis/waitlist/internal/billing/adapters/stripe"
	"github.com/smallbiznis/waitlist/internal/billing/domain"
	"github.com/smallbiznis/waitlist/internal/billing/repository"
	"github.com/smallbiznis/waitlist/internal/billing/service"
	"github.com/smallbiznis/waitlist/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) domain.Gateway {
		return stripe.New(stripe.ConfigFrom(cfg))
	}),
	fx.Provide(service.New),
)
