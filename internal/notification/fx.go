package notification

import (
	"context"

	"github.com/smallbiznis/waitlist/internal/notification/domain"
	"github.com/smallbiznis/waitlist/internal/notification/repository"
	"github.com/smallbiznis/waitlist/internal/notification/service"
	signupdomain "github.com/smallbiznis/waitlist/internal/signup/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(
		func(s *service.Service) domain.Service { return s },
		func(s *service.Service) signupdomain.Notifier { return s },
	),
	fx.Invoke(registerLifecycle),
)

func registerLifecycle(lc fx.Lifecycle, s *service.Service) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start()
			return nil
		},
		OnStop: s.Stop,
	})
}
