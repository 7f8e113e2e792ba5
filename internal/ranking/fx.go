package ranking

import "go.uber.org/fx"

var Module = fx.Module("ranking",
	fx.Provide(New),
)
