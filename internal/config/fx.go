package config

import "go.uber.org/fx"

var Module = fx.Module("config",
	fx.Provide(Load),
)

// ListenerModule provides the hot-reloaded queue listener settings.
var ListenerModule = fx.Module("config.listener",
	fx.Provide(NewListenerConfigHolder),
)
