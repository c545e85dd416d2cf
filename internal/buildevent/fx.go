package buildevent

import (
	"github.com/xtages/console/internal/buildevent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("buildevent.service",
	fx.Provide(service.NewService),
)
