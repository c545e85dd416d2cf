package deployment

import (
	"github.com/xtages/console/internal/deployment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("deployment.service",
	fx.Provide(service.NewService),
)
