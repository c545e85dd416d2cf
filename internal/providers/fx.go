package providers

import (
	"github.com/xtages/console/internal/providers/aws"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	aws.Module,
)
