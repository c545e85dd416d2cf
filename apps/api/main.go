package main

import (
	"github.com/xtages/console/internal/buildevent"
	"github.com/xtages/console/internal/clock"
	"github.com/xtages/console/internal/config"
	"github.com/xtages/console/internal/dedup"
	"github.com/xtages/console/internal/ledger"
	"github.com/xtages/console/internal/logger"
	"github.com/xtages/console/internal/observability"
	"github.com/xtages/console/internal/providers"
	"github.com/xtages/console/internal/server"
	"github.com/xtages/console/internal/usage"
	"github.com/xtages/console/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(config.NewSnowflakeNode),
		db.Module,
		clock.Module,
		providers.Module,

		// Usage evaluation and build registration for the HTTP API
		ledger.Module,
		dedup.Module,
		usage.Module,
		buildevent.Module,

		server.Module,
	)
	app.Run()
}
