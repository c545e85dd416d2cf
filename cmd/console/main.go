package main

import (
	"github.com/xtages/console/internal/buildevent"
	"github.com/xtages/console/internal/clock"
	"github.com/xtages/console/internal/config"
	"github.com/xtages/console/internal/dedup"
	"github.com/xtages/console/internal/deployment"
	"github.com/xtages/console/internal/ledger"
	"github.com/xtages/console/internal/logger"
	"github.com/xtages/console/internal/migration"
	"github.com/xtages/console/internal/notification"
	"github.com/xtages/console/internal/observability"
	"github.com/xtages/console/internal/providers"
	"github.com/xtages/console/internal/server"
	"github.com/xtages/console/internal/usage"
	"github.com/xtages/console/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		config.ListenerModule,
		logger.Module,
		observability.Module,
		fx.Provide(config.NewSnowflakeNode),
		db.Module,
		clock.Module,
		migration.Module,
		providers.Module,

		// Domains
		ledger.Module,
		dedup.Module,
		usage.Module,
		buildevent.Module,
		deployment.Module,

		// Surfaces
		server.Module,
		notification.Module,
	)
	app.Run()
}
