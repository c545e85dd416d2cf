package migration

import (
	"strings"

	"github.com/xtages/console/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBMigrateOnStart {
			return nil
		}
		if !strings.EqualFold(cfg.DBType, "postgres") {
			log.Info("skipping migrations for non-postgres database", zap.String("database_type", cfg.DBType))
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		res, err := Up(sqlDB)
		if err != nil {
			return err
		}
		log.Info("ledger schema ready", zap.Uint("version", res.Version), zap.Bool("applied", res.Applied))
		return nil
	}),
)
