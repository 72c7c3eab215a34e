// Package infra は外部サービスとの接続を提供する。
package infra

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"schema-migrator/config"
	"schema-migrator/internal/domain"
)

// NewDB はgormによるデータベース接続を方言に応じて初期化する。
func NewDB(dsn string, dialect domain.Dialect, cfg *config.Config) (*gorm.DB, error) {
	if dsn == "" {
		return nil, domain.NewValidationError("DATABASE_URL is required")
	}

	var dialector gorm.Dialector
	switch dialect {
	case domain.DialectPostgres:
		dialector = postgres.Open(dsn)
	case domain.DialectMySQL:
		dialector = mysql.Open(dsn)
	case domain.DialectSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, domain.NewValidationError("unknown dialect %q", dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", dialect, err)
	}

	if cfg != nil && cfg.OtelEnabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("registering tracing plugin: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// マイグレーションは逐次実行のため、同時に保持する接続は1つだけ
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
