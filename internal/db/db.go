package db

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tesla-telemetry-backend/config"
	"tesla-telemetry-backend/internal/logging"
	"tesla-telemetry-backend/internal/model"
)

// Models lists every table owned by the service, in migration order.
var Models = []any{
	&model.Vehicle{},
	&model.EnergySite{},
	&model.VehicleState{},
	&model.EnergyState{},
	&model.ChargingSession{},
	&model.CacheEntry{},
	&model.PushSubscription{},
}

// Init initializes the database connection and runs migrations.
// DSNs starting with "sqlite:" or "file:" open an embedded SQLite database; anything else is PostgreSQL.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	log := logging.WithComponent("db")

	db, err := gorm.Open(dialector(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Info().Msg("running database migrations")
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.EnableTimescale && db.Dialector.Name() == "postgres" {
		log.Info().Msg("TimescaleDB is enabled, applying hypertable DDL")
		if err := applyTimescaleDDL(db); err != nil {
			log.Warn().Err(err).Msg("failed to apply some TimescaleDB DDL, continuing without it")
		}
	}

	log.Info().Str("dialect", db.Dialector.Name()).Msg("database initialization complete")
	return db, nil
}

// Migrate creates or updates all tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

func dialector(dsn string) gorm.Dialector {
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite:"))
	case strings.HasPrefix(dsn, "file:"):
		return sqlite.Open(dsn)
	default:
		return postgres.Open(dsn)
	}
}

func applyTimescaleDDL(db *gorm.DB) error {
	ddls := []string{
		"CREATE EXTENSION IF NOT EXISTS timescaledb;",

		// Snapshot history is append-only and always read newest-first per device.
		"SELECT create_hypertable('vehicle_states', 'observed_at', if_not_exists => TRUE, migrate_data => TRUE);",
		"SELECT create_hypertable('energy_states', 'observed_at', if_not_exists => TRUE, migrate_data => TRUE);",

		"ALTER TABLE charging_sessions DROP CONSTRAINT IF EXISTS charging_sessions_ended_after_start;",
		"ALTER TABLE charging_sessions " +
			"ADD CONSTRAINT charging_sessions_ended_after_start CHECK (ended_at IS NULL OR ended_at >= started_at);",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
