package database

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"recipebox/internal/config"
	"recipebox/internal/middleware"

	"gorm.io/gorm"
)

// Schema modes accepted in DB_SCHEMA_MODE.
const (
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
	SchemaModeHybrid = "hybrid"
)

// SchemaPlan is what ApplySchema will run for a configuration.
type SchemaPlan struct {
	Mode        string
	SQL         bool
	AutoMigrate bool
}

// PlanSchema resolves the schema mode against the environment. The SQL
// migrations are the source of truth; AutoMigrate only runs in
// production-like environments when the operator opted in explicitly.
func PlanSchema(cfg *config.Config) (SchemaPlan, error) {
	plan := SchemaPlan{Mode: cfg.DBSchemaMode}
	if plan.Mode == "" {
		plan.Mode = SchemaModeSQL
	}
	guarded := slices.Contains([]string{"production", "prod", "staging", "stage"}, cfg.Env)

	switch plan.Mode {
	case SchemaModeSQL:
		plan.SQL = true
	case SchemaModeHybrid:
		plan.SQL, plan.AutoMigrate = true, !guarded
	case SchemaModeAuto:
		if guarded && !cfg.DBAutoMigrateAllowDestructive {
			return SchemaPlan{}, fmt.Errorf("auto schema mode in %q needs DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true", cfg.Env)
		}
		plan.AutoMigrate = true
	default:
		return SchemaPlan{}, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", plan.Mode)
	}
	return plan, nil
}

// ApplySchema brings the database up to date according to DB_SCHEMA_MODE.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	plan, err := PlanSchema(cfg)
	if err != nil {
		return err
	}

	if plan.SQL {
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("sql migrations: %w", err)
		}
	}
	if !plan.AutoMigrate {
		return nil
	}

	if cfg.DBAutoMigrateAllowDestructive {
		middleware.Logger.Warn("AutoMigrate enabled with destructive changes allowed", slog.String("env", cfg.Env))
	}
	middleware.Logger.Info("Syncing models with AutoMigrate", slog.String("mode", plan.Mode))
	if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// SchemaStatus reports the plan and the migration state of a database.
type SchemaStatus struct {
	SchemaPlan
	Environment string
	Applied     []int
	Pending     []Migration
}

// GetSchemaStatus describes what ApplySchema would do without doing it.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	plan, err := PlanSchema(cfg)
	if err != nil {
		return nil, err
	}
	status := &SchemaStatus{SchemaPlan: plan, Environment: cfg.Env}
	if !plan.SQL {
		return status, nil
	}

	applied, err := newLedger(db).versions(ctx)
	if err != nil {
		return nil, err
	}
	status.Applied = applied
	status.Pending = pendingMigrations(GetMigrations(Dialect(db)), applied)
	return status, nil
}
