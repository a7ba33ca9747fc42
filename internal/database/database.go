// Package database opens the GORM connections and owns the schema.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"recipebox/internal/config"
	"recipebox/internal/middleware"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Supported dialects.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

var (
	// DB is the primary connection.
	DB *gorm.DB
	// ReadDB is the read replica, nil unless DB_READ_HOST is set.
	ReadDB *gorm.DB
)

// GetReadDB returns the read replica when one is connected, otherwise the primary.
func GetReadDB() *gorm.DB {
	if ReadDB != nil {
		return ReadDB
	}
	return DB
}

// Dialect returns the dialect name of an open connection.
func Dialect(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return ""
	}
	return db.Dialector.Name()
}

func postgresDSN(host, port, user, password, name, sslMode string) string {
	if sslMode == "" {
		sslMode = "disable"
	}
	return strings.Join([]string{
		"host=" + host,
		"port=" + port,
		"user=" + user,
		"password=" + password,
		"dbname=" + name,
		"sslmode=" + sslMode,
	}, " ")
}

func sqliteDSN(path string) string {
	return path + "?_foreign_keys=on&_busy_timeout=5000"
}

// NewDialector builds the primary dialector for DB_DRIVER.
func NewDialector(cfg *config.Config) (gorm.Dialector, error) {
	switch cfg.DBDriver {
	case "", DialectSQLite:
		return sqlite.Open(sqliteDSN(cfg.DBPath)), nil
	case DialectPostgres:
		return postgres.Open(postgresDSN(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)), nil
	}
	return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
}

func open(d gorm.Dialector, cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(d, &gorm.Config{Logger: newQueryLogger()})
	if err != nil {
		return nil, err
	}
	if err := configurePool(db, cfg); err != nil {
		return nil, err
	}
	return db, nil
}

// Connect opens the primary and, for postgres with DB_READ_HOST set, the
// read replica. A replica that cannot be reached is logged and skipped.
// The schema is left alone; see ApplySchema.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	d, err := NewDialector(cfg)
	if err != nil {
		return nil, err
	}
	primary, err := open(d, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	middleware.Logger.Info("Database connected", slog.String("driver", Dialect(primary)))
	DB, ReadDB = primary, nil

	if cfg.DBDriver != DialectPostgres || cfg.DBReadHost == "" {
		return DB, nil
	}
	dsn := postgresDSN(cfg.DBReadHost, cfg.DBReadPort, cfg.DBReadUser, cfg.DBReadPassword, cfg.DBName, cfg.DBSSLMode)
	replica, err := open(postgres.Open(dsn), cfg)
	if err != nil {
		middleware.Logger.Warn("Read replica unavailable, reading from primary", slog.String("error", err.Error()))
		return DB, nil
	}
	middleware.Logger.Info("Read replica connected", slog.String("host", cfg.DBReadHost))
	ReadDB = replica
	return DB, nil
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// configurePool sizes the connection pool. SQLite serializes writers, so it
// gets exactly one connection.
func configurePool(db *gorm.DB, cfg *config.Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	if Dialect(db) == DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		return nil
	}
	sqlDB.SetMaxOpenConns(orDefault(cfg.DBMaxOpenConns, 25))
	sqlDB.SetMaxIdleConns(orDefault(cfg.DBMaxIdleConns, 5))
	sqlDB.SetConnMaxLifetime(orDefault(time.Duration(cfg.DBConnMaxLifetimeMinutes)*time.Minute, 5*time.Minute))
	return nil
}

// Ping checks the primary connection.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the replica and the primary.
func Close() error {
	var errs []error
	for _, db := range []*gorm.DB{ReadDB, DB} {
		if db == nil {
			continue
		}
		if sqlDB, err := db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
