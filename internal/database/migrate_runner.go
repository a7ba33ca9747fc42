package database

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"recipebox/internal/middleware"

	"gorm.io/gorm"
)

// MigrationLog is one applied migration.
type MigrationLog struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	AppliedAt time.Time `gorm:"autoCreateTime;index"`
}

func (MigrationLog) TableName() string { return "migration_logs" }

// ledger reads and writes the migration_logs table.
type ledger struct {
	db *gorm.DB
}

func newLedger(db *gorm.DB) *ledger { return &ledger{db: db} }

func (l *ledger) ensure(ctx context.Context) error {
	m := l.db.WithContext(ctx).Migrator()
	if m.HasTable(&MigrationLog{}) {
		return nil
	}
	if err := m.CreateTable(&MigrationLog{}); err != nil {
		return fmt.Errorf("create migration_logs: %w", err)
	}
	return nil
}

// versions lists applied versions in ascending order. A database that was
// never migrated has none.
func (l *ledger) versions(ctx context.Context) ([]int, error) {
	if !l.db.WithContext(ctx).Migrator().HasTable(&MigrationLog{}) {
		return []int{}, nil
	}
	var out []int
	err := l.db.WithContext(ctx).Model(&MigrationLog{}).Order("version").Pluck("version", &out).Error
	if err != nil {
		return nil, fmt.Errorf("read migration_logs: %w", err)
	}
	return out, nil
}

// apply runs the up script and records it in one transaction.
func (l *ledger) apply(ctx context.Context, m Migration) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.UpScript).Error; err != nil {
			return fmt.Errorf("apply %s: %w", m.String(), err)
		}
		return tx.Create(&MigrationLog{Version: m.Version, Name: m.Name}).Error
	})
}

// revert runs the down script and forgets the version in one transaction.
func (l *ledger) revert(ctx context.Context, m Migration) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(m.DownScript).Error; err != nil {
			return fmt.Errorf("revert %s: %w", m.String(), err)
		}
		return tx.Where("version = ?", m.Version).Delete(&MigrationLog{}).Error
	})
}

func pendingMigrations(registered []Migration, applied []int) []Migration {
	var pending []Migration
	for _, m := range registered {
		if !slices.Contains(applied, m.Version) {
			pending = append(pending, m)
		}
	}
	return pending
}

// strangers are applied versions this build does not know, which happens
// when the database was migrated by a newer build.
func strangers(registered []Migration, applied []int) error {
	var unknown []string
	for _, v := range applied {
		known := slices.ContainsFunc(registered, func(m Migration) bool { return m.Version == v })
		if !known {
			unknown = append(unknown, fmt.Sprintf("%06d", v))
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	return fmt.Errorf("database has migrations this build does not know: %s", strings.Join(unknown, ", "))
}

// RunMigrations applies every pending migration of the connection's
// dialect in version order. Running it twice is a no-op.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	dialect := Dialect(db)
	registered := GetMigrations(dialect)
	if len(registered) == 0 {
		return fmt.Errorf("no migrations registered for dialect %q", dialect)
	}

	l := newLedger(db)
	if err := l.ensure(ctx); err != nil {
		return err
	}
	applied, err := l.versions(ctx)
	if err != nil {
		return err
	}
	if err := strangers(registered, applied); err != nil {
		return err
	}

	for _, m := range pendingMigrations(registered, applied) {
		if err := l.apply(ctx, m); err != nil {
			return err
		}
		middleware.Logger.Info("Migration applied", slog.String("migration", m.String()))
	}
	return nil
}

// RollbackMigration reverts one applied migration.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	m := GetMigrationByVersion(Dialect(db), version)
	if m == nil {
		return fmt.Errorf("migration %d not found", version)
	}

	l := newLedger(db)
	applied, err := l.versions(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(applied, version) {
		return fmt.Errorf("migration %d has not been applied", version)
	}

	if err := l.revert(ctx, *m); err != nil {
		return err
	}
	middleware.Logger.Info("Migration rolled back", slog.String("migration", m.String()))
	return nil
}
