// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"
	"strings"

	"recipebox/internal/database"
	"recipebox/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Action is the outcome a guarded transition asks the repository to persist.
type Action int

const (
	// Keep leaves the row untouched.
	Keep Action = iota
	// Save writes the mutated row back.
	Save
	// Remove hard-deletes the row and everything that depends on it.
	Remove
)

const pgUniqueViolation = "23505"

// reader returns a context-bound session on the read replica when one is
// connected, otherwise on primary.
func reader(ctx context.Context, primary *gorm.DB) *gorm.DB {
	if database.ReadDB != nil {
		return database.ReadDB.WithContext(ctx)
	}
	return primary.WithContext(ctx)
}

// forUpdate adds a row lock on dialects that support one. SQLite serializes
// writers already.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if database.Dialect(tx) == database.DialectPostgres {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// findOne returns the first row of q, or nil when there is none.
func findOne[T any](q *gorm.DB) (*T, error) {
	var row T
	err := q.First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, models.NewInternalError(err)
	}
	return &row, nil
}

// findAll returns every row of q.
func findAll[T any](q *gorm.DB) ([]T, error) {
	var rows []T
	if err := q.Find(&rows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return rows, nil
}

func count(q *gorm.DB) (int64, error) {
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return n, nil
}

// isUniqueConstraintError reports a unique index violation from Postgres
// (SQLSTATE 23505) or SQLite.
func isUniqueConstraintError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func clampLimit(limit, fallback, ceiling int) int {
	if limit <= 0 {
		return fallback
	}
	return min(limit, ceiling)
}
