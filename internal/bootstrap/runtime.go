// Package bootstrap prepares the database, Redis and the seeded
// administrator before the server or a CLI starts.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"recipebox/internal/cache"
	"recipebox/internal/config"
	"recipebox/internal/database"
	"recipebox/internal/middleware"
	"recipebox/internal/models"
	"recipebox/internal/repository"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// InitRuntime connects to the database, applies the schema, connects Redis
// and ensures an administrator exists. The Redis client is nil when Redis
// is not configured or unreachable.
func InitRuntime(ctx context.Context, cfg *config.Config) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		return nil, nil, fmt.Errorf("schema: %w", err)
	}

	// nil when Redis is not configured or unreachable.
	r := cache.Connect(ctx, cfg.RedisURL)

	if err := EnsureDefaultAdmin(ctx, cfg, db); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap default admin: %w", err)
	}

	return db, r, nil
}

// EnsureDefaultAdmin creates the configured administrator when the site has
// none. If the configured email already belongs to an account, that account
// is promoted instead. Existing administrators are never touched.
func EnsureDefaultAdmin(ctx context.Context, cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	users := repository.NewUserRepository(db)

	admins, err := users.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if admins > 0 {
		return nil
	}

	username := strings.TrimSpace(cfg.AdminUsername)
	if username == "" {
		username = "admin"
	}
	email := strings.TrimSpace(cfg.AdminEmail)
	if email == "" {
		return fmt.Errorf("ADMIN_EMAIL must be set to seed the default admin")
	}
	if cfg.AdminPassword == "" {
		return fmt.Errorf("ADMIN_PASSWORD must be set to seed the default admin")
	}

	existing, err := users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		_, err := users.Transition(ctx, existing.ID, func(u *models.User) (repository.Action, error) {
			u.IsAdmin = true
			u.IsApproved = true
			return repository.Save, nil
		})
		if err != nil {
			return err
		}
		middleware.Logger.Info("Promoted existing account to administrator", slog.String("email", email))
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	admin := &models.User{
		Username:   username,
		Email:      email,
		Password:   string(hashedPassword),
		IsAdmin:    true,
		IsApproved: true,
	}
	if err := users.Create(ctx, admin); err != nil {
		return err
	}

	middleware.Logger.Info("Default administrator created",
		slog.String("username", username), slog.String("email", email))
	return nil
}
