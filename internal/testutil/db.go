package testutil

import (
	"context"
	"fmt"
	"sync/atomic"

	"recipebox/internal/database"
	"recipebox/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultPassword is the plaintext password of every fixture account.
const DefaultPassword = "password123"

var (
	seq          atomic.Int64
	passwordHash []byte
)

func init() {
	// MinCost keeps fixture creation fast.
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	passwordHash = hash
}

// NewTestDB returns an in-memory SQLite database with all migrations applied.
// It is held to one connection so every query sees the same database.
func NewTestDB(t TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return db
}

// UserOption customizes a fixture account.
type UserOption func(u *models.User)

// Admin marks the fixture account as an approved administrator.
func Admin() UserOption {
	return func(u *models.User) {
		u.IsAdmin = true
		u.IsApproved = true
	}
}

// Approved marks the fixture account as approved.
func Approved() UserOption {
	return func(u *models.User) { u.IsApproved = true }
}

// WithEmail overrides the fixture email.
func WithEmail(email string) UserOption {
	return func(u *models.User) { u.Email = email }
}

// WithUsername overrides the fixture username.
func WithUsername(username string) UserOption {
	return func(u *models.User) { u.Username = username }
}

// CreateUser inserts an account whose password is DefaultPassword.
func CreateUser(t TB, db *gorm.DB, opts ...UserOption) *models.User {
	t.Helper()
	n := seq.Add(1)
	user := &models.User{
		Username: fmt.Sprintf("cook%d", n),
		Email:    fmt.Sprintf("cook%d@example.com", n),
		Password: string(passwordHash),
	}
	for _, opt := range opts {
		opt(user)
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// RecipeOption customizes a fixture recipe.
type RecipeOption func(r *models.Recipe)

// ApprovedRecipe marks the fixture recipe approved.
func ApprovedRecipe() RecipeOption {
	return func(r *models.Recipe) { r.Status = models.RecipeStatusApproved }
}

// DeleteRequested raises the fixture recipe's delete request flag.
func DeleteRequested() RecipeOption {
	return func(r *models.Recipe) { r.DeleteRequest = true }
}

// Titled overrides the fixture title.
func Titled(title string) RecipeOption {
	return func(r *models.Recipe) { r.Title = title }
}

// WithImage sets the fixture image URL.
func WithImage(url string) RecipeOption {
	return func(r *models.Recipe) { r.ImageURL = url }
}

// CreateRecipe inserts a pending recipe owned by owner.
func CreateRecipe(t TB, db *gorm.DB, owner *models.User, opts ...RecipeOption) *models.Recipe {
	t.Helper()
	n := seq.Add(1)
	recipe := &models.Recipe{
		Title:        fmt.Sprintf("Recipe %d", n),
		Ingredients:  "flour\nwater\nsalt",
		Instructions: "Mix and bake.",
		Category:     "Bread",
		ImageURL:     "https://example.com/bread.jpg",
		UserID:       owner.ID,
		Status:       models.RecipeStatusPending,
	}
	for _, opt := range opts {
		opt(recipe)
	}
	if err := db.Create(recipe).Error; err != nil {
		t.Fatalf("create recipe: %v", err)
	}
	return recipe
}

// CreateReview inserts a review.
func CreateReview(t TB, db *gorm.DB, recipe *models.Recipe, reviewer *models.User, rating int, comment string) *models.Review {
	t.Helper()
	review := &models.Review{RecipeID: recipe.ID, UserID: reviewer.ID, Rating: rating, Comment: comment}
	if err := db.Create(review).Error; err != nil {
		t.Fatalf("create review: %v", err)
	}
	return review
}
