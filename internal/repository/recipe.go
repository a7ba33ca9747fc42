package repository

import (
	"context"
	"errors"
	"time"

	"recipebox/internal/models"

	"gorm.io/gorm"
)

// The average is rounded to one decimal and is 0 without reviews. The cast
// keeps the column a float on both SQLite and PostgreSQL (where ROUND yields numeric).
const recipeStatsColumns = `recipes.*, users.username AS creator_username,
	CAST(COALESCE(ROUND(AVG(reviews.rating), 1), 0) AS DOUBLE PRECISION) AS avg_rating,
	COUNT(reviews.id) AS total_reviews`

// RecipeRepository defines persistence operations for recipes.
type RecipeRepository interface {
	Create(ctx context.Context, recipe *models.Recipe) error
	// GetByID returns the recipe with creator username and rating statistics.
	GetByID(ctx context.Context, id uint) (*models.Recipe, error)
	// Transition locks the recipe, lets decide mutate it and persists the
	// returned Action in one transaction.
	Transition(ctx context.Context, id uint, decide func(r *models.Recipe) (Action, error)) (*models.Recipe, error)
	ListApprovedWithStats(ctx context.Context, limit, offset int) ([]models.Recipe, error)
	CountApproved(ctx context.Context) (int64, error)
	ListByOwner(ctx context.Context, userID uint) ([]models.Recipe, error)
	ListSummariesByUser(ctx context.Context, userID uint) ([]models.RecipeSummary, error)
	ListPending(ctx context.Context) ([]models.Recipe, error)
	ListDeleteRequests(ctx context.Context) ([]models.Recipe, error)
	// CountByImage counts recipes that use an image URL.
	CountByImage(ctx context.Context, imageURL string) (int64, error)
}

type recipeRepository struct {
	db *gorm.DB
}

// NewRecipeRepository returns a new RecipeRepository implementation.
func NewRecipeRepository(db *gorm.DB) RecipeRepository {
	return &recipeRepository{db: db}
}

func withStats(db *gorm.DB) *gorm.DB {
	return db.Model(&models.Recipe{}).
		Select(recipeStatsColumns).
		Joins("JOIN users ON users.id = recipes.user_id").
		Joins("LEFT JOIN reviews ON reviews.recipe_id = recipes.id").
		Group("recipes.id, users.username")
}

func (r *recipeRepository) Create(ctx context.Context, recipe *models.Recipe) error {
	if recipe.Status == "" {
		recipe.Status = models.RecipeStatusPending
	}
	if err := r.db.WithContext(ctx).Create(recipe).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *recipeRepository) GetByID(ctx context.Context, id uint) (*models.Recipe, error) {
	recipe, err := findOne[models.Recipe](withStats(reader(ctx, r.db)).Where("recipes.id = ?", id))
	if err == nil && recipe == nil {
		return nil, models.NewNotFoundError("Recipe", id)
	}
	return recipe, err
}

func (r *recipeRepository) Transition(ctx context.Context, id uint, decide func(r *models.Recipe) (Action, error)) (*models.Recipe, error) {
	var recipe models.Recipe
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&recipe, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("Recipe", id)
			}
			return models.NewInternalError(err)
		}

		action, err := decide(&recipe)
		if err != nil {
			return err
		}

		switch action {
		case Save:
			recipe.UpdatedAt = time.Now()
			err := tx.Model(&models.Recipe{}).Where("id = ?", recipe.ID).Updates(map[string]interface{}{
				"title":          recipe.Title,
				"ingredients":    recipe.Ingredients,
				"instructions":   recipe.Instructions,
				"category":       recipe.Category,
				"image_url":      recipe.ImageURL,
				"video_url":      recipe.VideoURL,
				"status":         recipe.Status,
				"delete_request": recipe.DeleteRequest,
				"updated_at":     recipe.UpdatedAt,
			}).Error
			if err != nil {
				return models.NewInternalError(err)
			}
		case Remove:
			if err := tx.Where("recipe_id = ?", recipe.ID).Delete(&models.Review{}).Error; err != nil {
				return models.NewInternalError(err)
			}
			if err := tx.Delete(&models.Recipe{}, recipe.ID).Error; err != nil {
				return models.NewInternalError(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &recipe, nil
}

// ListApprovedWithStats lists approved recipes newest first. A zero limit
// returns every approved recipe.
func (r *recipeRepository) ListApprovedWithStats(ctx context.Context, limit, offset int) ([]models.Recipe, error) {
	q := withStats(reader(ctx, r.db)).
		Where("recipes.status = ?", models.RecipeStatusApproved).
		Order("recipes.id DESC")
	if limit > 0 {
		q = q.Limit(clampLimit(limit, 20, 100)).Offset(offset)
	}
	return findAll[models.Recipe](q)
}

func (r *recipeRepository) CountApproved(ctx context.Context) (int64, error) {
	return count(reader(ctx, r.db).Model(&models.Recipe{}).Where("status = ?", models.RecipeStatusApproved))
}

// CountByImage reads the primary so a just-written recipe is never missed
// before its image is removed.
func (r *recipeRepository) CountByImage(ctx context.Context, imageURL string) (int64, error) {
	return count(r.db.WithContext(ctx).Model(&models.Recipe{}).Where("image_url = ?", imageURL))
}

func (r *recipeRepository) ListByOwner(ctx context.Context, userID uint) ([]models.Recipe, error) {
	return findAll[models.Recipe](withStats(reader(ctx, r.db)).
		Where("recipes.user_id = ?", userID).
		Order("recipes.id DESC"))
}

func (r *recipeRepository) ListSummariesByUser(ctx context.Context, userID uint) ([]models.RecipeSummary, error) {
	var summaries []models.RecipeSummary
	err := reader(ctx, r.db).Model(&models.Recipe{}).
		Select("id, title, category, status").
		Where("user_id = ?", userID).
		Order("id ASC").
		Scan(&summaries).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return summaries, nil
}

func (r *recipeRepository) ListPending(ctx context.Context) ([]models.Recipe, error) {
	return findAll[models.Recipe](withStats(reader(ctx, r.db)).
		Where("recipes.status = ?", models.RecipeStatusPending).
		Order("recipes.created_at, recipes.id"))
}

func (r *recipeRepository) ListDeleteRequests(ctx context.Context) ([]models.Recipe, error) {
	return findAll[models.Recipe](withStats(reader(ctx, r.db)).
		Where("recipes.delete_request = ?", true).
		Order("recipes.updated_at, recipes.id"))
}
