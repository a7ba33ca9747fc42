package repository

import (
	"context"

	"recipebox/internal/models"

	"gorm.io/gorm"
)

// ReviewRepository defines persistence operations for reviews.
type ReviewRepository interface {
	Create(ctx context.Context, review *models.Review) error
	// ListByRecipe returns reviews newest first with reviewer usernames.
	ListByRecipe(ctx context.Context, recipeID uint) ([]models.Review, error)
	Summary(ctx context.Context, recipeID uint) (models.RatingSummary, error)
}

type reviewRepository struct {
	db *gorm.DB
}

// NewReviewRepository returns a new ReviewRepository implementation.
func NewReviewRepository(db *gorm.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

func (r *reviewRepository) Create(ctx context.Context, review *models.Review) error {
	if err := r.db.WithContext(ctx).Create(review).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *reviewRepository) ListByRecipe(ctx context.Context, recipeID uint) ([]models.Review, error) {
	return findAll[models.Review](reader(ctx, r.db).
		Model(&models.Review{}).
		Select("reviews.*, users.username AS reviewer_username").
		Joins("JOIN users ON users.id = reviews.user_id").
		Where("reviews.recipe_id = ?", recipeID).
		Order("reviews.created_at DESC, reviews.id DESC"))
}

func (r *reviewRepository) Summary(ctx context.Context, recipeID uint) (models.RatingSummary, error) {
	var row struct {
		AvgRating    float64
		TotalReviews int64
	}
	err := reader(ctx, r.db).
		Model(&models.Review{}).
		Select("CAST(COALESCE(ROUND(AVG(rating), 1), 0) AS DOUBLE PRECISION) AS avg_rating, COUNT(id) AS total_reviews").
		Where("recipe_id = ?", recipeID).
		Scan(&row).Error
	if err != nil {
		return models.RatingSummary{}, models.NewInternalError(err)
	}
	return models.RatingSummary{Average: row.AvgRating, Count: row.TotalReviews}, nil
}
