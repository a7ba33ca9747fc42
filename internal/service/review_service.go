package service

import (
	"context"
	"strings"

	"recipebox/internal/models"
	"recipebox/internal/observability"
	"recipebox/internal/repository"
	"recipebox/internal/validation"
)

const maxCommentLength = 2000

// ReviewService handles ratings and comments on recipes.
type ReviewService struct {
	reviews repository.ReviewRepository
	recipes repository.RecipeRepository
}

// ReviewInput is a review form.
type ReviewInput struct {
	RecipeID uint
	UserID   uint
	Rating   int
	Comment  string
}

// NewReviewService returns a ReviewService.
func NewReviewService(reviews repository.ReviewRepository, recipes repository.RecipeRepository) *ReviewService {
	return &ReviewService{reviews: reviews, recipes: recipes}
}

// AddReview records a review on an approved recipe. A user may review the
// same recipe more than once.
func (s *ReviewService) AddReview(ctx context.Context, in ReviewInput) (*models.Review, error) {
	span, ctx := observability.StartServiceSpan(ctx, "ReviewService", "AddReview",
		observability.RecipeAttr(in.RecipeID), observability.UserAttr(in.UserID))
	defer span.End()

	if err := validation.ValidateRating(in.Rating); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	comment := strings.TrimSpace(in.Comment)
	if len(comment) > maxCommentLength {
		return nil, models.NewValidationError("Comment is too long")
	}

	recipe, err := s.recipes.GetByID(ctx, in.RecipeID)
	if err != nil {
		return nil, err
	}
	if !recipe.IsApproved() {
		return nil, models.NewNotFoundError("Recipe", in.RecipeID)
	}

	review := &models.Review{
		RecipeID: in.RecipeID,
		UserID:   in.UserID,
		Rating:   in.Rating,
		Comment:  comment,
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		span.SetError(err)
		return nil, err
	}
	observability.ReviewsCreated.Inc()
	return review, nil
}

// ListReviews returns the reviews of a recipe newest first.
func (s *ReviewService) ListReviews(ctx context.Context, recipeID uint) ([]models.Review, error) {
	return s.reviews.ListByRecipe(ctx, recipeID)
}

// Summary returns the rounded average rating and review count.
func (s *ReviewService) Summary(ctx context.Context, recipeID uint) (models.RatingSummary, error) {
	return s.reviews.Summary(ctx, recipeID)
}
