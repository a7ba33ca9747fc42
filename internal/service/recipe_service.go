package service

import (
	"context"
	"log/slog"
	"strings"

	"recipebox/internal/middleware"
	"recipebox/internal/models"
	"recipebox/internal/notifications"
	"recipebox/internal/observability"
	"recipebox/internal/repository"
	"recipebox/internal/validation"
)

// RecipeService handles recipe submission and owner edits.
type RecipeService struct {
	recipes  repository.RecipeRepository
	notifier notifications.Publisher
}

// RecipeInput carries the mutable recipe fields.
type RecipeInput struct {
	Title        string
	Ingredients  string
	Instructions string
	Category     string
	ImageURL     string
	VideoURL     string
}

// Viewer is who is asking for a recipe. The zero Viewer is anonymous.
type Viewer struct {
	UserID  uint
	IsAdmin bool
}

// NewRecipeService returns a RecipeService.
func NewRecipeService(recipes repository.RecipeRepository, notifier notifications.Publisher) *RecipeService {
	return &RecipeService{recipes: recipes, notifier: notifier}
}

func (in RecipeInput) normalized() (RecipeInput, error) {
	out := RecipeInput{
		Title:        strings.TrimSpace(in.Title),
		Ingredients:  strings.TrimSpace(in.Ingredients),
		Instructions: strings.TrimSpace(in.Instructions),
		Category:     strings.TrimSpace(in.Category),
		ImageURL:     strings.TrimSpace(in.ImageURL),
		VideoURL:     strings.TrimSpace(in.VideoURL),
	}
	err := validation.Required(
		"Title", out.Title,
		"Ingredients", out.Ingredients,
		"Instructions", out.Instructions,
		"Category", out.Category,
		"Image", out.ImageURL,
	)
	if err != nil {
		return RecipeInput{}, models.NewValidationError(err.Error())
	}
	return out, nil
}

// Submit creates a pending recipe owned by ownerID.
func (s *RecipeService) Submit(ctx context.Context, ownerID uint, in RecipeInput) (*models.Recipe, error) {
	span, ctx := observability.StartServiceSpan(ctx, "RecipeService", "Submit", observability.UserAttr(ownerID))
	defer span.End()

	in, err := in.normalized()
	if err != nil {
		return nil, err
	}

	recipe := &models.Recipe{
		Title:        in.Title,
		Ingredients:  in.Ingredients,
		Instructions: in.Instructions,
		Category:     in.Category,
		ImageURL:     in.ImageURL,
		VideoURL:     in.VideoURL,
		UserID:       ownerID,
		Status:       models.RecipeStatusPending,
	}
	if err := s.recipes.Create(ctx, recipe); err != nil {
		span.SetError(err)
		return nil, err
	}
	observability.RecipesSubmitted.Inc()

	s.notifyAdmins(ctx, notifications.NewEvent(notifications.EventQueueChanged,
		"New recipe awaiting approval: "+recipe.Title).WithRecipe(recipe.ID))
	return recipe, nil
}

// Get returns a recipe the viewer may see. Pending recipes are reported as
// missing to everyone but their owner and administrators.
func (s *RecipeService) Get(ctx context.Context, id uint, viewer Viewer) (*models.Recipe, error) {
	recipe, err := s.recipes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !recipe.VisibleTo(viewer.UserID, viewer.IsAdmin) {
		return nil, models.NewNotFoundError("Recipe", id)
	}
	return recipe, nil
}

// GetOwned returns a recipe only when ownerID owns it.
func (s *RecipeService) GetOwned(ctx context.Context, id, ownerID uint) (*models.Recipe, error) {
	recipe, err := s.recipes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if recipe.UserID != ownerID {
		return nil, models.NewNotFoundError("Recipe", id)
	}
	return recipe, nil
}

// Update overwrites the mutable fields of an owned recipe. Moderation
// status and the delete request flag are left as they are.
func (s *RecipeService) Update(ctx context.Context, id, ownerID uint, in RecipeInput) (*models.Recipe, error) {
	in, err := in.normalized()
	if err != nil {
		return nil, err
	}
	return s.recipes.Transition(ctx, id, func(r *models.Recipe) (repository.Action, error) {
		if r.UserID != ownerID {
			return repository.Keep, models.NewNotFoundError("Recipe", id)
		}
		r.Title = in.Title
		r.Ingredients = in.Ingredients
		r.Instructions = in.Instructions
		r.Category = in.Category
		r.ImageURL = in.ImageURL
		r.VideoURL = in.VideoURL
		return repository.Save, nil
	})
}

// RequestDelete raises the delete request flag on an owned recipe. The
// recipe stays until an administrator approves the request.
func (s *RecipeService) RequestDelete(ctx context.Context, id, ownerID uint) (*models.Recipe, error) {
	recipe, err := s.recipes.Transition(ctx, id, func(r *models.Recipe) (repository.Action, error) {
		if r.UserID != ownerID {
			return repository.Keep, models.NewNotFoundError("Recipe", id)
		}
		if r.DeleteRequest {
			return repository.Keep, nil
		}
		r.DeleteRequest = true
		return repository.Save, nil
	})
	if err != nil {
		return nil, err
	}
	s.notifyAdmins(ctx, notifications.NewEvent(notifications.EventQueueChanged,
		"Deletion requested for: "+recipe.Title).WithRecipe(recipe.ID))
	return recipe, nil
}

// ListMine returns every recipe owned by ownerID with its moderation state.
func (s *RecipeService) ListMine(ctx context.Context, ownerID uint) ([]models.Recipe, error) {
	return s.recipes.ListByOwner(ctx, ownerID)
}

// ListApproved returns approved recipes with creator and rating stats. A
// zero limit returns all of them.
func (s *RecipeService) ListApproved(ctx context.Context, limit, offset int) ([]models.Recipe, error) {
	return s.recipes.ListApprovedWithStats(ctx, limit, offset)
}

// CountApproved returns the number of public recipes.
func (s *RecipeService) CountApproved(ctx context.Context) (int64, error) {
	return s.recipes.CountApproved(ctx)
}

// ImageInUse reports whether any recipe still shows imageURL. Uploads are
// stored by content hash, so one file can back several recipes.
func (s *RecipeService) ImageInUse(ctx context.Context, imageURL string) (bool, error) {
	n, err := s.recipes.CountByImage(ctx, imageURL)
	return n > 0, err
}

func (s *RecipeService) notifyAdmins(ctx context.Context, event notifications.Event) {
	if err := s.notifier.PublishAdmins(ctx, event); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish admin event",
			slog.Uint64("recipe_id", uint64(event.RecipeID)),
			slog.String("error", err.Error()),
		)
	}
}
