package service

import (
	"context"
	"log/slog"
	"strings"

	"recipebox/internal/cache"
	"recipebox/internal/middleware"
	"recipebox/internal/models"
	"recipebox/internal/notifications"
	"recipebox/internal/observability"
	"recipebox/internal/repository"
	"recipebox/internal/validation"
)

// Moderation subjects and decisions used as metric labels.
const (
	subjectUser          = "user"
	subjectRecipe        = "recipe"
	subjectDeleteRequest = "delete_request"

	decisionApprove = "approve"
	decisionReject  = "reject"
	decisionDelete  = "delete"
)

// MemberDetail is an account with the recipes it owns, for the admin edit page.
type MemberDetail struct {
	User    models.User            `json:"user"`
	Recipes []models.RecipeSummary `json:"recipes"`
}

// AdminUserInput is an administrator's edit of an account.
type AdminUserInput struct {
	Username string
	Email    string
}

// ModerationService provides the administrator workflows: account approval,
// recipe approval and delete request handling.
type ModerationService struct {
	users    repository.UserRepository
	recipes  repository.RecipeRepository
	notifier notifications.Publisher
}

// NewModerationService returns a new ModerationService.
func NewModerationService(users repository.UserRepository, recipes repository.RecipeRepository, notifier notifications.Publisher) *ModerationService {
	return &ModerationService{users: users, recipes: recipes, notifier: notifier}
}

// Stats returns the dashboard totals, cached briefly in Redis when available.
func (s *ModerationService) Stats(ctx context.Context) (models.DashboardStats, error) {
	return cache.Aside(ctx, cache.DashboardStatsKey, cache.DashboardStatsTTL, s.countTotals)
}

func (s *ModerationService) countTotals(ctx context.Context) (models.DashboardStats, error) {
	var (
		stats models.DashboardStats
		err   error
	)
	if stats.ApprovedRecipes, err = s.recipes.CountApproved(ctx); err != nil {
		return stats, err
	}
	if stats.Members, err = s.users.CountApprovedMembers(ctx); err != nil {
		return stats, err
	}
	stats.Admins, err = s.users.CountAdmins(ctx)
	return stats, err
}

// ListMembers returns every non-admin account with its recipe count.
func (s *ModerationService) ListMembers(ctx context.Context) ([]models.MemberSummary, error) {
	return s.users.ListMembers(ctx)
}

// PendingUsers returns accounts awaiting approval, oldest first.
func (s *ModerationService) PendingUsers(ctx context.Context) ([]models.User, error) {
	return s.users.ListPending(ctx)
}

// PendingRecipes returns recipes awaiting approval, oldest first.
func (s *ModerationService) PendingRecipes(ctx context.Context) ([]models.Recipe, error) {
	return s.recipes.ListPending(ctx)
}

// DeleteRequests returns recipes whose owners asked for deletion.
func (s *ModerationService) DeleteRequests(ctx context.Context) ([]models.Recipe, error) {
	return s.recipes.ListDeleteRequests(ctx)
}

// ApproveUser lets a pending account log in.
func (s *ModerationService) ApproveUser(ctx context.Context, userID uint) (*models.User, error) {
	span, ctx := observability.StartServiceSpan(ctx, "ModerationService", "ApproveUser", observability.UserAttr(userID))
	defer span.End()

	user, err := s.users.Transition(ctx, userID, func(u *models.User) (repository.Action, error) {
		if u.IsAdmin || u.IsApproved {
			return repository.Keep, models.NewConflictError("User is already approved")
		}
		u.IsApproved = true
		return repository.Save, nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	s.decided(ctx, subjectUser, decisionApprove)
	s.notifyUser(ctx, user.ID, notifications.NewEvent(notifications.EventAccountApproved,
		"Your account has been approved. Welcome to RecipeBox!").WithUser(user.ID))
	return user, nil
}

// RejectUser removes a pending account.
func (s *ModerationService) RejectUser(ctx context.Context, userID uint) (*models.User, error) {
	span, ctx := observability.StartServiceSpan(ctx, "ModerationService", "RejectUser", observability.UserAttr(userID))
	defer span.End()

	user, err := s.users.Transition(ctx, userID, func(u *models.User) (repository.Action, error) {
		if u.IsAdmin || u.IsApproved {
			return repository.Keep, models.NewConflictError("Only pending accounts can be rejected")
		}
		return repository.Remove, nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	s.decided(ctx, subjectUser, decisionReject)
	return user, nil
}

// ApproveRecipe publishes a pending recipe.
func (s *ModerationService) ApproveRecipe(ctx context.Context, recipeID uint) (*models.Recipe, error) {
	span, ctx := observability.StartServiceSpan(ctx, "ModerationService", "ApproveRecipe", observability.RecipeAttr(recipeID))
	defer span.End()

	recipe, err := s.recipes.Transition(ctx, recipeID, func(r *models.Recipe) (repository.Action, error) {
		if r.IsApproved() {
			return repository.Keep, models.NewConflictError("Recipe is already approved")
		}
		r.Status = models.RecipeStatusApproved
		return repository.Save, nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	s.decided(ctx, subjectRecipe, decisionApprove)
	s.notifyUser(ctx, recipe.UserID, notifications.NewEvent(notifications.EventRecipeApproved,
		"Your recipe \""+recipe.Title+"\" has been approved.").WithRecipe(recipe.ID))
	return recipe, nil
}

// RejectRecipe deletes a pending recipe.
func (s *ModerationService) RejectRecipe(ctx context.Context, recipeID uint) (*models.Recipe, error) {
	span, ctx := observability.StartServiceSpan(ctx, "ModerationService", "RejectRecipe", observability.RecipeAttr(recipeID))
	defer span.End()

	recipe, err := s.recipes.Transition(ctx, recipeID, func(r *models.Recipe) (repository.Action, error) {
		if r.IsApproved() {
			return repository.Keep, models.NewConflictError("Only pending recipes can be rejected")
		}
		return repository.Remove, nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	s.decided(ctx, subjectRecipe, decisionReject)
	s.notifyUser(ctx, recipe.UserID, notifications.NewEvent(notifications.EventRecipeRejected,
		"Your recipe \""+recipe.Title+"\" was not approved.").WithRecipe(recipe.ID))
	return recipe, nil
}

// ApproveDelete honors an owner's delete request.
func (s *ModerationService) ApproveDelete(ctx context.Context, recipeID uint) (*models.Recipe, error) {
	span, ctx := observability.StartServiceSpan(ctx, "ModerationService", "ApproveDelete", observability.RecipeAttr(recipeID))
	defer span.End()

	recipe, err := s.recipes.Transition(ctx, recipeID, func(r *models.Recipe) (repository.Action, error) {
		if !r.DeleteRequest {
			return repository.Keep, models.NewConflictError("No deletion was requested for this recipe")
		}
		return repository.Remove, nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	s.decided(ctx, subjectDeleteRequest, decisionApprove)
	s.notifyUser(ctx, recipe.UserID, notifications.NewEvent(notifications.EventDeleteApproved,
		"Your recipe \""+recipe.Title+"\" has been deleted.").WithRecipe(recipe.ID))
	return recipe, nil
}

// RejectDelete clears a delete request and keeps the recipe.
func (s *ModerationService) RejectDelete(ctx context.Context, recipeID uint) (*models.Recipe, error) {
	span, ctx := observability.StartServiceSpan(ctx, "ModerationService", "RejectDelete", observability.RecipeAttr(recipeID))
	defer span.End()

	recipe, err := s.recipes.Transition(ctx, recipeID, func(r *models.Recipe) (repository.Action, error) {
		if !r.DeleteRequest {
			return repository.Keep, models.NewConflictError("No deletion was requested for this recipe")
		}
		r.DeleteRequest = false
		return repository.Save, nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	s.decided(ctx, subjectDeleteRequest, decisionReject)
	s.notifyUser(ctx, recipe.UserID, notifications.NewEvent(notifications.EventDeleteRejected,
		"Your request to delete \""+recipe.Title+"\" was declined.").WithRecipe(recipe.ID))
	return recipe, nil
}

// GetUser returns a non-admin account with its recipes.
func (s *ModerationService) GetUser(ctx context.Context, userID uint) (*MemberDetail, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsAdmin {
		return nil, models.NewForbiddenError("Administrator accounts cannot be managed here")
	}
	recipes, err := s.UserRecipes(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &MemberDetail{User: *user, Recipes: recipes}, nil
}

// UserRecipes lists the recipes owned by an account.
func (s *ModerationService) UserRecipes(ctx context.Context, userID uint) ([]models.RecipeSummary, error) {
	return s.recipes.ListSummariesByUser(ctx, userID)
}

// UpdateUser changes the username and email of a non-admin account.
func (s *ModerationService) UpdateUser(ctx context.Context, userID uint, in AdminUserInput) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	return s.users.Transition(ctx, userID, func(u *models.User) (repository.Action, error) {
		if u.IsAdmin {
			return repository.Keep, models.NewForbiddenError("Administrator accounts cannot be managed here")
		}
		if u.Username == username && u.Email == email {
			return repository.Keep, nil
		}
		u.Username = username
		u.Email = email
		return repository.Save, nil
	})
}

// DeleteUser removes a non-admin account with its recipes and reviews.
func (s *ModerationService) DeleteUser(ctx context.Context, userID uint) (*models.User, error) {
	span, ctx := observability.StartServiceSpan(ctx, "ModerationService", "DeleteUser", observability.UserAttr(userID))
	defer span.End()

	user, err := s.users.Transition(ctx, userID, func(u *models.User) (repository.Action, error) {
		if u.IsAdmin {
			return repository.Keep, models.NewForbiddenError("Administrator accounts cannot be deleted")
		}
		return repository.Remove, nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	s.decided(ctx, subjectUser, decisionDelete)
	return user, nil
}

// DeleteRecipe removes any recipe with its reviews.
func (s *ModerationService) DeleteRecipe(ctx context.Context, recipeID uint) (*models.Recipe, error) {
	span, ctx := observability.StartServiceSpan(ctx, "ModerationService", "DeleteRecipe", observability.RecipeAttr(recipeID))
	defer span.End()

	recipe, err := s.recipes.Transition(ctx, recipeID, func(*models.Recipe) (repository.Action, error) {
		return repository.Remove, nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	s.decided(ctx, subjectRecipe, decisionDelete)
	s.notifyUser(ctx, recipe.UserID, notifications.NewEvent(notifications.EventRecipeRemoved,
		"Your recipe \""+recipe.Title+"\" was removed by an administrator.").WithRecipe(recipe.ID))
	return recipe, nil
}

// ListAdmins returns every administrator account.
func (s *ModerationService) ListAdmins(ctx context.Context) ([]models.User, error) {
	return s.users.ListAdmins(ctx)
}

// PromoteAdmin grants administrator rights. Promoted accounts are approved
// as well so they can log in.
func (s *ModerationService) PromoteAdmin(ctx context.Context, userID uint) (*models.User, error) {
	span, ctx := observability.StartServiceSpan(ctx, "ModerationService", "PromoteAdmin", observability.UserAttr(userID))
	defer span.End()

	user, err := s.users.Transition(ctx, userID, func(u *models.User) (repository.Action, error) {
		if u.IsAdmin {
			return repository.Keep, models.NewConflictError("User is already an administrator")
		}
		u.IsAdmin = true
		u.IsApproved = true
		return repository.Save, nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	cache.Invalidate(ctx, cache.DashboardStatsKey)
	return user, nil
}

// DemoteAdmin revokes administrator rights. The last administrator cannot
// be demoted.
func (s *ModerationService) DemoteAdmin(ctx context.Context, userID uint) (*models.User, error) {
	span, ctx := observability.StartServiceSpan(ctx, "ModerationService", "DemoteAdmin", observability.UserAttr(userID))
	defer span.End()

	admins, err := s.users.CountAdmins(ctx)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	user, err := s.users.Transition(ctx, userID, func(u *models.User) (repository.Action, error) {
		if !u.IsAdmin {
			return repository.Keep, models.NewConflictError("User is not an administrator")
		}
		if admins <= 1 {
			return repository.Keep, models.NewConflictError("The last administrator cannot be demoted")
		}
		u.IsAdmin = false
		return repository.Save, nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	cache.Invalidate(ctx, cache.DashboardStatsKey)
	return user, nil
}

// decided records a decision and tells other administrators the queues moved.
func (s *ModerationService) decided(ctx context.Context, subject, decision string) {
	observability.ModerationDecisions.WithLabelValues(subject, decision).Inc()
	cache.Invalidate(ctx, cache.DashboardStatsKey)
	if err := s.notifier.PublishAdmins(ctx, notifications.NewEvent(notifications.EventQueueChanged, subject+" "+decision)); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish admin event", slog.String("error", err.Error()))
	}
}

func (s *ModerationService) notifyUser(ctx context.Context, userID uint, event notifications.Event) {
	if err := s.notifier.PublishUser(ctx, userID, event); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish user event",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()),
		)
	}
}
