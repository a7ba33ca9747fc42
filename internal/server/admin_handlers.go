package server

import (
	"context"
	"log/slog"
	"strings"

	"recipebox/internal/middleware"
	"recipebox/internal/models"
	"recipebox/internal/service"
	"recipebox/internal/session"

	"github.com/gofiber/fiber/v2"
)

// AdminDashboard shows the site totals, the member list and the flags.
func (s *Server) AdminDashboard(c *fiber.Ctx) error {
	ctx := c.UserContext()
	stats, err := s.moderation.Stats(ctx)
	if err != nil {
		return err
	}
	members, err := s.moderation.ListMembers(ctx)
	if err != nil {
		return err
	}
	return s.render(c, "admin_dashboard", fiber.Map{
		"Stats":   stats,
		"Members": members,
		"Flags":   s.featureFlags.Snapshot(account(c).ID),
	})
}

// AdminRequests lists everything waiting for a decision.
func (s *Server) AdminRequests(c *fiber.Ctx) error {
	ctx := c.UserContext()
	users, err := s.moderation.PendingUsers(ctx)
	if err != nil {
		return err
	}
	recipes, err := s.moderation.PendingRecipes(ctx)
	if err != nil {
		return err
	}
	deletes, err := s.moderation.DeleteRequests(ctx)
	if err != nil {
		return err
	}
	return s.render(c, "admin_requests", fiber.Map{
		"PendingUsers":   users,
		"PendingRecipes": recipes,
		"DeleteRequests": deletes,
	})
}

// decide runs a moderation action on the :id route parameter and reports
// the outcome as a flash on the page at to.
func (s *Server) decide(c *fiber.Ctx, to string, action func(ctx context.Context, id uint) (string, error)) error {
	id, ok := routeID(c)
	if !ok {
		return redirectWithFlash(c, to, session.FlashWarning, "Invalid ID")
	}
	message, err := action(c.UserContext(), id)
	if err != nil {
		return flashFailure(c, err, to)
	}
	middleware.Logger.InfoContext(c.UserContext(), "Moderation decision",
		slog.String("path", c.Path()),
		slog.Uint64("subject_id", uint64(id)),
		slog.Uint64("admin_id", uint64(account(c).ID)),
	)
	return redirectWithFlash(c, to, session.FlashSuccess, message)
}

// ApproveUser lets a pending account log in.
func (s *Server) ApproveUser(c *fiber.Ctx) error {
	return s.decide(c, "/admin_requests", func(ctx context.Context, id uint) (string, error) {
		user, err := s.moderation.ApproveUser(ctx, id)
		if err != nil {
			return "", err
		}
		return "User " + user.Username + " approved.", nil
	})
}

// RejectUser deletes a pending account.
func (s *Server) RejectUser(c *fiber.Ctx) error {
	return s.decide(c, "/admin_requests", func(ctx context.Context, id uint) (string, error) {
		user, err := s.moderation.RejectUser(ctx, id)
		if err != nil {
			return "", err
		}
		s.discardUploads(c, user.RemovedImages)
		return "User " + user.Username + " rejected.", nil
	})
}

// ApproveRecipe publishes a pending recipe.
func (s *Server) ApproveRecipe(c *fiber.Ctx) error {
	return s.decide(c, "/admin_requests", func(ctx context.Context, id uint) (string, error) {
		recipe, err := s.moderation.ApproveRecipe(ctx, id)
		if err != nil {
			return "", err
		}
		return "Recipe " + recipe.Title + " approved.", nil
	})
}

// RejectRecipe deletes a pending recipe.
func (s *Server) RejectRecipe(c *fiber.Ctx) error {
	return s.decide(c, "/admin_requests", func(ctx context.Context, id uint) (string, error) {
		recipe, err := s.moderation.RejectRecipe(ctx, id)
		if err != nil {
			return "", err
		}
		s.discardUpload(c, recipe.ImageURL)
		return "Recipe " + recipe.Title + " rejected.", nil
	})
}

// ApproveDelete removes a recipe whose owner asked for it.
func (s *Server) ApproveDelete(c *fiber.Ctx) error {
	return s.decide(c, "/admin_requests", func(ctx context.Context, id uint) (string, error) {
		recipe, err := s.moderation.ApproveDelete(ctx, id)
		if err != nil {
			return "", err
		}
		s.discardUpload(c, recipe.ImageURL)
		return "Recipe " + recipe.Title + " deleted.", nil
	})
}

// RejectDelete clears a delete request and keeps the recipe.
func (s *Server) RejectDelete(c *fiber.Ctx) error {
	return s.decide(c, "/admin_requests", func(ctx context.Context, id uint) (string, error) {
		recipe, err := s.moderation.RejectDelete(ctx, id)
		if err != nil {
			return "", err
		}
		return "Deletion request for " + recipe.Title + " rejected.", nil
	})
}

// AdminUserRecipes returns an account's recipes as JSON.
func (s *Server) AdminUserRecipes(c *fiber.Ctx) error {
	userID, ok := routeID(c)
	if !ok {
		return badID(c)
	}
	recipes, err := s.moderation.UserRecipes(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithError(c, models.StatusFor(err), err)
	}
	return c.JSON(recipes)
}

// AdminEditUserPage renders the account edit form.
func (s *Server) AdminEditUserPage(c *fiber.Ctx) error {
	userID, ok := routeID(c)
	if !ok {
		return redirectWithFlash(c, "/admin_dashboard", session.FlashWarning, "Invalid ID")
	}
	detail, err := s.moderation.GetUser(c.UserContext(), userID)
	if err != nil {
		return flashFailure(c, err, "/admin_dashboard")
	}
	return s.render(c, "admin_edit_user", fiber.Map{"Detail": detail})
}

// AdminEditUser saves an administrator's changes to an account.
func (s *Server) AdminEditUser(c *fiber.Ctx) error {
	return s.decide(c, "/admin_dashboard", func(ctx context.Context, id uint) (string, error) {
		user, err := s.moderation.UpdateUser(ctx, id, service.AdminUserInput{
			Username: c.FormValue("username"),
			Email:    c.FormValue("email"),
		})
		if err != nil {
			return "", err
		}
		return "User " + user.Username + " updated.", nil
	})
}

// AdminDeleteUser removes an account with its recipes and reviews.
func (s *Server) AdminDeleteUser(c *fiber.Ctx) error {
	return s.decide(c, "/admin_dashboard", func(ctx context.Context, id uint) (string, error) {
		user, err := s.moderation.DeleteUser(ctx, id)
		if err != nil {
			return "", err
		}
		s.discardUploads(c, user.RemovedImages)
		return "User " + user.Username + " deleted.", nil
	})
}

// AdminDeleteRecipe removes any recipe and returns to the listing it was
// deleted from.
func (s *Server) AdminDeleteRecipe(c *fiber.Ctx) error {
	to := backTo(c, "/admin_dashboard")
	if strings.HasPrefix(to, "/recipe/") {
		to = "/admin_dashboard"
	}
	return s.decide(c, to, func(ctx context.Context, id uint) (string, error) {
		recipe, err := s.moderation.DeleteRecipe(ctx, id)
		if err != nil {
			return "", err
		}
		s.discardUpload(c, recipe.ImageURL)
		return "Recipe " + recipe.Title + " deleted.", nil
	})
}
