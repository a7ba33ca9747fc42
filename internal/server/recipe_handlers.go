package server

import (
	"io"
	"log/slog"
	"strconv"
	"strings"

	"recipebox/internal/middleware"
	"recipebox/internal/models"
	"recipebox/internal/service"
	"recipebox/internal/session"

	"github.com/gofiber/fiber/v2"
)

const (
	recipesPerPage   = 12
	msgRecipeMissing = "Recipe not found."
)

// AddRecipePage renders the submission form.
func (s *Server) AddRecipePage(c *fiber.Ctx) error {
	return s.render(c, "add_recipe", fiber.Map{"Form": service.RecipeInput{}})
}

// AddRecipe stores a pending recipe. An uploaded image takes precedence
// over an image URL.
func (s *Server) AddRecipe(c *fiber.Ctx) error {
	ctx := c.UserContext()
	in, uploaded, err := s.recipeForm(c)
	if err != nil {
		return s.recipeFormFailed(c, err, in)
	}

	recipe, err := s.recipes.Submit(ctx, account(c).ID, in)
	if err != nil {
		s.discardUpload(c, uploaded)
		return s.recipeFormFailed(c, err, in)
	}
	middleware.Logger.InfoContext(ctx, "Recipe submitted", slog.Uint64("recipe_id", uint64(recipe.ID)))
	return redirectWithFlash(c, "/user_dashboard", session.FlashSuccess,
		"Recipe submitted! It will appear once an administrator approves it.")
}

func (s *Server) recipeFormFailed(c *fiber.Ctx, err error, in service.RecipeInput) error {
	var appErr *models.AppError
	if !asAppError(err, &appErr) {
		return err
	}
	flash(c, session.FlashError, appErr.Message)
	c.Status(models.StatusFor(err))
	return s.render(c, "add_recipe", fiber.Map{"Form": in})
}

// recipeForm reads the recipe fields and stores an uploaded image. The
// returned URL is the new upload, empty when none was stored.
func (s *Server) recipeForm(c *fiber.Ctx) (service.RecipeInput, string, error) {
	in := service.RecipeInput{
		Title:        c.FormValue("title"),
		Ingredients:  c.FormValue("ingredients"),
		Instructions: c.FormValue("instructions"),
		Category:     c.FormValue("category"),
		ImageURL:     strings.TrimSpace(c.FormValue("image_url")),
		VideoURL:     c.FormValue("video_url"),
	}

	fh, err := c.FormFile("image")
	if err != nil || fh.Size == 0 {
		return in, "", nil
	}
	f, err := fh.Open()
	if err != nil {
		return in, "", models.NewValidationError("Invalid image file")
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return in, "", models.NewValidationError("Invalid image file")
	}
	url, err := s.images.Upload(c.UserContext(), service.UploadImageInput{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Content:     content,
	})
	if err != nil {
		return in, "", err
	}
	in.ImageURL = url
	return in, url, nil
}

// discardUpload removes a stored image once no recipe shows it.
func (s *Server) discardUpload(c *fiber.Ctx, url string) {
	if url == "" {
		return
	}
	ctx := c.UserContext()
	inUse, err := s.recipes.ImageInUse(ctx, url)
	if err == nil && !inUse {
		err = s.images.Remove(url)
	}
	if err != nil {
		middleware.Logger.WarnContext(ctx, "Failed to remove upload",
			slog.String("url", url), slog.String("error", err.Error()))
	}
}

func (s *Server) discardUploads(c *fiber.Ctx, urls []string) {
	for _, url := range urls {
		s.discardUpload(c, url)
	}
}

// ViewRecipes lists approved recipes newest first, a page at a time.
func (s *Server) ViewRecipes(c *fiber.Ctx) error {
	ctx := c.UserContext()
	page := max(c.QueryInt("page", 1), 1)

	recipes, err := s.recipes.ListApproved(ctx, recipesPerPage, (page-1)*recipesPerPage)
	if err != nil {
		return err
	}
	total, err := s.recipes.CountApproved(ctx)
	if err != nil {
		return err
	}

	data := fiber.Map{
		"Recipes":  recipes,
		"HasPrev":  page > 1,
		"PrevPage": page - 1,
		"HasNext":  int64(page*recipesPerPage) < total,
		"NextPage": page + 1,
	}
	if id := identity(c); id != nil && !id.IsAdmin {
		mine, err := s.recipes.ListMine(ctx, id.UserID)
		if err != nil {
			return err
		}
		data["Mine"] = mine
	}
	return s.render(c, "view_recipes", data)
}

// ShowRecipe renders a recipe with its reviews. Pending recipes are only
// shown to their owner and administrators.
func (s *Server) ShowRecipe(c *fiber.Ctx) error {
	ctx := c.UserContext()
	recipeID, ok := routeID(c)
	if !ok {
		return redirectWithFlash(c, "/view_recipes", session.FlashWarning, msgRecipeMissing)
	}
	id := identity(c)

	recipe, err := s.recipes.Get(ctx, recipeID, viewerOf(id))
	if err != nil {
		if models.HasCode(err, models.CodeNotFound) {
			return redirectWithFlash(c, "/view_recipes", session.FlashWarning, msgRecipeMissing)
		}
		return err
	}
	summary, err := s.reviews.Summary(ctx, recipe.ID)
	if err != nil {
		return err
	}
	reviews, err := s.reviews.ListReviews(ctx, recipe.ID)
	if err != nil {
		return err
	}

	return s.render(c, "recipe", fiber.Map{
		"Recipe":    recipe,
		"Summary":   summary,
		"Reviews":   reviews,
		"CanEdit":   isOwner(id, recipe),
		"CanReview": id != nil && recipe.IsApproved(),
	})
}

// RecipeReviews returns the reviews of an approved recipe as JSON.
func (s *Server) RecipeReviews(c *fiber.Ctx) error {
	recipeID, ok := routeID(c)
	if !ok {
		return badID(c)
	}
	ctx := c.UserContext()
	if _, err := s.recipes.Get(ctx, recipeID, service.Viewer{}); err != nil {
		return models.RespondWithError(c, models.StatusFor(err), err)
	}
	reviews, err := s.reviews.ListReviews(ctx, recipeID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	summary, err := s.reviews.Summary(ctx, recipeID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	return c.JSON(fiber.Map{"summary": summary, "reviews": reviews})
}

// AddReview posts a rating and comment on an approved recipe.
func (s *Server) AddReview(c *fiber.Ctx) error {
	recipeID, ok := routeID(c)
	if !ok {
		return redirectWithFlash(c, "/view_recipes", session.FlashWarning, msgRecipeMissing)
	}
	back := "/recipe/" + strconv.FormatUint(uint64(recipeID), 10)

	rating, err := strconv.Atoi(c.FormValue("rating"))
	if err != nil {
		return redirectWithFlash(c, back, session.FlashError, "Rating must be between 1 and 5")
	}
	_, err = s.reviews.AddReview(c.UserContext(), service.ReviewInput{
		RecipeID: recipeID,
		UserID:   account(c).ID,
		Rating:   rating,
		Comment:  c.FormValue("comment"),
	})
	if err != nil {
		if models.HasCode(err, models.CodeNotFound) {
			return redirectWithFlash(c, "/view_recipes", session.FlashWarning, msgRecipeMissing)
		}
		return flashFailure(c, err, back)
	}
	return redirectWithFlash(c, back, session.FlashSuccess, "Thanks for your review!")
}

// EditRecipePage renders the owner's edit form.
func (s *Server) EditRecipePage(c *fiber.Ctx) error {
	recipe, err := s.ownedRecipe(c)
	if err != nil || recipe == nil {
		return err
	}
	return s.render(c, "edit_recipe", fiber.Map{"Recipe": recipe})
}

// EditRecipe saves the owner's changes. A replaced upload is removed.
func (s *Server) EditRecipe(c *fiber.Ctx) error {
	recipe, err := s.ownedRecipe(c)
	if err != nil || recipe == nil {
		return err
	}
	previousImage := recipe.ImageURL

	in, uploaded, err := s.recipeForm(c)
	if err == nil {
		if in.ImageURL == "" {
			in.ImageURL = previousImage
		}
		var updated *models.Recipe
		updated, err = s.recipes.Update(c.UserContext(), recipe.ID, account(c).ID, in)
		if err == nil {
			if updated.ImageURL != previousImage {
				s.discardUpload(c, previousImage)
			}
			return redirectWithFlash(c, "/recipe/"+strconv.FormatUint(uint64(recipe.ID), 10),
				session.FlashSuccess, "Recipe updated.")
		}
		s.discardUpload(c, uploaded)
	}

	var appErr *models.AppError
	if !asAppError(err, &appErr) {
		return err
	}
	if appErr.Code == models.CodeNotFound {
		return redirectWithFlash(c, "/user_dashboard", session.FlashWarning, msgRecipeMissing)
	}
	flash(c, session.FlashError, appErr.Message)
	c.Status(models.StatusFor(err))
	form := *recipe
	form.Title, form.Ingredients, form.Instructions = in.Title, in.Ingredients, in.Instructions
	form.Category, form.VideoURL = in.Category, in.VideoURL
	return s.render(c, "edit_recipe", fiber.Map{"Recipe": &form})
}

// DeleteRecipe asks an administrator to remove an owned recipe.
func (s *Server) DeleteRecipe(c *fiber.Ctx) error {
	recipeID, ok := routeID(c)
	if !ok {
		return redirectWithFlash(c, "/user_dashboard", session.FlashWarning, msgRecipeMissing)
	}
	if _, err := s.recipes.RequestDelete(c.UserContext(), recipeID, account(c).ID); err != nil {
		return flashFailure(c, err, "/user_dashboard")
	}
	return redirectWithFlash(c, "/user_dashboard", session.FlashInfo,
		"Deletion requested. An administrator will review it.")
}

// ownedRecipe loads the :id recipe for its owner. When the recipe is
// missing or owned by someone else it redirects and returns a nil recipe.
func (s *Server) ownedRecipe(c *fiber.Ctx) (*models.Recipe, error) {
	recipeID, ok := routeID(c)
	if !ok {
		return nil, redirectWithFlash(c, "/user_dashboard", session.FlashWarning, msgRecipeMissing)
	}
	recipe, err := s.recipes.GetOwned(c.UserContext(), recipeID, account(c).ID)
	if err != nil {
		if models.HasCode(err, models.CodeNotFound) {
			return nil, redirectWithFlash(c, "/user_dashboard", session.FlashWarning, msgRecipeMissing)
		}
		return nil, err
	}
	return recipe, nil
}
