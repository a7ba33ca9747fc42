package server

import (
	"recipebox/internal/models"
	"recipebox/internal/service"

	"github.com/gofiber/fiber/v2"
)

const apiDefaultPageSize = 20

// IssueToken handles POST /api/auth/token
// @Summary Issue an API token
// @Description Exchange the credentials of an approved account for a JWT
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Login credentials"
// @Success 200 {object} object{token=string,expires_at=string,user=models.User}
// @Failure 400 {object} object{error=string}
// @Failure 401 {object} object{error=string}
// @Failure 403 {object} object{error=string}
// @Router /auth/token [post]
func (s *Server) IssueToken(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if req.Email == "" || req.Password == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Email and password are required"))
	}

	user, err := s.accounts.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return models.RespondWithError(c, models.StatusFor(err), err)
	}
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"token":      token,
		"expires_at": expiresAt,
		"user":       user,
	})
}

// APIListRecipes handles GET /api/recipes
// @Summary List recipes
// @Description Approved recipes newest first with creator and rating stats
// @Tags recipes
// @Produce json
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} object{recipes=[]models.Recipe,total=int,limit=int,offset=int}
// @Router /recipes [get]
func (s *Server) APIListRecipes(c *fiber.Ctx) error {
	ctx := c.UserContext()
	page := pageParams(c, apiDefaultPageSize)

	recipes, err := s.recipes.ListApproved(ctx, page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	total, err := s.recipes.CountApproved(ctx)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	if recipes == nil {
		recipes = []models.Recipe{}
	}

	return c.JSON(fiber.Map{
		"recipes": recipes,
		"total":   total,
		"limit":   page.Limit,
		"offset":  page.Offset,
	})
}

// APIGetRecipe handles GET /api/recipes/:id
// @Summary Get a recipe
// @Tags recipes
// @Produce json
// @Param id path int true "Recipe ID"
// @Success 200 {object} models.Recipe
// @Failure 400 {object} object{error=string}
// @Failure 404 {object} object{error=string}
// @Router /recipes/{id} [get]
func (s *Server) APIGetRecipe(c *fiber.Ctx) error {
	recipeID, ok := routeID(c)
	if !ok {
		return badID(c)
	}
	recipe, err := s.recipes.Get(c.UserContext(), recipeID, service.Viewer{})
	if err != nil {
		return models.RespondWithError(c, models.StatusFor(err), err)
	}
	return c.JSON(recipe)
}

// APIListReviews handles GET /api/recipes/:id/reviews
// @Summary List reviews
// @Description Reviews newest first with the rounded average
// @Tags reviews
// @Produce json
// @Param id path int true "Recipe ID"
// @Success 200 {object} object{summary=models.RatingSummary,reviews=[]models.Review}
// @Failure 404 {object} object{error=string}
// @Router /recipes/{id}/reviews [get]
func (s *Server) APIListReviews(c *fiber.Ctx) error {
	return s.RecipeReviews(c)
}

// APICreateReview handles POST /api/recipes/:id/reviews
// @Summary Review a recipe
// @Tags reviews
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Recipe ID"
// @Param request body object{rating=int,comment=string} true "Review"
// @Success 201 {object} models.Review
// @Failure 400 {object} object{error=string}
// @Failure 401 {object} object{error=string}
// @Failure 404 {object} object{error=string}
// @Router /recipes/{id}/reviews [post]
func (s *Server) APICreateReview(c *fiber.Ctx) error {
	recipeID, ok := routeID(c)
	if !ok {
		return badID(c)
	}
	userID, _ := c.Locals("userID").(uint)

	var req struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	ctx := c.UserContext()
	if _, err := s.accounts.GetUser(ctx, userID); err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Account no longer exists"))
	}
	review, err := s.reviews.AddReview(ctx, service.ReviewInput{
		RecipeID: recipeID,
		UserID:   userID,
		Rating:   req.Rating,
		Comment:  req.Comment,
	})
	if err != nil {
		return models.RespondWithError(c, models.StatusFor(err), err)
	}
	return c.Status(fiber.StatusCreated).JSON(review)
}

// APIMe handles GET /api/me
// @Summary Current account
// @Tags account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 401 {object} object{error=string}
// @Failure 404 {object} object{error=string}
// @Router /me [get]
func (s *Server) APIMe(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(uint)
	user, err := s.accounts.GetUser(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithError(c, models.StatusFor(err), err)
	}
	return c.JSON(user)
}

// APIMyNotifications handles GET /api/me/notifications
// @Summary Moderation notices
// @Description The newest moderation notices for the current account
// @Tags account
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of notices" default(20)
// @Success 200 {array} notifications.Event
// @Failure 401 {object} object{error=string}
// @Router /me/notifications [get]
func (s *Server) APIMyNotifications(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(uint)
	page := pageParams(c, apiDefaultPageSize)

	events, err := s.notifier.Inbox(c.UserContext(), userID, page.Limit)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}
	if events == nil {
		return c.JSON([]any{})
	}
	return c.JSON(events)
}
