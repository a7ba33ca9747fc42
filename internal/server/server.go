// Package server contains the HTML, JSON and WebSocket handlers of RecipeBox.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "recipebox/docs" // swagger docs
	"recipebox/internal/bootstrap"
	"recipebox/internal/config"
	"recipebox/internal/featureflags"
	"recipebox/internal/middleware"
	"recipebox/internal/models"
	"recipebox/internal/notifications"
	"recipebox/internal/otp"
	"recipebox/internal/repository"
	"recipebox/internal/service"
	"recipebox/internal/session"
	"recipebox/internal/views"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	fibersession "github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo   repository.UserRepository
	recipeRepo repository.RecipeRepository
	reviewRepo repository.ReviewRepository

	notifier     *notifications.Notifier
	hub          *notifications.Hub
	featureFlags *featureflags.Manager
	sessions     *fibersession.Store
	views        *views.Engine
	tokens       *middleware.TokenManager
	limiter      *middleware.RateLimiter

	accounts     *service.AccountService
	verification *service.VerificationService
	recipes      *service.RecipeService
	reviews      *service.ReviewService
	moderation   *service.ModerationService
	home         *service.HomeService
	images       *service.ImageService
}

// NewServer initializes the runtime (database, schema, Redis, default
// administrator) and builds a Server on it.
func NewServer(cfg *config.Config) (*Server, error) {
	db, rdb, err := bootstrap.InitRuntime(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, db, rdb)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// A nil Redis client runs the server with in-memory sessions and without
// live notifications.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	content, err := service.LoadHomeContent()
	if err != nil {
		return nil, fmt.Errorf("home content: %w", err)
	}

	engine := views.New()
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("recipebox"),
		userRepo:       repository.NewUserRepository(db),
		recipeRepo:     repository.NewRecipeRepository(db),
		reviewRepo:     repository.NewReviewRepository(db),
		notifier:       notifications.NewNotifier(redisClient),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		sessions:       session.NewStore(cfg, redisClient),
		views:          engine,
		tokens:         middleware.NewTokenManager(cfg.JWTSecret, time.Duration(cfg.JWTTTLHours)*time.Hour),
		limiter:        middleware.NewRateLimiter(redisClient, cfg.Env),
	}
	server.limiter.OnLimit = server.rateLimited

	issuer := otp.NewIssuer(time.Duration(cfg.OTPTTLMinutes)*time.Minute, cfg.OTPMaxAttempts)
	server.accounts = service.NewAccountService(server.userRepo)
	server.verification = service.NewVerificationService(issuer, notifications.NewMailer(cfg))
	server.recipes = service.NewRecipeService(server.recipeRepo, server.notifier)
	server.reviews = service.NewReviewService(server.reviewRepo, server.recipeRepo)
	server.moderation = service.NewModerationService(server.userRepo, server.recipeRepo, server.notifier)
	server.home = service.NewHomeService(server.recipeRepo, server.moderation, content, nil)
	server.images = service.NewImageService(cfg)

	// Live notifications need Redis pub/sub.
	if redisClient != nil {
		server.hub = notifications.NewHub()
	}

	return server, nil
}

// NewApp builds the Fiber application with middleware and routes.
func (s *Server) NewApp() *fiber.App {
	bodyLimit := s.config.BodyLimitMB
	if bodyLimit <= 0 {
		bodyLimit = 16
	}
	app := fiber.New(fiber.Config{
		AppName:      "RecipeBox",
		BodyLimit:    bodyLimit * 1024 * 1024,
		Views:        s.views,
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	if s.config.TracingEnabled {
		app.Use(middleware.TracingMiddleware())
	}

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers. Pages embed YouTube players and load Bootstrap from a CDN.
	app.Use(helmet.New(helmet.Config{
		ContentSecurityPolicy: "default-src 'self'; " +
			"style-src 'self' https://cdn.jsdelivr.net; " +
			"script-src 'self' 'unsafe-inline'; " +
			"img-src 'self' https: data:; " +
			"frame-src https://www.youtube.com; " +
			"connect-src 'self' ws: wss:",
		CrossOriginEmbedderPolicy: "unsafe-none",
	}))

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:8080,http://127.0.0.1:8080"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	perMinute := s.config.RateLimitPerMinute
	if perMinute <= 0 {
		perMinute = 100
	}
	app.Use(limiter.New(limiter.Config{
		Max:        perMinute,
		Expiration: 1 * time.Minute,
		// Preflight, probes and static files are never limited.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions ||
				strings.HasPrefix(c.Path(), "/health") ||
				strings.HasPrefix(c.Path(), service.UploadsURLPrefix)
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: s.rateLimited,
	}))

	app.Use(s.loadSession())

	if s.config.CSRFEnabled {
		app.Use(csrf.New(csrf.Config{
			KeyLookup:      "form:" + csrfFormField,
			CookieName:     "recipebox_csrf",
			CookieSameSite: "Lax",
			CookieSecure:   s.config.SessionCookieSecure,
			CookieHTTPOnly: true,
			Expiration:     time.Duration(max(s.config.SessionTTLHours, 1)) * time.Hour,
			ContextKey:     csrfContextKey,
			Storage:        csrfStorage(s.redis),
			Next: func(c *fiber.Ctx) bool {
				return !isPagePath(c.Path())
			},
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				middleware.Logger.WarnContext(c.UserContext(), "CSRF check failed",
					slog.String("path", c.Path()), slog.String("error", err.Error()))
				return s.renderError(c, fiber.StatusForbidden, "Your form expired. Please go back and try again.")
			},
		}))
	}
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	app.Static("/uploads", s.images.UploadDir(), fiber.Static{MaxAge: 86400})

	s.setupPageRoutes(app)
	s.setupAPIRoutes(app)

	app.Get("/ws/notifications", s.requireLogin, s.WebsocketHandler())
}

func (s *Server) setupPageRoutes(app *fiber.App) {
	app.Get("/", s.Home)

	// Registration and login
	app.Get("/register", s.RegisterPage)
	app.Post("/register", s.limiter.Limit("register", 5, 10*time.Minute), s.Register)
	app.Get("/signup", s.RegisterPage)
	app.Post("/signup", s.limiter.Limit("register", 5, 10*time.Minute), s.Register)
	app.Get("/verify_otp", s.VerifyOTPPage)
	app.Post("/verify_otp", s.VerifyOTP)
	app.Post("/resend_otp", s.limiter.Limit("resend_otp", 3, 10*time.Minute), s.ResendOTP)
	app.Get("/login", s.LoginPage)
	app.Post("/login", s.limiter.Limit("login", 10, 5*time.Minute), s.Login)
	app.Get("/logout", s.Logout)
	app.Get("/logoutuser", s.Logout)
	app.Get("/logoutadmin", s.Logout)

	// Member pages
	app.Get("/user_dashboard", s.requireLogin, s.UserDashboard)
	app.Get("/profile", s.requireLogin, s.ProfilePage)
	app.Post("/profile", s.requireLogin, s.UpdateProfile)
	app.Get("/verify_email_otp", s.requireLogin, s.VerifyEmailOTPPage)
	app.Post("/verify_email_otp", s.requireLogin, s.VerifyEmailOTP)

	// Recipes. Specific /recipe/:id/... routes come before /recipe/:id.
	app.Get("/add_recipe", s.requireLogin, s.AddRecipePage)
	app.Post("/add_recipe", s.requireLogin, s.limiter.Limit("add_recipe", 10, 10*time.Minute), s.AddRecipe)
	app.Get("/view_recipes", s.ViewRecipes)
	app.Post("/recipe/:id/add_review", s.requireLogin, s.limiter.Limit("add_review", 10, time.Minute), s.AddReview)
	app.Get("/recipe/:id/reviews", s.RecipeReviews)
	app.Get("/recipe/:id", s.ShowRecipe)
	app.Get("/edit_recipe/:id", s.requireLogin, s.EditRecipePage)
	app.Post("/edit_recipe/:id", s.requireLogin, s.EditRecipe)
	app.Post("/delete_recipe/:id", s.requireLogin, s.DeleteRecipe)

	// Administration
	app.Get("/admin_dashboard", s.requireAdmin, s.AdminDashboard)
	app.Get("/admin_requests", s.requireAdmin, s.AdminRequests)
	admin := app.Group("/admin")
	admin.Get("/get_user_recipes/:id", s.requireAdminJSON, s.AdminUserRecipes)
	admin.Post("/approve_user/:id", s.requireAdmin, s.ApproveUser)
	admin.Post("/reject_user/:id", s.requireAdmin, s.RejectUser)
	admin.Post("/approve_recipe/:id", s.requireAdmin, s.ApproveRecipe)
	admin.Post("/reject_recipe/:id", s.requireAdmin, s.RejectRecipe)
	admin.Post("/approve_delete/:id", s.requireAdmin, s.ApproveDelete)
	admin.Post("/reject_delete/:id", s.requireAdmin, s.RejectDelete)
	admin.Get("/edit_user/:id", s.requireAdmin, s.AdminEditUserPage)
	admin.Post("/edit_user/:id", s.requireAdmin, s.AdminEditUser)
	admin.Post("/delete_user/:id", s.requireAdmin, s.AdminDeleteUser)
	admin.Post("/delete_recipe/:id", s.requireAdmin, s.AdminDeleteRecipe)
}

func (s *Server) setupAPIRoutes(app *fiber.App) {
	api := app.Group("/api")

	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "RecipeBox Metrics Dashboard",
	}))

	// Swagger documentation
	api.Get("/swagger/*", swagger.HandlerDefault)

	api.Post("/auth/token", s.limiter.Limit("api_token", 10, 5*time.Minute), s.IssueToken)

	recipes := api.Group("/recipes")
	recipes.Get("/", s.APIListRecipes)
	recipes.Get("/:id/reviews", s.APIListReviews)
	recipes.Post("/:id/reviews", s.tokens.BearerAuth(),
		s.limiter.Limit("add_review", 10, time.Minute), s.APICreateReview)
	recipes.Get("/:id", s.APIGetRecipe)

	me := api.Group("/me", s.tokens.BearerAuth())
	me.Get("/", s.APIMe)
	me.Get("/notifications", s.APIMyNotifications)
}

// errorHandler renders failures that reach Fiber: an error page for browser
// routes and an ErrorResponse for the JSON API.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	status := models.StatusFor(err)
	message := "Something went wrong on our side. Please try again."

	var fiberErr *fiber.Error
	var appErr *models.AppError
	switch {
	case errors.As(err, &fiberErr):
		status = fiberErr.Code
		message = fiberErr.Message
	case errors.As(err, &appErr) && appErr.Code != models.CodeInternal:
		message = appErr.Message
	}

	if status >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "Request failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
	}

	if !isPagePath(c.Path()) {
		if fiberErr != nil {
			return c.Status(status).JSON(models.ErrorResponse{Error: message})
		}
		return models.RespondWithError(c, status, err)
	}
	return s.renderError(c, status, message)
}

// rateLimited answers a request rejected by a limiter.
func (s *Server) rateLimited(c *fiber.Ctx) error {
	if !isPagePath(c.Path()) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "Too many requests, please try again later.",
		})
	}
	return s.renderError(c, fiber.StatusTooManyRequests, "Too many attempts. Please wait a few minutes and try again.")
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.shutdownCtx, s.shutdownFn = context.WithCancel(context.Background())
	s.app = s.NewApp()

	if s.redis != nil && s.hub != nil {
		go func() {
			if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
				middleware.Logger.Error("Notification subscriber stopped", slog.String("error", err.Error()))
			}
		}()
	}

	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown stops the subscriber, drains HTTP, closes the sockets and then
// the stores. Failures are logged and do not stop the sequence.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"HTTP server", func() error {
			if s.app == nil {
				return nil
			}
			return s.app.ShutdownWithContext(ctx)
		}},
		{"notification sockets", func() error {
			if s.hub == nil {
				return nil
			}
			return s.hub.Shutdown(ctx)
		}},
		{"database", func() error {
			sqlDB, err := s.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		}},
		{"redis", func() error {
			if s.redis == nil {
				return nil
			}
			return s.redis.Close()
		}},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			middleware.Logger.Error("Shutdown step failed", slog.String("step", step.name), slog.String("error", err.Error()))
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
