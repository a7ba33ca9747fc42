package seed

import (
	"context"
	"fmt"
	"log/slog"

	"recipebox/internal/middleware"
	"recipebox/internal/models"

	"gorm.io/gorm"
)

// Options configures a seeding run.
type Options struct {
	Users            int
	Recipes          int
	ReviewsPerRecipe int
	// Clean removes existing recipes, reviews and non-admin accounts first.
	Clean bool

	BatchSize int
	MaxDays   int
	// FastHash hashes the demo password at the minimum bcrypt cost.
	FastHash bool
	// Seed makes a run reproducible. Zero picks a time-based seed.
	Seed int64
}

// Result counts what a run created.
type Result struct {
	Users   int
	Recipes int
	Reviews int
}

// Seeder fills a development database.
type Seeder struct {
	db      *gorm.DB
	opts    Options
	factory *Factory
}

// NewSeeder returns a Seeder writing to db.
func NewSeeder(db *gorm.DB, opts Options) (*Seeder, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	factory, err := NewFactory(db, opts)
	if err != nil {
		return nil, err
	}
	return &Seeder{db: db, opts: opts, factory: factory}, nil
}

// Run creates the accounts, then the recipes, then the reviews. Most
// accounts are approved; recipes are a mix of approved, pending and
// delete-requested; only approved recipes receive reviews, never from
// their owner.
func (s *Seeder) Run(ctx context.Context) (*Result, error) {
	log := middleware.Logger
	log.InfoContext(ctx, "Starting database seeding",
		slog.Int("users", s.opts.Users),
		slog.Int("recipes", s.opts.Recipes),
		slog.Int("reviews_per_recipe", s.opts.ReviewsPerRecipe),
	)

	if s.opts.Clean {
		if err := s.clean(ctx); err != nil {
			return nil, fmt.Errorf("clean: %w", err)
		}
	}

	users, err := s.seedUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("users: %w", err)
	}
	recipes, err := s.seedRecipes(ctx, users)
	if err != nil {
		return nil, fmt.Errorf("recipes: %w", err)
	}
	reviews, err := s.seedReviews(ctx, users, recipes)
	if err != nil {
		return nil, fmt.Errorf("reviews: %w", err)
	}

	result := &Result{Users: len(users), Recipes: len(recipes), Reviews: reviews}
	log.InfoContext(ctx, "Database seeding completed",
		slog.Int("users", result.Users),
		slog.Int("recipes", result.Recipes),
		slog.Int("reviews", result.Reviews),
	)
	return result, nil
}

// clean keeps administrators so the bootstrap account survives.
func (s *Seeder) clean(ctx context.Context) error {
	middleware.Logger.InfoContext(ctx, "Clearing existing data")
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := all.Delete(&models.Review{}).Error; err != nil {
			return err
		}
		if err := all.Delete(&models.Recipe{}).Error; err != nil {
			return err
		}
		return tx.Where("is_admin = ?", false).Delete(&models.User{}).Error
	})
}

func (s *Seeder) seedUsers(ctx context.Context) ([]*models.User, error) {
	users := make([]*models.User, 0, s.opts.Users)
	for i := range s.opts.Users {
		user, err := s.factory.CreateUser(ctx, func(u *models.User) {
			// The first account is always approved so a demo login works.
			u.IsApproved = i == 0 || s.factory.chance(80)
		})
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (s *Seeder) seedRecipes(ctx context.Context, users []*models.User) ([]*models.Recipe, error) {
	if len(users) == 0 || s.opts.Recipes <= 0 {
		return nil, nil
	}
	recipes := make([]*models.Recipe, 0, s.opts.Recipes)
	for i := range s.opts.Recipes {
		owner := users[i%len(users)]
		recipes = append(recipes, s.factory.BuildRecipe(owner, func(r *models.Recipe) {
			switch n := s.factory.faker.Number(1, 10); {
			case n <= 7:
				r.Status = models.RecipeStatusApproved
			case n == 10:
				r.Status = models.RecipeStatusApproved
				r.DeleteRequest = true
			}
		}))
	}
	if err := s.factory.CreateRecipesBatch(ctx, recipes, s.opts.BatchSize); err != nil {
		return nil, err
	}
	return recipes, nil
}

func (s *Seeder) seedReviews(ctx context.Context, users []*models.User, recipes []*models.Recipe) (int, error) {
	if s.opts.ReviewsPerRecipe <= 0 {
		return 0, nil
	}
	var reviews []*models.Review
	for _, recipe := range recipes {
		if !recipe.IsApproved() {
			continue
		}
		reviewers := make([]*models.User, 0, len(users))
		for _, u := range users {
			if u.IsApproved && u.ID != recipe.UserID {
				reviewers = append(reviewers, u)
			}
		}
		if len(reviewers) == 0 {
			continue
		}
		for i := range s.opts.ReviewsPerRecipe {
			reviewer := reviewers[(int(recipe.ID)+i)%len(reviewers)]
			reviews = append(reviews, s.factory.BuildReview(recipe, reviewer))
		}
	}
	if err := s.factory.CreateReviewsBatch(ctx, reviews, s.opts.BatchSize); err != nil {
		return 0, err
	}
	return len(reviews), nil
}
