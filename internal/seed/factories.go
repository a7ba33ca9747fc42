// Package seed provides helpers to create demo accounts, recipes and
// reviews in a development database. These helpers are intended for
// development and testing only.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"recipebox/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "password123"

// Categories are the recipe categories the factory draws from.
var Categories = []string{"Breakfast", "Lunch", "Dinner", "Dessert", "Snack", "Drink"}

// curated public YouTube IDs used for recipe videos
var youtubeIDs = []string{"dQw4w9WgXcQ", "9bZkp7q19f0", "3JZ_D3ELwOQ", "L_jWHffIx5E", "kXYiU_JCYtU"}

var units = []string{"cup", "tbsp", "tsp", "g", "handful", "pinch", "clove"}

// Factory builds domain entities and persists them to the database.
// It is a thin helper used by the Seeder and tests.
type Factory struct {
	db           *gorm.DB
	faker        *gofakeit.Faker
	passwordHash string
	maxDays      int
	seq          int
}

// NewFactory creates a Factory bound to db. The demo password is hashed
// once; FastHash uses the minimum bcrypt cost.
func NewFactory(db *gorm.DB, opts Options) (*Factory, error) {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	cost := bcrypt.DefaultCost
	if opts.FastHash {
		cost = bcrypt.MinCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}
	maxDays := opts.MaxDays
	if maxDays <= 0 {
		maxDays = 90
	}
	return &Factory{
		db:           db,
		faker:        gofakeit.New(seed),
		passwordHash: string(hash),
		maxDays:      maxDays,
	}, nil
}

// chance reports true pct percent of the time.
func (f *Factory) chance(pct int) bool {
	return f.faker.Number(1, 100) <= pct
}

// pastTime returns a time within the last maxDays days.
func (f *Factory) pastTime() time.Time {
	back := time.Duration(f.faker.Number(0, f.maxDays*24*60)) * time.Minute
	return time.Now().Add(-back)
}

// BuildUser constructs an unsaved, unapproved account. Usernames carry a
// sequence number so a run never collides with itself.
func (f *Factory) BuildUser(overrides ...func(*models.User)) *models.User {
	f.seq++
	base := strings.ToLower(f.faker.Username())
	base = strings.Trim(strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' {
			return r
		}
		return -1
	}, base), "_")
	suffix := fmt.Sprintf("%d", f.seq)
	if len(base)+len(suffix) > 30 {
		base = base[:30-len(suffix)]
	}
	if base == "" {
		base = "cook"
	}
	username := base + suffix

	created := f.pastTime()
	user := &models.User{
		Username:  username,
		Email:     username + "@example.com",
		Password:  f.passwordHash,
		CreatedAt: created,
		UpdatedAt: created,
	}
	for _, override := range overrides {
		override(user)
	}
	return user
}

// CreateUser builds and persists an account.
func (f *Factory) CreateUser(ctx context.Context, overrides ...func(*models.User)) (*models.User, error) {
	user := f.BuildUser(overrides...)
	if err := f.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// dishName picks a dish for the category.
func (f *Factory) dishName(category string) string {
	switch category {
	case "Breakfast":
		return f.faker.Breakfast()
	case "Lunch":
		return f.faker.Lunch()
	case "Dinner":
		return f.faker.Dinner()
	case "Dessert":
		return f.faker.Dessert()
	case "Drink":
		return f.faker.Drink()
	default:
		return f.faker.Snack()
	}
}

func (f *Factory) ingredients() string {
	n := f.faker.Number(3, 8)
	lines := make([]string, 0, n)
	for i := range n {
		item := f.faker.Vegetable()
		if i%2 == 1 {
			item = f.faker.Fruit()
		}
		lines = append(lines, fmt.Sprintf("%d %s %s", f.faker.Number(1, 4), f.faker.RandomString(units), strings.ToLower(item)))
	}
	return strings.Join(lines, "\n")
}

func (f *Factory) instructions() string {
	n := f.faker.Number(2, 6)
	steps := make([]string, 0, n)
	for i := range n {
		steps = append(steps, fmt.Sprintf("%d. %s", i+1, f.faker.Sentence(f.faker.Number(6, 14))))
	}
	return strings.Join(steps, "\n")
}

// BuildRecipe constructs an unsaved pending recipe owned by owner.
func (f *Factory) BuildRecipe(owner *models.User, overrides ...func(*models.Recipe)) *models.Recipe {
	category := f.faker.RandomString(Categories)
	title := f.dishName(category)

	created := f.pastTime()
	if created.Before(owner.CreatedAt) {
		created = owner.CreatedAt
	}
	recipe := &models.Recipe{
		Title:        title,
		Ingredients:  f.ingredients(),
		Instructions: f.instructions(),
		Category:     category,
		ImageURL:     fmt.Sprintf("https://picsum.photos/seed/%s/800/600", f.faker.UUID()),
		UserID:       owner.ID,
		Status:       models.RecipeStatusPending,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	if f.chance(25) {
		recipe.VideoURL = "https://www.youtube.com/watch?v=" + f.faker.RandomString(youtubeIDs)
	}
	for _, override := range overrides {
		override(recipe)
	}
	return recipe
}

// CreateRecipe builds and persists a recipe.
func (f *Factory) CreateRecipe(ctx context.Context, owner *models.User, overrides ...func(*models.Recipe)) (*models.Recipe, error) {
	recipe := f.BuildRecipe(owner, overrides...)
	if err := f.db.WithContext(ctx).Create(recipe).Error; err != nil {
		return nil, err
	}
	return recipe, nil
}

// BuildReview constructs an unsaved review. Ratings lean positive the
// way real reviews do.
func (f *Factory) BuildReview(recipe *models.Recipe, reviewer *models.User) *models.Review {
	rating := f.faker.Number(3, 5)
	if f.chance(20) {
		rating = f.faker.Number(1, 2)
	}
	review := &models.Review{
		RecipeID:  recipe.ID,
		UserID:    reviewer.ID,
		Rating:    rating,
		CreatedAt: f.pastTime(),
	}
	if review.CreatedAt.Before(recipe.CreatedAt) {
		review.CreatedAt = recipe.CreatedAt
	}
	if f.chance(60) {
		review.Comment = f.faker.Sentence(f.faker.Number(4, 16))
	}
	return review
}

// CreateRecipesBatch persists recipes in batches of size.
func (f *Factory) CreateRecipesBatch(ctx context.Context, recipes []*models.Recipe, size int) error {
	if len(recipes) == 0 {
		return nil
	}
	return f.db.WithContext(ctx).CreateInBatches(recipes, size).Error
}

// CreateReviewsBatch persists reviews in batches of size.
func (f *Factory) CreateReviewsBatch(ctx context.Context, reviews []*models.Review, size int) error {
	if len(reviews) == 0 {
		return nil
	}
	return f.db.WithContext(ctx).CreateInBatches(reviews, size).Error
}
