package service

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand/v2"
	"sync"

	"recipebox/internal/models"
	"recipebox/internal/repository"

	"gopkg.in/yaml.v3"
)

// Number of recipes drawn for each home page section.
const (
	FeaturedCount = 3
	PopularCount  = 6
)

//go:embed content/home.yml
var homeYAML []byte

// Testimonial is a quote shown on the home page.
type Testimonial struct {
	Author string `yaml:"author" json:"author"`
	Role   string `yaml:"role" json:"role"`
	Quote  string `yaml:"quote" json:"quote"`
}

// HomeContent is the static part of the home page.
type HomeContent struct {
	TotalFeatures int           `yaml:"total_features" json:"total_features"`
	Tagline       string        `yaml:"tagline" json:"tagline"`
	Testimonials  []Testimonial `yaml:"testimonials" json:"testimonials"`
}

// HomePage is everything the home page renders.
type HomePage struct {
	Featured []models.Recipe       `json:"featured"`
	Popular  []models.Recipe       `json:"popular"`
	Stats    models.DashboardStats `json:"stats"`
	Content  HomeContent           `json:"content"`
}

// StatsSource provides the dashboard totals.
type StatsSource interface {
	Stats(ctx context.Context) (models.DashboardStats, error)
}

// HomeService assembles the home page.
type HomeService struct {
	recipes repository.RecipeRepository
	stats   StatsSource
	content HomeContent

	mu  sync.Mutex
	rng *rand.Rand
}

// LoadHomeContent parses the embedded home page content.
func LoadHomeContent() (HomeContent, error) {
	var content HomeContent
	if err := yaml.Unmarshal(homeYAML, &content); err != nil {
		return HomeContent{}, fmt.Errorf("parse home content: %w", err)
	}
	return content, nil
}

// NewHomeService returns a HomeService. A nil rng uses a randomly seeded
// generator.
func NewHomeService(recipes repository.RecipeRepository, stats StatsSource, content HomeContent, rng *rand.Rand) *HomeService {
	if rng == nil {
		// #nosec G404: sampling for display does not need a CSPRNG
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &HomeService{recipes: recipes, stats: stats, content: content, rng: rng}
}

// Sample draws up to n distinct items uniformly at random. The pool is not
// modified.
func Sample[T any](rng *rand.Rand, pool []T, n int) []T {
	n = min(n, len(pool))
	if n <= 0 {
		return []T{}
	}
	picked := make([]T, len(pool))
	copy(picked, pool)
	// Partial Fisher-Yates.
	for i := range n {
		j := i + rng.IntN(len(picked)-i)
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked[:n]
}

// HomePage draws the featured and popular sections independently from all
// approved recipes, so the two may overlap.
func (s *HomeService) HomePage(ctx context.Context) (*HomePage, error) {
	approved, err := s.recipes.ListApprovedWithStats(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	stats, err := s.stats.Stats(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	featured := Sample(s.rng, approved, FeaturedCount)
	popular := Sample(s.rng, approved, PopularCount)
	s.mu.Unlock()

	return &HomePage{
		Featured: featured,
		Popular:  popular,
		Stats:    stats,
		Content:  s.content,
	}, nil
}

// Content returns the static home page content.
func (s *HomeService) Content() HomeContent {
	return s.content
}
