// Command seed fills a development database with demo accounts, recipes
// and reviews.
package main

import (
	"context"
	"flag"
	"log"

	"recipebox/internal/config"
	"recipebox/internal/database"
	"recipebox/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 25, "Number of accounts to create")
	numRecipes := flag.Int("recipes", 120, "Number of recipes to create")
	numReviews := flag.Int("reviews", 4, "Reviews per approved recipe")
	shouldClean := flag.Bool("clean", true, "Remove existing recipes, reviews and non-admin accounts first")
	fastHash := flag.Bool("fast-hash", false, "Hash the demo password at the minimum bcrypt cost")
	randSeed := flag.Int64("seed", 0, "Random seed for a reproducible run (0 picks one)")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")
	log.Printf("Target: %d users, %d recipes, %d reviews per recipe, clean=%v\n", *numUsers, *numRecipes, *numReviews, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close() }()

	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	s, err := seed.NewSeeder(db, seed.Options{
		Users:            *numUsers,
		Recipes:          *numRecipes,
		ReviewsPerRecipe: *numReviews,
		Clean:            *shouldClean,
		FastHash:         *fastHash,
		Seed:             *randSeed,
	})
	if err != nil {
		log.Fatalf("❌ Seeder setup failed: %v", err)
	}

	result, err := s.Run(ctx)
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Printf("✨ All done! Created %d users, %d recipes and %d reviews.\n", result.Users, result.Recipes, result.Reviews)
	log.Printf("📧 All demo accounts have the password: %s\n", seed.DemoPassword)
}
