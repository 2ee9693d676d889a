// Command seed fills the store with generated demo confessions.
package main

import (
	"context"
	"flag"
	"log"

	"confessions/internal/config"
	"confessions/internal/database"
	"confessions/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()
	count := flag.Int("count", defaults.Count, "Number of confessions to create")
	pending := flag.Int("pending", defaults.PendingPercent, "Percent of confessions left in the moderation queue")
	maxDays := flag.Int("days", defaults.MaxDays, "Spread creation times over this many days")
	maxLikes := flag.Int("likes", defaults.MaxLikes, "Maximum likes per approved confession")
	clean := flag.Bool("clean", defaults.Clean, "Remove existing confessions before seeding")
	flag.Parse()

	log.Println("🌱 Confession Seeder")
	log.Printf("Target: %d confessions, %d%% pending, clean=%v\n", *count, *pending, *clean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	s := seed.NewSeeder(db, seed.Options{
		Count:          *count,
		PendingPercent: *pending,
		MaxDays:        *maxDays,
		MaxLikes:       *maxLikes,
		Clean:          *clean,
	})
	if _, err := s.SeedConfessions(context.Background()); err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("✨ All done! Running servers pick the data up on their next sync.")
}
