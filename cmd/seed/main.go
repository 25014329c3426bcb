// Command main runs the database seeder for Plume.
package main

import (
	"flag"
	"log"

	"plume/internal/config"
	"plume/internal/database"
	"plume/internal/seed"
)

func main() {
	// Parse command line flags
	numTweets := flag.Int("tweets", 50, "Number of tweets to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	preset := flag.String("preset", "", "Apply a specific seeder preset (backlog, showcase)")
	dryRun := flag.Bool("dry-run", false, "Log what would be created without writing")
	maxDays := flag.Int("max-days", 14, "Scheduling horizon in days")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")

	if *preset != "" {
		log.Printf("Applying preset: %s (ignoring count flags)\n", *preset)
	} else {
		log.Printf("Target: %d tweets, clean=%v dry-run=%v\n", *numTweets, *shouldClean, *dryRun)
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	s := seed.NewSeeder(db, seed.Options{
		NumTweets:   *numTweets,
		ShouldClean: *shouldClean,
		DryRun:      *dryRun,
		MaxDays:     *maxDays,
	})

	if *preset != "" {
		if *shouldClean {
			if err := s.ClearAll(); err != nil {
				log.Fatalf("❌ Cleanup failed: %v", err)
			}
		}
		if err := s.ApplyPreset(*preset); err != nil {
			log.Fatalf("❌ Preset seeding failed: %v", err)
		}
	} else {
		if err := s.Run(); err != nil {
			log.Fatalf("❌ Seeding failed: %v", err)
		}
	}

	log.Println("✨ All done! Your database is now populated with test data.")
	log.Println("⏱ Start the server with SCHEDULER_ENABLED=true to deliver due tweets.")
}
