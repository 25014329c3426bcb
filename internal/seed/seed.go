// Package seed provides database seeding utilities for development and
// testing.
package seed

import (
	"fmt"
	"log"
	"strings"

	"plume/internal/models"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumTweets   int
	ShouldClean bool
	DryRun      bool
	// MaxDays bounds how far scheduled times spread into the past and future.
	MaxDays   int
	BatchSize int
}

// Seeder populates the scheduler database with demo tweets.
type Seeder struct {
	db      *gorm.DB
	opts    Options
	factory *Factory
}

// NewSeeder creates a Seeder bound to the provided Gorm DB.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	return &Seeder{db: db, opts: opts, factory: NewFactory(db, opts)}
}

// Factory exposes the underlying factory for callers that want single
// entities instead of a full run.
func (s *Seeder) Factory() *Factory {
	return s.factory
}

// ClearAll removes every tweet. Plain deletes keep this portable between
// SQLite and PostgreSQL.
func (s *Seeder) ClearAll() error {
	log.Println("Clearing existing tweets...")
	if s.opts.DryRun {
		log.Println("[dry-run] ClearAll: skipped")
		return nil
	}
	return s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Tweet{}).Error
}

// SeedTweets creates `count` tweets covering the whole lifecycle: scheduled
// for the future, already due, delivered, and failed. The split is
// deterministic so tests can rely on every state being present.
func (s *Seeder) SeedTweets(count int) ([]*models.Tweet, error) {
	log.Printf("Seeding %d tweets...", count)

	tweets := make([]*models.Tweet, 0, count)
	for i := 0; i < count; i++ {
		tweets = append(tweets, s.buildForSlot(float64(i)/float64(count)))
	}

	if err := s.factory.CreateTweetsBatch(tweets); err != nil {
		return nil, fmt.Errorf("failed to seed tweets: %w", err)
	}

	log.Printf("✓ %d tweets created", len(tweets))
	return tweets, nil
}

// buildForSlot maps a position in [0,1) to a lifecycle state: half the run
// waits in the future, a slice is already due, a quarter was delivered, and
// the rest failed.
func (s *Seeder) buildForSlot(slot float64) *models.Tweet {
	switch {
	case slot < 0.5:
		return s.factory.BuildTweet()
	case slot < 0.65:
		return s.factory.BuildTweet(s.factory.AsDue())
	case slot < 0.9:
		return s.factory.BuildTweet(s.factory.AsPosted())
	default:
		return s.factory.BuildTweet(s.factory.AsFailed())
	}
}

// ApplyPreset runs a named scenario instead of the default mix.
func (s *Seeder) ApplyPreset(name string) error {
	switch strings.ToLower(name) {
	case "backlog":
		// Every tweet is due immediately; exercises the delivery loop under load.
		log.Println("Applying preset: backlog (150 due tweets)")
		tweets := make([]*models.Tweet, 0, 150)
		for i := 0; i < 150; i++ {
			tweets = append(tweets, s.factory.BuildTweet(s.factory.AsDue()))
		}
		return s.factory.CreateTweetsBatch(tweets)
	case "showcase":
		// Balanced mix sized for demo environments.
		log.Println("Applying preset: showcase (60 mixed tweets)")
		_, err := s.SeedTweets(60)
		return err
	default:
		return fmt.Errorf("unknown preset %q (available: backlog, showcase)", name)
	}
}

// Run is the top-level entry used by the seeder command: optional cleanup,
// then the default mix.
func (s *Seeder) Run() error {
	if s.opts.ShouldClean {
		if err := s.ClearAll(); err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
	}

	count := s.opts.NumTweets
	if count <= 0 {
		count = 50
	}
	_, err := s.SeedTweets(count)
	return err
}
