// Package bootstrap establishes runtime dependencies shared by the
// application commands.
package bootstrap

import (
	"fmt"
	"log"
	"strings"
	"time"

	"plume/internal/cache"
	"plume/internal/config"
	"plume/internal/database"
	"plume/internal/models"
	"plume/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	SeedDemo bool
}

// InitRuntime connects to DB and Redis and optionally seeds demo tweets.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	// Connect DB
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Init Redis (may result in nil client if unreachable)
	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if opts.SeedDemo {
		if err := seedDemoTweets(cfg, db); err != nil {
			return nil, nil, fmt.Errorf("failed to seed demo tweets: %w", err)
		}
	}

	reportPendingBacklog(db)

	return db, r, nil
}

// seedDemoTweets fills an empty development database with a demo mix so the
// UI and the delivery loop have something to show. Non-development
// environments and databases that already hold tweets are left untouched.
func seedDemoTweets(cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") {
		return nil
	}

	var count int64
	if err := db.Model(&models.Tweet{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	log.Println("development database is empty; seeding demo tweets")
	_, err := seed.NewSeeder(db, seed.Options{}).SeedTweets(25)
	return err
}

// reportPendingBacklog logs how many pending tweets are already overdue.
// These deliver on the first scheduler tick after startup.
func reportPendingBacklog(db *gorm.DB) {
	if db == nil {
		return
	}

	var due int64
	err := db.Model(&models.Tweet{}).
		Where("status = ? AND scheduled_at <= ?", models.StatusPending, time.Now()).
		Count(&due).Error
	if err != nil || due == 0 {
		return
	}
	log.Printf("%d pending tweets are overdue and will deliver on the next scheduler tick", due)
}
