// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"
	"time"

	"plume/internal/cache"
	"plume/internal/models"
	"plume/internal/observability"

	"gorm.io/gorm"
)

// DefaultListLimit is the canonical page size for the recent-tweets listing.
// Only listings at this limit are served from cache.
const DefaultListLimit = 50

// TweetRepository defines the interface for scheduled tweet data operations
type TweetRepository interface {
	Create(ctx context.Context, tweet *models.Tweet) error
	GetByID(ctx context.Context, id uint) (*models.Tweet, error)
	ListRecent(ctx context.Context, limit int) ([]models.Tweet, error)
	SelectDue(ctx context.Context, now time.Time) ([]models.Tweet, error)
	MarkPosted(ctx context.Context, id uint, remoteID string) error
	MarkFailed(ctx context.Context, id uint, reason string) error
	RecordFailure(ctx context.Context, id uint, reason string) error
}

// tweetRepository implements TweetRepository
type tweetRepository struct {
	db *gorm.DB
}

// NewTweetRepository creates a new tweet repository
func NewTweetRepository(db *gorm.DB) TweetRepository {
	return &tweetRepository{db: db}
}

func (r *tweetRepository) Create(ctx context.Context, tweet *models.Tweet) error {
	defer observability.TrackQuery("insert", "tweets")()

	err := r.db.WithContext(ctx).Create(tweet).Error
	if err == nil {
		cache.InvalidateTweetsList(ctx)
	}
	return err
}

func (r *tweetRepository) GetByID(ctx context.Context, id uint) (*models.Tweet, error) {
	defer observability.TrackQuery("select", "tweets")()

	var tweet models.Tweet
	err := cache.Aside(ctx, cache.TweetKey(id), &tweet, cache.TweetTTL, func() error {
		return r.db.WithContext(ctx).First(&tweet, id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("tweet", id)
	}
	if err != nil {
		return nil, err
	}
	return &tweet, nil
}

func (r *tweetRepository) ListRecent(ctx context.Context, limit int) ([]models.Tweet, error) {
	defer observability.TrackQuery("select", "tweets")()

	var tweets []models.Tweet
	fetch := func() error {
		return r.db.WithContext(ctx).
			Order("scheduled_at DESC").
			Limit(limit).
			Find(&tweets).Error
	}

	var err error
	if limit == DefaultListLimit {
		err = cache.Aside(ctx, cache.TweetsListKey, &tweets, cache.TweetsListTTL, fetch)
	} else {
		err = fetch()
	}
	if err != nil {
		return nil, err
	}
	return tweets, nil
}

// SelectDue returns pending tweets whose scheduled time has passed, oldest
// first. Always reads the database; the delivery loop must not act on a
// cached view.
func (r *tweetRepository) SelectDue(ctx context.Context, now time.Time) ([]models.Tweet, error) {
	defer observability.TrackQuery("select", "tweets")()

	var tweets []models.Tweet
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", models.StatusPending, now).
		Order("scheduled_at ASC").
		Find(&tweets).Error
	if err != nil {
		return nil, err
	}
	return tweets, nil
}

// MarkPosted transitions a pending tweet to posted and records the remote id.
// The status guard makes the update idempotent: a tweet already posted or
// failed is left untouched and the call reports success.
func (r *tweetRepository) MarkPosted(ctx context.Context, id uint, remoteID string) error {
	defer observability.TrackQuery("update", "tweets")()

	res := r.db.WithContext(ctx).
		Model(&models.Tweet{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(map[string]interface{}{
			"status":          models.StatusPosted,
			"posted_tweet_id": remoteID,
			"last_error":      "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		cache.InvalidateTweet(ctx, id)
	}
	return nil
}

// MarkFailed transitions a pending tweet to failed with a reason. Same
// status guard and no-op rule as MarkPosted.
func (r *tweetRepository) MarkFailed(ctx context.Context, id uint, reason string) error {
	defer observability.TrackQuery("update", "tweets")()

	res := r.db.WithContext(ctx).
		Model(&models.Tweet{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(map[string]interface{}{
			"status":     models.StatusFailed,
			"last_error": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		cache.InvalidateTweet(ctx, id)
	}
	return nil
}

// RecordFailure bumps the attempt counter and stores the latest error for a
// transient publish failure. The tweet stays pending so the next tick retries.
func (r *tweetRepository) RecordFailure(ctx context.Context, id uint, reason string) error {
	defer observability.TrackQuery("update", "tweets")()

	res := r.db.WithContext(ctx).
		Model(&models.Tweet{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + ?", 1),
			"last_error": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		cache.InvalidateTweet(ctx, id)
	}
	return nil
}
