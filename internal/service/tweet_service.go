// Package service contains the business logic for scheduling and publishing
// tweets. Handlers stay thin and delegate here; the scheduler drives the same
// code path for due posts.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"plume/internal/models"
	"plume/internal/observability"
	"plume/internal/repository"
)

// MaxAttachments is the most images one tweet may carry.
const MaxAttachments = 4

// scheduledTimeLayouts are the accepted timestamp shapes after the RFC 3339
// fast path. All are interpreted in server local time.
var scheduledTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

// ParseScheduledTime parses an ISO 8601 timestamp. Values carrying an
// explicit offset keep it; naive values are interpreted in local time.
func ParseScheduledTime(value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	for _, layout := range scheduledTimeLayouts {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// ScheduleTweetInput is the request to queue a tweet for later delivery.
type ScheduleTweetInput struct {
	Content       string
	ScheduledTime string
	// ImagePaths holds stored attachment names returned by a prior upload.
	ImagePaths []string
}

// PostNowInput is the request to publish immediately, bypassing the queue.
type PostNowInput struct {
	Content    string
	ImagePaths []string
}

// TweetService coordinates validation, persistence, and publishing.
type TweetService struct {
	repo      repository.TweetRepository
	resolver  *MediaResolver
	publisher Publisher
}

func NewTweetService(repo repository.TweetRepository, resolver *MediaResolver, publisher Publisher) *TweetService {
	return &TweetService{repo: repo, resolver: resolver, publisher: publisher}
}

// Schedule validates the input and stores a pending tweet. The content length
// is deliberately not checked here; the limit is enforced at delivery so the
// stored record reflects exactly what the caller submitted.
func (s *TweetService) Schedule(ctx context.Context, input ScheduleTweetInput) (*models.Tweet, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, models.NewValidationError("Tweet content is required")
	}
	if strings.TrimSpace(input.ScheduledTime) == "" {
		return nil, models.NewValidationError("Scheduled time is required")
	}
	if len(input.ImagePaths) > MaxAttachments {
		return nil, models.NewValidationError("Maximum 4 images allowed")
	}

	scheduledAt, err := ParseScheduledTime(input.ScheduledTime)
	if err != nil {
		return nil, models.NewValidationError("Invalid date format. Use ISO format")
	}
	if !scheduledAt.After(time.Now()) {
		return nil, models.NewValidationError("Scheduled time must be in the future")
	}

	tweet := &models.Tweet{
		Content:     input.Content,
		ScheduledAt: scheduledAt,
		Status:      models.StatusPending,
		ImagePaths:  normalizeStoredNames(input.ImagePaths),
	}
	if err := s.repo.Create(ctx, tweet); err != nil {
		observability.GlobalLogger.ErrorContext(ctx, "Failed to store scheduled tweet",
			slog.String("error", err.Error()),
		)
		return nil, models.NewInternalError(err)
	}
	return tweet, nil
}

// List returns the most recently scheduled tweets, newest first.
func (s *TweetService) List(ctx context.Context) ([]models.Tweet, error) {
	return s.repo.ListRecent(ctx, repository.DefaultListLimit)
}

// Get returns a single tweet by id.
func (s *TweetService) Get(ctx context.Context, id uint) (*models.Tweet, error) {
	return s.repo.GetByID(ctx, id)
}

// PostNow publishes immediately without persisting anything. It returns the
// platform id of the created post.
func (s *TweetService) PostNow(ctx context.Context, input PostNowInput) (string, error) {
	if !s.publisher.Enabled() {
		return "", models.NewNotConfiguredError()
	}
	if strings.TrimSpace(input.Content) == "" {
		return "", models.NewValidationError("Tweet content is required")
	}
	if utf8.RuneCountInString(input.Content) > MaxTweetLength {
		return "", models.NewValidationError("Tweet content exceeds 280 characters")
	}
	if len(input.ImagePaths) > MaxAttachments {
		return "", models.NewValidationError("Maximum 4 images allowed")
	}

	mediaIDs := s.resolver.Resolve(ctx, normalizeStoredNames(input.ImagePaths))
	return s.publisher.Publish(ctx, input.Content, mediaIDs)
}

// normalizeStoredNames reduces attachment references to bare stored names so
// a caller cannot point the resolver outside the upload directory.
func normalizeStoredNames(refs []string) models.StringList {
	if len(refs) == 0 {
		return nil
	}
	names := make(models.StringList, 0, len(refs))
	for _, ref := range refs {
		base := filepath.Base(strings.ReplaceAll(ref, "\\", "/"))
		if base == "" || base == "." || base == ".." || base == "/" {
			continue
		}
		names = append(names, base)
	}
	return names
}
