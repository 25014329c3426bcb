package service

import (
	"context"
	"io"
	"time"
	"unicode/utf8"

	"plume/internal/models"
	"plume/internal/twitter"
)

// MaxTweetLength is the platform's per-post limit, counted in runes. It is
// enforced at publish time for both the scheduled and the immediate path.
const MaxTweetLength = 280

// Publisher sends a finished post to the remote platform.
type Publisher interface {
	Enabled() bool
	Publish(ctx context.Context, text string, mediaIDs []string) (string, error)
}

// MediaUploader uploads one attachment and returns its remote handle.
type MediaUploader interface {
	UploadMedia(ctx context.Context, filename string, r io.Reader) (string, error)
}

// twitterPublisher publishes through the Twitter client with a per-call
// timeout and the length gate applied before any network traffic.
type twitterPublisher struct {
	client  *twitter.Client
	timeout time.Duration
}

// NewTwitterPublisher wraps a Twitter client as a Publisher.
func NewTwitterPublisher(client *twitter.Client, timeout time.Duration) Publisher {
	return &twitterPublisher{client: client, timeout: timeout}
}

func (p *twitterPublisher) Enabled() bool {
	return p.client.Enabled()
}

func (p *twitterPublisher) Publish(ctx context.Context, text string, mediaIDs []string) (string, error) {
	if !p.client.Enabled() {
		return "", models.NewNotConfiguredError()
	}
	if utf8.RuneCountInString(text) > MaxTweetLength {
		return "", models.NewValidationError("Tweet content exceeds 280 characters")
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	return p.client.CreateTweet(ctx, text, mediaIDs)
}
