package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	TweetKeyPrefix = "tweet:%d"
	TweetsListKey  = "tweets:recent"
)

const (
	// TweetsListTTL is short so the listing reflects new submissions promptly.
	TweetsListTTL = 30 * time.Second
	TweetTTL      = 5 * time.Minute
)

func TweetKey(tweetID uint) string {
	return fmt.Sprintf(TweetKeyPrefix, tweetID)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateTweetsList(ctx context.Context) {
	Invalidate(ctx, TweetsListKey)
}

func InvalidateTweet(ctx context.Context, tweetID uint) {
	Invalidate(ctx, TweetKey(tweetID))
	Invalidate(ctx, TweetsListKey)
}
