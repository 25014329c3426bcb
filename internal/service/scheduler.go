package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"plume/internal/featureflags"
	"plume/internal/middleware"
	"plume/internal/models"
	"plume/internal/observability"
	"plume/internal/repository"
)

// PausePublishingFlag holds delivery back without restarting the process.
// "on" pauses every tweet; a percentage value pauses that share of the
// pending queue, bucketed by tweet id.
const PausePublishingFlag = "pause_publishing"

// VerboseTicksFlag raises per-tweet tick logging from debug to info.
const VerboseTicksFlag = "verbose_ticks"

// Scheduler drains due pending tweets on an interval and publishes them.
type Scheduler struct {
	repo      repository.TweetRepository
	resolver  *MediaResolver
	publisher Publisher
	flags     *featureflags.Manager
	interval  time.Duration

	once sync.Once
}

func NewScheduler(repo repository.TweetRepository, resolver *MediaResolver, publisher Publisher, flags *featureflags.Manager, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		repo:      repo,
		resolver:  resolver,
		publisher: publisher,
		flags:     flags,
		interval:  interval,
	}
}

// Start launches the delivery loop in a goroutine. Only the first call
// starts the loop; later calls are no-ops.
func (s *Scheduler) Start(ctx context.Context) {
	s.once.Do(func() {
		go s.run(ctx)
	})
}

// run ticks once immediately so a restart drains the backlog without waiting
// a full interval, then keeps ticking until the context is cancelled.
func (s *Scheduler) run(ctx context.Context) {
	middleware.Logger.InfoContext(ctx, "Scheduler started", slog.Duration("interval", s.interval))
	for {
		if ctx.Err() != nil {
			middleware.Logger.Info("Scheduler stopped")
			return
		}
		s.Tick(ctx)
		if !sleepContext(ctx, s.interval) {
			middleware.Logger.Info("Scheduler stopped")
			return
		}
	}
}

// Tick runs one delivery pass. Exported so tests and operator tooling can
// drive a pass without the loop.
func (s *Scheduler) Tick(ctx context.Context) {
	tickID := observability.GenerateCorrelationID()
	ctx = middleware.WithTickID(observability.WithCorrelationID(ctx, tickID), tickID)

	span, ctx := observability.NewSpan(ctx, "scheduler.tick")
	defer span.End()

	start := time.Now()
	defer func() {
		observability.SchedulerTickDuration.Observe(time.Since(start).Seconds())
	}()

	if !s.publisher.Enabled() {
		// Without credentials tweets stay pending; they are delivered once
		// the process restarts with credentials in place.
		observability.SchedulerTicksTotal.WithLabelValues("disabled").Inc()
		middleware.Logger.DebugContext(ctx, "Skipping tick, publisher disabled")
		return
	}
	if s.flags.Enabled(PausePublishingFlag, 0) {
		observability.SchedulerTicksTotal.WithLabelValues("paused").Inc()
		middleware.Logger.InfoContext(ctx, "Skipping tick, publishing paused")
		return
	}

	observability.LogAsyncOperationStart(ctx, "scheduler_tick", nil)

	due, err := s.repo.SelectDue(ctx, time.Now().UTC())
	if err != nil {
		span.SetError(err)
		observability.SchedulerTicksTotal.WithLabelValues("error").Inc()
		observability.LogAsyncOperationError(ctx, "scheduler_tick", err, nil)
		return
	}

	observability.DuePendingTweets.Set(float64(len(due)))
	span.AddAttributes(attribute.Int("due_count", len(due)))

	logTweet := middleware.Logger.DebugContext
	if s.flags.Enabled(VerboseTicksFlag, 0) {
		logTweet = middleware.Logger.InfoContext
	}

	published := 0
	for i := range due {
		t := &due[i]
		if s.flags.Enabled(PausePublishingFlag, t.ID) {
			logTweet(ctx, "Holding tweet back, publishing paused", slog.Uint64("tweet_id", uint64(t.ID)))
			continue
		}
		logTweet(ctx, "Processing due tweet",
			slog.Uint64("tweet_id", uint64(t.ID)),
			slog.Time("scheduled_at", t.ScheduledAt),
		)
		if s.processOne(ctx, t) {
			published++
		}
	}

	observability.SchedulerTicksTotal.WithLabelValues("ok").Inc()
	observability.LogAsyncOperationEnd(ctx, "scheduler_tick", map[string]interface{}{
		"due":       len(due),
		"published": published,
	})
}

// processOne publishes a single due tweet and reports whether it was posted.
// Permanent failures mark the tweet failed; transient ones record the attempt
// and leave it pending for the next tick.
func (s *Scheduler) processOne(ctx context.Context, t *models.Tweet) (posted bool) {
	defer func() {
		if r := recover(); r != nil {
			middleware.Logger.ErrorContext(ctx, "Panic while publishing tweet",
				slog.Uint64("tweet_id", uint64(t.ID)),
				slog.Any("panic", r),
			)
		}
	}()

	if utf8.RuneCountInString(t.Content) > MaxTweetLength {
		if err := s.repo.MarkFailed(ctx, t.ID, "content exceeds 280 characters"); err != nil {
			middleware.Logger.ErrorContext(ctx, "Failed to mark oversized tweet",
				slog.Uint64("tweet_id", uint64(t.ID)),
				slog.String("error", err.Error()),
			)
			return false
		}
		observability.TweetsFailedTotal.WithLabelValues("oversized").Inc()
		middleware.Logger.WarnContext(ctx, "Tweet content exceeds limit, marked failed",
			slog.Uint64("tweet_id", uint64(t.ID)),
		)
		return false
	}

	mediaIDs := s.resolver.Resolve(ctx, t.ImagePaths)

	pubStart := time.Now()
	remoteID, err := s.publisher.Publish(ctx, t.Content, mediaIDs)
	if err != nil {
		observability.PublishDuration.WithLabelValues("error").Observe(time.Since(pubStart).Seconds())
		s.handlePublishError(ctx, t, err)
		return false
	}
	observability.PublishDuration.WithLabelValues("success").Observe(time.Since(pubStart).Seconds())

	if err := s.repo.MarkPosted(ctx, t.ID, remoteID); err != nil {
		// The tweet is live; the next tick must not repost it, so this is
		// only logged and the row stays pending for operator attention.
		middleware.Logger.ErrorContext(ctx, "Tweet published but status update failed",
			slog.Uint64("tweet_id", uint64(t.ID)),
			slog.String("posted_tweet_id", remoteID),
			slog.String("error", err.Error()),
		)
		return true
	}

	observability.TweetsPublishedTotal.Inc()
	middleware.Logger.InfoContext(ctx, "Tweet published",
		slog.Uint64("tweet_id", uint64(t.ID)),
		slog.String("posted_tweet_id", remoteID),
	)
	return true
}

func (s *Scheduler) handlePublishError(ctx context.Context, t *models.Tweet, err error) {
	switch models.CodeOf(err) {
	case models.CodeNotConfigured:
		// Credentials disappeared mid-run. Leave the tweet pending.
		middleware.Logger.WarnContext(ctx, "Publisher not configured, leaving tweet pending",
			slog.Uint64("tweet_id", uint64(t.ID)),
		)
	case models.CodeValidation:
		if mErr := s.repo.MarkFailed(ctx, t.ID, err.Error()); mErr != nil {
			middleware.Logger.ErrorContext(ctx, "Failed to mark tweet failed",
				slog.Uint64("tweet_id", uint64(t.ID)),
				slog.String("error", mErr.Error()),
			)
			return
		}
		observability.TweetsFailedTotal.WithLabelValues("validation").Inc()
	default:
		if rErr := s.repo.RecordFailure(ctx, t.ID, err.Error()); rErr != nil {
			middleware.Logger.ErrorContext(ctx, "Failed to record publish failure",
				slog.Uint64("tweet_id", uint64(t.ID)),
				slog.String("error", rErr.Error()),
			)
			return
		}
		observability.PublishRetriesTotal.Inc()
		middleware.Logger.WarnContext(ctx, "Publish failed, will retry next tick",
			slog.Uint64("tweet_id", uint64(t.ID)),
			slog.Int("attempts", t.Attempts+1),
			slog.String("error", err.Error()),
		)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
