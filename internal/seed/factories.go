package seed

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"plume/internal/models"
	"plume/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Factory builds tweets and persists them to the database. It is a thin
// helper used by seed presets and tests.
type Factory struct {
	db   *gorm.DB
	opts Options
	rng  *rand.Rand
	// synthetic ID counter when running in DryRun mode
	nextID uint
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	gofakeit.Seed(time.Now().UnixNano())
	// #nosec G404: acceptable for seeding
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Factory{db: db, opts: opts, rng: rng, nextID: 1000}
}

// BuildTweet constructs a pending tweet scheduled in the future but does not
// persist it. Optional override functions may modify the generated tweet.
func (f *Factory) BuildTweet(overrides ...func(*models.Tweet)) *models.Tweet {
	tweet := &models.Tweet{
		Content:     f.TweetContent(),
		ScheduledAt: f.futureTime(),
		Status:      models.StatusPending,
	}

	if f.rng.Float32() < 0.3 {
		tweet.ImagePaths = f.StoredImageNames(f.rng.Intn(service.MaxAttachments) + 1)
	}

	for _, override := range overrides {
		override(tweet)
	}
	return tweet
}

// CreateTweet constructs and persists a sample tweet.
func (f *Factory) CreateTweet(overrides ...func(*models.Tweet)) (*models.Tweet, error) {
	tweet := f.BuildTweet(overrides...)

	if f.opts.DryRun {
		f.nextID++
		tweet.ID = f.nextID
		log.Printf("[dry-run] CreateTweet: status=%s scheduled_at=%s content=%q",
			tweet.Status, tweet.ScheduledAt.Format(time.RFC3339), tweet.Content)
		return tweet, nil
	}

	if err := f.db.Create(tweet).Error; err != nil {
		return nil, err
	}
	return tweet, nil
}

// CreateTweetsBatch persists multiple tweets in chunked inserts.
func (f *Factory) CreateTweetsBatch(tweets []*models.Tweet) error {
	if len(tweets) == 0 {
		return nil
	}

	if f.opts.DryRun {
		for _, tweet := range tweets {
			f.nextID++
			tweet.ID = f.nextID
		}
		log.Printf("[dry-run] CreateTweetsBatch: %d tweets (no DB write)", len(tweets))
		return nil
	}

	batch := f.opts.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return f.db.CreateInBatches(tweets, batch).Error
}

// TweetContent generates post text that fits the publish length limit.
func (f *Factory) TweetContent() string {
	content := gofakeit.Sentence(f.rng.Intn(12) + 4)
	if f.rng.Float32() < 0.4 {
		tag := strings.ReplaceAll(strings.ToLower(gofakeit.BuzzWord()), " ", "")
		content = fmt.Sprintf("%s #%s", content, tag)
	}
	return TrimToTweet(content)
}

// StoredImageNames fabricates attachment references shaped like the media
// store's stored names. The files themselves are not created; the resolver
// skips missing attachments at delivery time.
func (f *Factory) StoredImageNames(n int) models.StringList {
	names := make(models.StringList, 0, n)
	for i := 0; i < n; i++ {
		names = append(names, fmt.Sprintf("%s_%s_%s.png",
			time.Now().UTC().Format("20060102_150405"),
			uuid.NewString()[:8],
			strings.ToLower(gofakeit.Word()),
		))
	}
	return names
}

// AsDue leaves the tweet pending with a scheduled time already in the past,
// so the next delivery tick picks it up.
func (f *Factory) AsDue() func(*models.Tweet) {
	return func(t *models.Tweet) {
		t.Status = models.StatusPending
		t.ScheduledAt = f.pastTime()
	}
}

// AsPosted marks the tweet delivered with a fabricated platform id.
func (f *Factory) AsPosted() func(*models.Tweet) {
	return func(t *models.Tweet) {
		t.Status = models.StatusPosted
		t.ScheduledAt = f.pastTime()
		t.PostedTweetID = fmt.Sprintf("%d", 1_400_000_000_000_000_000+f.rng.Int63n(300_000_000_000_000_000))
	}
}

// AsFailed marks the tweet failed with a plausible delivery error.
func (f *Factory) AsFailed() func(*models.Tweet) {
	return func(t *models.Tweet) {
		t.Status = models.StatusFailed
		t.ScheduledAt = f.pastTime()
		t.LastError = failureReasons[f.rng.Intn(len(failureReasons))]
		t.Attempts = f.rng.Intn(3) + 1
	}
}

var failureReasons = []string{
	"content exceeds 280 characters",
	"Failed to post tweet: connection reset by peer",
	"Failed to post tweet: twitter: 503 Service Unavailable",
	"Failed to post tweet: context deadline exceeded",
}

// TrimToTweet cuts content to the publish length limit on a rune boundary.
func TrimToTweet(content string) string {
	if utf8.RuneCountInString(content) <= service.MaxTweetLength {
		return content
	}
	return string([]rune(content)[:service.MaxTweetLength])
}

func (f *Factory) futureTime() time.Time {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 14
	}
	ahead := time.Hour + time.Duration(f.rng.Int63n(int64(time.Duration(maxDays)*24*time.Hour)))
	return time.Now().Add(ahead).Truncate(time.Minute)
}

func (f *Factory) pastTime() time.Time {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 14
	}
	back := time.Minute + time.Duration(f.rng.Int63n(int64(time.Duration(maxDays)*24*time.Hour)))
	return time.Now().Add(-back).Truncate(time.Minute)
}
