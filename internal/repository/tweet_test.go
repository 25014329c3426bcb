package repository

import (
	"context"
	"testing"
	"time"

	"plume/internal/cache"
	"plume/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupSQLiteRepo(t *testing.T) TweetRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A second pooled connection would see its own empty in-memory database.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Tweet{}))
	return NewTweetRepository(db)
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func pendingTweet(content string, at time.Time) *models.Tweet {
	return &models.Tweet{Content: content, ScheduledAt: at, Status: models.StatusPending}
}

func TestTweetRepository_CreateAndGetByID(t *testing.T) {
	repo := setupSQLiteRepo(t)
	ctx := context.Background()

	tweet := pendingTweet("hello world", time.Now().UTC().Add(time.Hour))
	tweet.ImagePaths = models.StringList{"20250101_120000_ab12cd34_cat.png"}

	require.NoError(t, repo.Create(ctx, tweet))
	require.NotZero(t, tweet.ID)

	got, err := repo.GetByID(ctx, tweet.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got.Content)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, models.StringList{"20250101_120000_ab12cd34_cat.png"}, got.ImagePaths)
	assert.Zero(t, got.Attempts)
}

func TestTweetRepository_GetByID_NotFound(t *testing.T) {
	repo := setupSQLiteRepo(t)

	_, err := repo.GetByID(context.Background(), 4242)
	require.Error(t, err)

	appErr, ok := models.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, models.CodeNotFound, appErr.Code)
}

func TestTweetRepository_ListRecent_OrdersByScheduledAtDesc(t *testing.T) {
	repo := setupSQLiteRepo(t)
	ctx := context.Background()
	base := time.Now().UTC()

	middle := pendingTweet("middle", base.Add(2*time.Hour))
	oldest := pendingTweet("oldest", base.Add(1*time.Hour))
	newest := pendingTweet("newest", base.Add(3*time.Hour))
	for _, tw := range []*models.Tweet{middle, oldest, newest} {
		require.NoError(t, repo.Create(ctx, tw))
	}

	tweets, err := repo.ListRecent(ctx, DefaultListLimit)
	require.NoError(t, err)
	require.Len(t, tweets, 3)
	assert.Equal(t, "newest", tweets[0].Content)
	assert.Equal(t, "middle", tweets[1].Content)
	assert.Equal(t, "oldest", tweets[2].Content)

	limited, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestTweetRepository_SelectDue(t *testing.T) {
	repo := setupSQLiteRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	duePast := pendingTweet("due past", now.Add(-2*time.Hour))
	dueRecent := pendingTweet("due recent", now.Add(-time.Minute))
	future := pendingTweet("future", now.Add(time.Hour))
	posted := pendingTweet("already posted", now.Add(-3*time.Hour))
	failed := pendingTweet("already failed", now.Add(-3*time.Hour))
	for _, tw := range []*models.Tweet{duePast, dueRecent, future, posted, failed} {
		require.NoError(t, repo.Create(ctx, tw))
	}
	require.NoError(t, repo.MarkPosted(ctx, posted.ID, "111"))
	require.NoError(t, repo.MarkFailed(ctx, failed.ID, "boom"))

	due, err := repo.SelectDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "due past", due[0].Content)
	assert.Equal(t, "due recent", due[1].Content)
}

func TestTweetRepository_MarkPosted_IsIdempotent(t *testing.T) {
	repo := setupSQLiteRepo(t)
	ctx := context.Background()

	tweet := pendingTweet("publish me", time.Now().UTC().Add(-time.Minute))
	require.NoError(t, repo.Create(ctx, tweet))

	require.NoError(t, repo.MarkPosted(ctx, tweet.ID, "1234567890"))

	got, err := repo.GetByID(ctx, tweet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPosted, got.Status)
	assert.Equal(t, "1234567890", got.PostedTweetID)
	assert.Empty(t, got.LastError)
	assert.True(t, got.Posted())

	// Replays and late failure reports must not clobber the terminal state.
	require.NoError(t, repo.MarkPosted(ctx, tweet.ID, "9999999999"))
	require.NoError(t, repo.MarkFailed(ctx, tweet.ID, "too late"))

	got, err = repo.GetByID(ctx, tweet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPosted, got.Status)
	assert.Equal(t, "1234567890", got.PostedTweetID)
	assert.Empty(t, got.LastError)
}

func TestTweetRepository_MarkFailed(t *testing.T) {
	repo := setupSQLiteRepo(t)
	ctx := context.Background()

	tweet := pendingTweet("way too long", time.Now().UTC().Add(-time.Minute))
	require.NoError(t, repo.Create(ctx, tweet))

	require.NoError(t, repo.MarkFailed(ctx, tweet.ID, "content exceeds 280 characters"))

	got, err := repo.GetByID(ctx, tweet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "content exceeds 280 characters", got.LastError)
	assert.Zero(t, got.Attempts)

	due, err := repo.SelectDue(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestTweetRepository_RecordFailure_KeepsTweetPending(t *testing.T) {
	repo := setupSQLiteRepo(t)
	ctx := context.Background()

	tweet := pendingTweet("flaky network", time.Now().UTC().Add(-time.Minute))
	require.NoError(t, repo.Create(ctx, tweet))

	require.NoError(t, repo.RecordFailure(ctx, tweet.ID, "connection timeout"))
	require.NoError(t, repo.RecordFailure(ctx, tweet.ID, "rate limited"))

	got, err := repo.GetByID(ctx, tweet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, "rate limited", got.LastError)

	due, err := repo.SelectDue(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, tweet.ID, due[0].ID)
}

func TestTweetRepository_CacheAside(t *testing.T) {
	mr := miniredis.RunT(t)
	cache.InitRedis(mr.Addr())
	t.Cleanup(func() { cache.InitRedis("") })

	repo := setupSQLiteRepo(t)
	ctx := context.Background()

	first := pendingTweet("first", time.Now().UTC().Add(time.Hour))
	require.NoError(t, repo.Create(ctx, first))

	tweets, err := repo.ListRecent(ctx, DefaultListLimit)
	require.NoError(t, err)
	require.Len(t, tweets, 1)
	assert.True(t, mr.Exists(cache.TweetsListKey))

	// A new submission invalidates the cached listing.
	second := pendingTweet("second", time.Now().UTC().Add(2*time.Hour))
	require.NoError(t, repo.Create(ctx, second))
	assert.False(t, mr.Exists(cache.TweetsListKey))

	tweets, err = repo.ListRecent(ctx, DefaultListLimit)
	require.NoError(t, err)
	assert.Len(t, tweets, 2)

	// Per-tweet entries are cached on read and dropped on state changes.
	_, err = repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, mr.Exists(cache.TweetKey(first.ID)))

	require.NoError(t, repo.MarkPosted(ctx, first.ID, "42"))
	assert.False(t, mr.Exists(cache.TweetKey(first.ID)))
}

func TestTweetRepository_MarkPosted_StatusGuardSQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewTweetRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "tweets" SET .+ WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.MarkPosted(ctx, 1, "777")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTweetRepository_MarkPosted_NoRowsIsNoOp(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewTweetRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "tweets" SET .+ WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.MarkPosted(ctx, 1, "777")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTweetRepository_RecordFailure_IncrementsInSQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewTweetRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "tweets" SET "attempts"=attempts \+ \$\d+.+ WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.RecordFailure(ctx, 1, "connection timeout")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
