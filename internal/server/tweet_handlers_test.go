package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"plume/internal/media"
	"plume/internal/models"
	"plume/internal/repository"
	"plume/internal/service"
	"plume/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTweetRepository is a mock of the TweetRepository interface
type MockTweetRepository struct {
	mock.Mock
}

func (m *MockTweetRepository) Create(ctx context.Context, tweet *models.Tweet) error {
	args := m.Called(ctx, tweet)
	return args.Error(0)
}

func (m *MockTweetRepository) GetByID(ctx context.Context, id uint) (*models.Tweet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tweet), args.Error(1)
}

func (m *MockTweetRepository) ListRecent(ctx context.Context, limit int) ([]models.Tweet, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]models.Tweet), args.Error(1)
}

func (m *MockTweetRepository) SelectDue(ctx context.Context, now time.Time) ([]models.Tweet, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]models.Tweet), args.Error(1)
}

func (m *MockTweetRepository) MarkPosted(ctx context.Context, id uint, remoteID string) error {
	args := m.Called(ctx, id, remoteID)
	return args.Error(0)
}

func (m *MockTweetRepository) MarkFailed(ctx context.Context, id uint, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *MockTweetRepository) RecordFailure(ctx context.Context, id uint, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

// stubPublisher satisfies service.Publisher without touching the network.
type stubPublisher struct {
	enabled bool
	tweetID string
	err     error
	calls   int
}

func (p *stubPublisher) Enabled() bool { return p.enabled }

func (p *stubPublisher) Publish(_ context.Context, _ string, _ []string) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return p.tweetID, nil
}

type stubUploader struct{}

func (stubUploader) UploadMedia(_ context.Context, filename string, _ io.Reader) (string, error) {
	return "media-" + filename, nil
}

// newHandlerApp wires the handlers over a mocked repository, a stub publisher,
// and a real media store rooted in a per-test temp dir.
func newHandlerApp(t *testing.T, repo repository.TweetRepository, pub service.Publisher) (*fiber.App, *media.Store) {
	t.Helper()

	store, err := media.NewStore(t.TempDir(), 8*1024*1024)
	require.NoError(t, err)

	s := &Server{
		mediaStore:   store,
		tweetService: service.NewTweetService(repo, service.NewMediaResolver(store, stubUploader{}), pub),
	}

	app := fiber.New()
	app.Post("/api/schedule", s.ScheduleTweet)
	app.Get("/api/tweets", s.GetTweets)
	app.Get("/api/tweets/:id", s.GetTweet)
	app.Post("/api/post-now", s.PostTweetNow)
	app.Get("/uploads/:name", s.ServeUpload)
	return app, store
}

func decodeError(t *testing.T, body io.Reader) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	return resp
}

func TestScheduleTweet(t *testing.T) {
	mockRepo := new(MockTweetRepository)
	app, _ := newHandlerApp(t, mockRepo, &stubPublisher{enabled: true, tweetID: "1"})

	future := time.Now().Add(2 * time.Hour).Format(time.RFC3339)

	tests := []struct {
		name           string
		body           map[string]interface{}
		mockSetup      func()
		expectedStatus int
		expectedError  string
	}{
		{
			name: "Success",
			body: map[string]interface{}{"content": "Ship it", "scheduled_time": future},
			mockSetup: func() {
				mockRepo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Missing content",
			body:           map[string]interface{}{"scheduled_time": future},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Tweet content is required",
		},
		{
			name:           "Missing scheduled time",
			body:           map[string]interface{}{"content": "Ship it"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Scheduled time is required",
		},
		{
			name:           "Past scheduled time",
			body:           map[string]interface{}{"content": "Ship it", "scheduled_time": "2020-01-01T00:00:00Z"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Scheduled time must be in the future",
		},
		{
			name:           "Unparseable scheduled time",
			body:           map[string]interface{}{"content": "Ship it", "scheduled_time": "next tuesday"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Invalid date format. Use ISO format",
		},
		{
			name: "Too many images",
			body: map[string]interface{}{
				"content":        "Ship it",
				"scheduled_time": future,
				"image_paths":    []string{"a.png", "b.png", "c.png", "d.png", "e.png"},
			},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Maximum 4 images allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.mockSetup != nil {
				tt.mockSetup()
			}
			body, _ := json.Marshal(tt.body)
			req := httptest.NewRequest(http.MethodPost, "/api/schedule", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedError != "" {
				errResp := decodeError(t, resp.Body)
				assert.Equal(t, tt.expectedError, errResp.Error)
				assert.Equal(t, models.CodeValidation, errResp.Code)
			}
		})
	}
	mockRepo.AssertExpectations(t)
}

func TestScheduleTweet_ResponseBody(t *testing.T) {
	mockRepo := new(MockTweetRepository)
	app, _ := newHandlerApp(t, mockRepo, &stubPublisher{enabled: true})

	mockRepo.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Tweet).ID = 42
	}).Return(nil)

	payload, _ := json.Marshal(map[string]string{
		"content":        "Release day",
		"scheduled_time": time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/schedule", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Success bool   `json:"success"`
		ID      uint   `json:"id"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, uint(42), body.ID)
	assert.Equal(t, "Tweet scheduled successfully", body.Message)
}

func TestScheduleTweet_MalformedBody(t *testing.T) {
	mockRepo := new(MockTweetRepository)
	app, _ := newHandlerApp(t, mockRepo, &stubPublisher{enabled: true})

	req := httptest.NewRequest(http.MethodPost, "/api/schedule", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	errResp := decodeError(t, resp.Body)
	assert.Equal(t, "Invalid request body", errResp.Error)
}

func TestScheduleTweet_MultipartUpload(t *testing.T) {
	mockRepo := new(MockTweetRepository)
	app, store := newHandlerApp(t, mockRepo, &stubPublisher{enabled: true})

	var created *models.Tweet
	mockRepo.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		created = args.Get(1).(*models.Tweet)
		created.ID = 7
	}).Return(nil)

	pngBytes := testutil.TinyPNG(t, 2, 2)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("content", "With pictures"))
	require.NoError(t, w.WriteField("scheduled_time", testutil.FutureISO(time.Hour)))
	for _, name := range []string{"cat.png", "dog.png"} {
		part, err := w.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = part.Write(pngBytes)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/schedule", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NotNil(t, created)
	require.Len(t, created.ImagePaths, 2)
	assert.True(t, strings.HasSuffix(created.ImagePaths[0], "_cat.png"), created.ImagePaths[0])
	assert.True(t, strings.HasSuffix(created.ImagePaths[1], "_dog.png"), created.ImagePaths[1])

	// The stored names must resolve to real files holding the uploaded bytes.
	for _, stored := range created.ImagePaths {
		f, _, err := store.Open(stored)
		require.NoError(t, err)
		onDisk, err := io.ReadAll(f)
		require.NoError(t, err)
		require.NoError(t, f.Close())
		assert.Equal(t, pngBytes, onDisk)
	}
}

func TestScheduleTweet_MultipartBracketFieldName(t *testing.T) {
	mockRepo := new(MockTweetRepository)
	app, _ := newHandlerApp(t, mockRepo, &stubPublisher{enabled: true})

	var created *models.Tweet
	mockRepo.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		created = args.Get(1).(*models.Tweet)
	}).Return(nil)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("content", "Bracket style"))
	require.NoError(t, w.WriteField("scheduled_time", testutil.FutureISO(time.Hour)))
	part, err := w.CreateFormFile("images[]", "chart.png")
	require.NoError(t, err)
	_, err = part.Write(testutil.TinyPNG(t, 1, 1))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/schedule", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NotNil(t, created)
	require.Len(t, created.ImagePaths, 1)
	assert.True(t, strings.HasSuffix(created.ImagePaths[0], "_chart.png"), created.ImagePaths[0])
}

func TestGetTweets(t *testing.T) {
	t.Run("Returns recent tweets", func(t *testing.T) {
		mockRepo := new(MockTweetRepository)
		app, _ := newHandlerApp(t, mockRepo, &stubPublisher{})

		now := time.Now().Truncate(time.Second)
		mockRepo.On("ListRecent", mock.Anything, repository.DefaultListLimit).Return([]models.Tweet{
			{ID: 2, Content: "Already out", ScheduledAt: now, Status: models.StatusPosted, PostedTweetID: "900"},
			{ID: 1, Content: "Still waiting", ScheduledAt: now.Add(time.Hour), Status: models.StatusPending},
		}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/tweets", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got []map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		require.Len(t, got, 2)

		assert.Equal(t, float64(2), got[0]["id"])
		assert.Equal(t, true, got[0]["posted"])
		assert.Equal(t, "posted", got[0]["status"])
		assert.Equal(t, "900", got[0]["posted_tweet_id"])

		assert.Equal(t, false, got[1]["posted"])
		assert.Equal(t, "pending", got[1]["status"])
		// No attachments serializes as an empty array, not null.
		assert.Equal(t, []interface{}{}, got[1]["image_paths"])
	})

	t.Run("Repository error", func(t *testing.T) {
		mockRepo := new(MockTweetRepository)
		app, _ := newHandlerApp(t, mockRepo, &stubPublisher{})

		mockRepo.On("ListRecent", mock.Anything, repository.DefaultListLimit).
			Return([]models.Tweet(nil), assert.AnError)

		req := httptest.NewRequest(http.MethodGet, "/api/tweets", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestGetTweet(t *testing.T) {
	mockRepo := new(MockTweetRepository)
	app, _ := newHandlerApp(t, mockRepo, &stubPublisher{})

	tests := []struct {
		name           string
		target         string
		mockSetup      func()
		expectedStatus int
	}{
		{
			name:   "Success",
			target: "/api/tweets/5",
			mockSetup: func() {
				mockRepo.On("GetByID", mock.Anything, uint(5)).
					Return(&models.Tweet{ID: 5, Content: "Found", Status: models.StatusPending}, nil).Once()
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "Not found",
			target: "/api/tweets/99",
			mockSetup: func() {
				mockRepo.On("GetByID", mock.Anything, uint(99)).
					Return(nil, models.NewNotFoundError("tweet", 99)).Once()
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "Non-numeric id",
			target:         "/api/tweets/abc",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Zero id",
			target:         "/api/tweets/0",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.mockSetup != nil {
				tt.mockSetup()
			}
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
	mockRepo.AssertExpectations(t)
}

func TestPostTweetNow(t *testing.T) {
	oversized := strings.Repeat("x", 281)

	tests := []struct {
		name           string
		publisher      *stubPublisher
		body           map[string]interface{}
		expectedStatus int
		expectedError  string
		expectedCode   string
	}{
		{
			name:           "Success",
			publisher:      &stubPublisher{enabled: true, tweetID: "1450000000000000001"},
			body:           map[string]interface{}{"content": "Live now"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "Publishing disabled",
			publisher:      &stubPublisher{enabled: false},
			body:           map[string]interface{}{"content": "Live now"},
			expectedStatus: http.StatusServiceUnavailable,
			expectedError:  "Twitter API credentials not configured",
			expectedCode:   models.CodeNotConfigured,
		},
		{
			name:           "Empty content",
			publisher:      &stubPublisher{enabled: true},
			body:           map[string]interface{}{"content": "   "},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Tweet content is required",
			expectedCode:   models.CodeValidation,
		},
		{
			name:           "Oversized content",
			publisher:      &stubPublisher{enabled: true},
			body:           map[string]interface{}{"content": oversized},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "Tweet content exceeds 280 characters",
			expectedCode:   models.CodeValidation,
		},
		{
			name:           "Publish failure",
			publisher:      &stubPublisher{enabled: true, err: models.NewPublishError(assert.AnError)},
			body:           map[string]interface{}{"content": "Live now"},
			expectedStatus: http.StatusBadGateway,
			expectedError:  "Failed to post tweet",
			expectedCode:   models.CodePublish,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockTweetRepository)
			app, _ := newHandlerApp(t, mockRepo, tt.publisher)

			body, _ := json.Marshal(tt.body)
			req := httptest.NewRequest(http.MethodPost, "/api/post-now", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedError != "" {
				errResp := decodeError(t, resp.Body)
				assert.Equal(t, tt.expectedError, errResp.Error)
				assert.Equal(t, tt.expectedCode, errResp.Code)
				return
			}

			var ok struct {
				Success bool   `json:"success"`
				TweetID string `json:"tweet_id"`
				Message string `json:"message"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&ok))
			assert.True(t, ok.Success)
			assert.Equal(t, "1450000000000000001", ok.TweetID)
			assert.Equal(t, "Tweet posted successfully", ok.Message)
		})
	}
}
