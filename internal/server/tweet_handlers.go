package server

import (
	"mime/multipart"
	"strings"
	"time"

	"plume/internal/models"
	"plume/internal/service"

	"github.com/gofiber/fiber/v2"
)

// ScheduleTweetRequest is the JSON request body for scheduling a tweet.
type ScheduleTweetRequest struct {
	Content       string   `json:"content"`
	ScheduledTime string   `json:"scheduled_time"`
	ImagePaths    []string `json:"image_paths,omitempty"`
}

// PostNowRequest is the JSON request body for immediate publishing.
type PostNowRequest struct {
	Content    string   `json:"content"`
	ImagePaths []string `json:"image_paths,omitempty"`
}

// TweetResponse is the API representation of a scheduled tweet.
type TweetResponse struct {
	ID            uint      `json:"id"`
	Content       string    `json:"content"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Posted        bool      `json:"posted"`
	Status        string    `json:"status"`
	ImagePaths    []string  `json:"image_paths"`
	PostedTweetID string    `json:"posted_tweet_id,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	Attempts      int       `json:"attempts"`
	CreatedAt     time.Time `json:"created_at"`
}

func toTweetResponse(t *models.Tweet) TweetResponse {
	paths := []string(t.ImagePaths)
	if paths == nil {
		paths = []string{}
	}
	return TweetResponse{
		ID:            t.ID,
		Content:       t.Content,
		ScheduledTime: t.ScheduledAt,
		Posted:        t.Posted(),
		Status:        string(t.Status),
		ImagePaths:    paths,
		PostedTweetID: t.PostedTweetID,
		LastError:     t.LastError,
		Attempts:      t.Attempts,
		CreatedAt:     t.CreatedAt,
	}
}

// ScheduleTweet handles POST /api/schedule
// @Summary Schedule a tweet
// @Description Queue a tweet for future delivery. Accepts JSON with already-stored attachment names, or multipart/form-data with up to 4 image files.
// @Tags tweets
// @Accept json,mpfd
// @Produce json
// @Param request body ScheduleTweetRequest true "Tweet to schedule"
// @Success 201 {object} object{success=bool,id=int,message=string}
// @Failure 400 {object} models.ErrorResponse
// @Router /schedule [post]
func (s *Server) ScheduleTweet(c *fiber.Ctx) error {
	ctx := c.UserContext()

	input, err := s.scheduleInput(c)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	tweet, err := s.tweetService.Schedule(ctx, input)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"id":      tweet.ID,
		"message": "Tweet scheduled successfully",
	})
}

// GetTweets handles GET /api/tweets
// @Summary List scheduled tweets
// @Description Most recently scheduled tweets, newest first.
// @Tags tweets
// @Produce json
// @Success 200 {array} TweetResponse
// @Router /tweets [get]
func (s *Server) GetTweets(c *fiber.Ctx) error {
	tweets, err := s.tweetService.List(c.UserContext())
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	resp := make([]TweetResponse, 0, len(tweets))
	for i := range tweets {
		resp = append(resp, toTweetResponse(&tweets[i]))
	}
	return c.JSON(resp)
}

// GetTweet handles GET /api/tweets/:id
// @Summary Get a scheduled tweet
// @Description Single tweet with its delivery status.
// @Tags tweets
// @Produce json
// @Param id path int true "Tweet ID"
// @Success 200 {object} TweetResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /tweets/{id} [get]
func (s *Server) GetTweet(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	tweet, err := s.tweetService.Get(c.UserContext(), id)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}
	return c.JSON(toTweetResponse(tweet))
}

// PostTweetNow handles POST /api/post-now
// @Summary Publish a tweet immediately
// @Description Publish without queueing. Accepts the same JSON/multipart shapes as /schedule, minus scheduled_time. Nothing is persisted.
// @Tags tweets
// @Accept json,mpfd
// @Produce json
// @Param request body PostNowRequest true "Tweet to publish"
// @Success 200 {object} object{success=bool,tweet_id=string,message=string}
// @Failure 400 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /post-now [post]
func (s *Server) PostTweetNow(c *fiber.Ctx) error {
	ctx := c.UserContext()

	input, err := s.postNowInput(c)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	remoteID, err := s.tweetService.PostNow(ctx, input)
	if err != nil {
		return models.RespondWithError(c, mapServiceError(err), err)
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"tweet_id": remoteID,
		"message":  "Tweet posted successfully",
	})
}

// scheduleInput normalizes the JSON and multipart request shapes into one
// service input. Multipart file parts are saved through the media store
// first; validation happens in the service.
func (s *Server) scheduleInput(c *fiber.Ctx) (service.ScheduleTweetInput, error) {
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return service.ScheduleTweetInput{}, models.NewValidationError("Invalid multipart form")
		}
		stored, err := s.saveUploads(uploadedFiles(form))
		if err != nil {
			return service.ScheduleTweetInput{}, err
		}
		return service.ScheduleTweetInput{
			Content:       formValue(form, "content"),
			ScheduledTime: formValue(form, "scheduled_time"),
			ImagePaths:    stored,
		}, nil
	}

	var req ScheduleTweetRequest
	if err := c.BodyParser(&req); err != nil {
		return service.ScheduleTweetInput{}, models.NewValidationError("Invalid request body")
	}
	return service.ScheduleTweetInput{
		Content:       req.Content,
		ScheduledTime: req.ScheduledTime,
		ImagePaths:    req.ImagePaths,
	}, nil
}

func (s *Server) postNowInput(c *fiber.Ctx) (service.PostNowInput, error) {
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return service.PostNowInput{}, models.NewValidationError("Invalid multipart form")
		}
		stored, err := s.saveUploads(uploadedFiles(form))
		if err != nil {
			return service.PostNowInput{}, err
		}
		return service.PostNowInput{
			Content:    formValue(form, "content"),
			ImagePaths: stored,
		}, nil
	}

	var req PostNowRequest
	if err := c.BodyParser(&req); err != nil {
		return service.PostNowInput{}, models.NewValidationError("Invalid request body")
	}
	return service.PostNowInput{
		Content:    req.Content,
		ImagePaths: req.ImagePaths,
	}, nil
}

// saveUploads stores each uploaded image and returns the stored names.
func (s *Server) saveUploads(files []*multipart.FileHeader) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}

	stored := make([]string, 0, len(files))
	for _, file := range files {
		if file == nil || file.Filename == "" {
			continue
		}
		src, err := file.Open()
		if err != nil {
			return nil, models.NewValidationError("Unable to read uploaded file")
		}
		name, err := s.mediaStore.Save(file.Filename, src)
		_ = src.Close()
		if err != nil {
			return nil, err
		}
		stored = append(stored, name)
	}
	return stored, nil
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm)
}

// uploadedFiles collects image file parts; both the "images" and "images[]"
// field names are accepted.
func uploadedFiles(form *multipart.Form) []*multipart.FileHeader {
	var files []*multipart.FileHeader
	files = append(files, form.File["images"]...)
	files = append(files, form.File["images[]"]...)
	return files
}

func formValue(form *multipart.Form, key string) string {
	if vals := form.Value[key]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}
