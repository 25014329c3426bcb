// Package twitter wraps the Twitter v2 create-tweet API and the v1.1 media
// upload endpoint behind a small publishing-focused client.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"plume/internal/middleware"
	"plume/internal/models"
	"plume/internal/observability"

	"github.com/dghubble/oauth1"
	gotwitter "github.com/g8rswimmer/go-twitter/v2"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultHost      = "https://api.twitter.com"
	defaultUploadURL = "https://upload.twitter.com/1.1/media/upload.json"
)

// Credentials holds the Twitter API credential set. Publishing is enabled
// only when all five values are present.
type Credentials struct {
	BearerToken       string
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
}

// Complete reports whether every credential value is set.
func (c Credentials) Complete() bool {
	return c.BearerToken != "" &&
		c.APIKey != "" &&
		c.APISecret != "" &&
		c.AccessToken != "" &&
		c.AccessTokenSecret != ""
}

// Options override endpoints and transport, mainly for tests.
type Options struct {
	Host       string
	UploadURL  string
	HTTPClient *http.Client
}

// Client publishes tweets and uploads media. A client built from incomplete
// credentials is disabled: every call returns a NotConfigured error while the
// rest of the application keeps running.
type Client struct {
	api             *gotwitter.Client
	httpClient      *http.Client
	uploadURL       string
	waitOnRateLimit bool
}

// authorizer satisfies the go-twitter Authorizer interface. The underlying
// transport already signs requests with OAuth1, so nothing is added here.
type authorizer struct{}

func (authorizer) Add(*http.Request) {}

// NewClient builds a client from credentials. Tweets are created through the
// v2 API; media uploads go through v1.1, which is the only upload endpoint.
func NewClient(creds Credentials, waitOnRateLimit bool, opts Options) *Client {
	if !creds.Complete() {
		return &Client{}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		oauthCfg := oauth1.NewConfig(creds.APIKey, creds.APISecret)
		token := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)
		httpClient = oauthCfg.Client(oauth1.NoContext, token)
	}

	host := opts.Host
	if host == "" {
		host = defaultHost
	}
	uploadURL := opts.UploadURL
	if uploadURL == "" {
		uploadURL = defaultUploadURL
	}

	return &Client{
		api: &gotwitter.Client{
			Authorizer: authorizer{},
			Client:     httpClient,
			Host:       host,
		},
		httpClient:      httpClient,
		uploadURL:       uploadURL,
		waitOnRateLimit: waitOnRateLimit,
	}
}

// Enabled reports whether the client holds a usable credential set.
func (c *Client) Enabled() bool {
	return c != nil && c.api != nil
}

// CreateTweet publishes text with optional previously uploaded media and
// returns the remote tweet id. The media parameter is omitted entirely when
// no ids are given; the API rejects an empty media_ids array.
func (c *Client) CreateTweet(ctx context.Context, text string, mediaIDs []string) (string, error) {
	if !c.Enabled() {
		return "", models.NewNotConfiguredError()
	}

	span, ctx := observability.NewSpan(ctx, "twitter.create_tweet",
		observability.WithSpanKind(observability.SpanKindClient))
	defer span.End()
	span.AddAttributes(attribute.Int("media_count", len(mediaIDs)))

	id, err := c.createTweet(ctx, text, mediaIDs)
	if err != nil {
		span.SetError(err)
	}
	return id, err
}

func (c *Client) createTweet(ctx context.Context, text string, mediaIDs []string) (string, error) {
	req := gotwitter.CreateTweetRequest{Text: text}
	if len(mediaIDs) > 0 {
		req.Media = &gotwitter.CreateTweetMedia{IDs: mediaIDs}
	}

	resp, err := c.api.CreateTweet(ctx, req)
	if err != nil {
		if retryAt, ok := c.rateLimitReset(err); ok {
			if waitErr := waitForReset(ctx, retryAt); waitErr != nil {
				return "", models.NewPublishError(waitErr)
			}
			resp, err = c.api.CreateTweet(ctx, req)
		}
	}
	if err != nil {
		return "", translateAPIError(err)
	}
	if resp == nil || resp.Tweet == nil || resp.Tweet.ID == "" {
		return "", models.NewPublishError(errors.New("create tweet response missing id"))
	}

	return resp.Tweet.ID, nil
}

// UploadMedia sends one attachment as the multipart `media` field and returns
// the media id string to reference in CreateTweet.
func (c *Client) UploadMedia(ctx context.Context, filename string, r io.Reader) (string, error) {
	if !c.Enabled() {
		return "", models.NewNotConfiguredError()
	}

	span, ctx := observability.NewSpan(ctx, "twitter.media_upload",
		observability.WithSpanKind(observability.SpanKindClient))
	defer span.End()
	span.AddAttributes(attribute.String("filename", filename))

	mediaID, err := c.uploadMedia(ctx, filename, r)
	if err != nil {
		span.SetError(err)
	}
	return mediaID, err
}

func (c *Client) uploadMedia(ctx context.Context, filename string, r io.Reader) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("media", filename)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", models.NewInternalError(err)
	}
	if err := writer.Close(); err != nil {
		return "", models.NewInternalError(err)
	}

	upload := func() (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, bytes.NewReader(body.Bytes()))
		if reqErr != nil {
			return nil, reqErr
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		return c.httpClient.Do(req)
	}

	resp, err := upload()
	if err != nil {
		return "", models.NewPublishError(err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAt, ok := resetTimeFromHeader(resp.Header)
		drainAndClose(resp.Body)
		if !ok || !c.waitOnRateLimit {
			return "", models.NewPublishError(fmt.Errorf("media upload status %d: rate limited", resp.StatusCode))
		}
		if waitErr := waitForReset(ctx, retryAt); waitErr != nil {
			return "", models.NewPublishError(waitErr)
		}
		if resp, err = upload(); err != nil {
			return "", models.NewPublishError(err)
		}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", models.NewPublishError(fmt.Errorf("media upload status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}

	var uploaded struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return "", models.NewPublishError(fmt.Errorf("decoding media upload response: %w", err))
	}
	if uploaded.MediaIDString == "" {
		return "", models.NewPublishError(errors.New("media upload response missing media_id_string"))
	}

	return uploaded.MediaIDString, nil
}

// rateLimitReset extracts the reset instant from a 429 API error when the
// client is configured to wait one out.
func (c *Client) rateLimitReset(err error) (time.Time, bool) {
	if !c.waitOnRateLimit {
		return time.Time{}, false
	}
	var errResp *gotwitter.ErrorResponse
	if !errors.As(err, &errResp) {
		return time.Time{}, false
	}
	if errResp.StatusCode != http.StatusTooManyRequests || errResp.RateLimit == nil {
		return time.Time{}, false
	}
	return time.Unix(int64(errResp.RateLimit.Reset), 0), true
}

func resetTimeFromHeader(h http.Header) (time.Time, bool) {
	secs, err := strconv.ParseInt(h.Get("x-rate-limit-reset"), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}

// waitForReset blocks until the rate-limit window reopens or the context is
// cancelled, whichever comes first.
func waitForReset(ctx context.Context, at time.Time) error {
	wait := time.Until(at)
	if wait <= 0 {
		return nil
	}

	middleware.Logger.WarnContext(ctx, "Twitter rate limit reached; waiting for reset",
		slog.Duration("wait", wait),
	)

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func translateAPIError(err error) error {
	var errResp *gotwitter.ErrorResponse
	if errors.As(err, &errResp) {
		return models.NewPublishError(fmt.Errorf("twitter api status %d: %s", errResp.StatusCode, errResp.Title))
	}
	return models.NewPublishError(err)
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
