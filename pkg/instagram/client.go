package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"igengage/pkg/engagement"
	apperrors "igengage/pkg/errors"
	"igengage/pkg/logger"
)

var defaultHeaders = map[string]string{
	"x-ig-app-id": AppID,
	"User-Agent":  UserAgent,
	"Accept":      "application/json",
}

// Client performs profile lookups through a single caller-supplied *http.Client.
// It keeps no state between calls.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     logger.Logger
}

// Option configures a Client
type Option func(*Client)

// WithBaseURL points the client at another host, e.g. an httptest server
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// NewClient creates a client bound to httpClient
func NewClient(httpClient *http.Client, log logger.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: RequestTimeout}
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    BaseURL,
		logger:     logger.OrDefault(log),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchEngagement fetches one profile and scores it.
// On failure the returned result already carries the error message and the
// error is a classified *apperrors.Error.
func (c *Client) FetchEngagement(ctx context.Context, username string) (engagement.Result, error) {
	user, err := c.FetchProfile(ctx, username)
	if err != nil {
		appErr, ok := apperrors.As(err)
		if !ok {
			appErr = apperrors.Wrap(apperrors.ErrorTypeUnknown, err, "")
		}
		return engagement.Failed(username, appErr.ResultMessage()), appErr
	}
	return engagement.Score(username, user.Snapshot()), nil
}

// FetchProfile performs exactly one GET against the profile endpoint
func (c *Client) FetchProfile(ctx context.Context, username string) (*User, error) {
	url := GetProfileURL(c.baseURL, username)

	c.logger.DebugWithFields("fetching user profile", map[string]interface{}{
		"username": username,
		"url":      url,
	})

	var response ProfileResponse
	if err := c.getJSON(ctx, url, &response); err != nil {
		c.logger.DebugWithFields("failed to fetch user profile", map[string]interface{}{
			"username": username,
			"error":    err.Error(),
		})
		return nil, err
	}

	if !response.Data.hasUser() {
		return nil, apperrors.New(apperrors.ErrorTypeNotFound, fmt.Sprintf("no user payload for %q", username))
	}

	var user User
	if err := json.Unmarshal(response.Data.User, &user); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeMalformed, err, fmt.Sprintf("unexpected user payload: %v", err))
	}

	return &user, nil
}

// getJSON performs a GET request and decodes the JSON response into target
func (c *Client) getJSON(ctx context.Context, url string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeUnknown, err, fmt.Sprintf("failed to create request: %v", err))
	}
	for key, value := range defaultHeaders {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		c.logger.DebugWithFields("HTTP request failed", map[string]interface{}{
			"url":      url,
			"error":    err.Error(),
			"duration": duration,
		})
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"url":      url,
		"status":   resp.StatusCode,
		"duration": duration,
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return apperrors.HTTPStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return classifyTransportError(err)
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}
		c.logger.DebugWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          url,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return apperrors.Wrap(apperrors.ErrorTypeMalformed, err, fmt.Sprintf("failed to parse JSON: %v", err))
	}

	return nil
}

// classifyTransportError maps a client or body-read failure onto the error taxonomy
func classifyTransportError(err error) *apperrors.Error {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "proxyconnect" {
		return apperrors.Wrap(apperrors.ErrorTypeProxy, err, "")
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.Wrap(apperrors.ErrorTypeTimeout, err, "")
	}

	return apperrors.Wrap(apperrors.ErrorTypeNetwork, err, "")
}
