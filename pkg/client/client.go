// Package client provides an HTTP client for the Privy API that signs
// mutating requests with an authorization context and handles the transport
// conventions the API expects: basic auth from app credentials, the
// privy-app-id header, idempotency keys and client-side rate limiting.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/privy-io/privy-go/pkg/authorization"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.privy.io"

const defaultTimeout = 30 * time.Second

// ClientConfig holds the configuration for the API client.
type ClientConfig struct {
	// AppID and AppSecret are the application credentials, sent as HTTP
	// basic auth on every request. Both are required.
	AppID     string
	AppSecret string

	// BaseURL overrides the API endpoint. Defaults to DefaultBaseURL.
	BaseURL string

	// AuthorizationContext signs mutating requests. Optional; without it
	// requests are sent unsigned.
	AuthorizationContext *authorization.Context

	// HTTPClient performs the requests. Its transport is wrapped with the
	// signing transport. Defaults to a client with a 30s timeout.
	HTTPClient *http.Client

	// Logger logs request activity. Defaults to a no-op logger.
	Logger *zap.Logger

	// RequestsPerSecond caps the outgoing request rate. Zero disables
	// client-side rate limiting.
	RequestsPerSecond float64

	// AutoIdempotencyKeys attaches a generated privy-idempotency-key header
	// to mutating requests that do not already carry one.
	AutoIdempotencyKeys bool
}

// Client is a Privy API client. It is safe for concurrent use.
type Client struct {
	appID      string
	appSecret  string
	baseURL    *url.URL
	httpClient *http.Client
	logger     *zap.Logger
	limiter    *rate.Limiter
	autoIdem   bool
}

// NewClient creates a new API client instance.
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.AppID == "" {
		return nil, fmt.Errorf("app ID is required")
	}
	if config.AppSecret == "" {
		return nil, fmt.Errorf("app secret is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https, got %q", baseURL)
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	wrapped := *httpClient
	wrapped.Transport = &SigningTransport{
		Base:    httpClient.Transport,
		Context: config.AuthorizationContext,
		AppID:   config.AppID,
		Logger:  logger,
	}

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	return &Client{
		appID:      config.AppID,
		appSecret:  config.AppSecret,
		baseURL:    parsed,
		httpClient: &wrapped,
		logger:     logger,
		limiter:    limiter,
		autoIdem:   config.AutoIdempotencyKeys,
	}, nil
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("privy: API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("privy: API error %d", e.StatusCode)
}

// Do sends an API request and decodes the JSON response into out. path is
// resolved against the base URL; body, when non-nil, is JSON-encoded. A nil
// out discards the response body. Non-2xx responses return an *APIError.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("privy: failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	u := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return err
	}

	req.SetBasicAuth(c.appID, c.appSecret)
	req.Header.Set(authorization.HeaderAppID, c.appID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.autoIdem && signedMethods[method] && req.Header.Get(authorization.HeaderIdempotencyKey) == "" {
		req.Header.Set(authorization.HeaderIdempotencyKey, uuid.NewString())
	}

	c.logger.Debug("sending API request",
		zap.String("method", method),
		zap.String("path", path),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("privy: failed to decode response: %w", err)
	}
	return nil
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post sends a POST request. Mutating requests are signed when an
// authorization context is configured.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Patch sends a PATCH request.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, body, out)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	apiErr := &APIError{StatusCode: resp.StatusCode, Body: data}
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &parsed); err == nil {
		apiErr.Message = parsed.Message
		if apiErr.Message == "" {
			apiErr.Message = parsed.Error
		}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("API request unauthorized; check app credentials and authorization key",
			zap.String("app_id", maskIdentifier(c.appID)),
		)
	}
	return apiErr
}

// maskIdentifier keeps enough of an identifier to correlate logs without
// disclosing it whole.
func maskIdentifier(s string) string {
	if len(s) <= 6 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-6) + s[len(s)-2:]
}
