// Package apiclient is a client for the pgstate ops server (health probes).
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/marmos91/pgstate/internal/cli/health"
)

// DefaultTimeout bounds each request when New is given no timeout.
const DefaultTimeout = 2 * time.Second

// Client talks to a running pgstate ops server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for baseURL. A non-positive timeout selects
// DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server address the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health fetches the liveness probe.
func (c *Client) Health(ctx context.Context) (*health.Response, error) {
	var resp health.Response
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ready fetches the readiness probe. An uninitialized component is reported
// through the response, not as an error.
func (c *Client) Ready(ctx context.Context) (*health.ReadyResponse, error) {
	var resp health.ReadyResponse
	if err := c.get(ctx, "/health/ready", &resp); err != nil && !isProbeFailure(err, resp.Status) {
		return nil, err
	}
	return &resp, nil
}

// Store fetches the database probe. An unreachable database is reported
// through the response, not as an error.
func (c *Client) Store(ctx context.Context) (*health.StoreResponse, error) {
	var resp health.StoreResponse
	if err := c.get(ctx, "/health/store", &resp); err != nil && !isProbeFailure(err, resp.Status) {
		return nil, err
	}
	return &resp, nil
}

// isProbeFailure reports whether err is a 503 carrying a decoded probe body.
func isProbeFailure(err error, status string) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.IsUnavailable() && status != ""
}

// get performs a GET request and decodes the JSON body into result. The body
// is decoded for error statuses too, since probes explain failures in it.
func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var decodeErr error
	if result != nil && len(body) > 0 {
		decodeErr = json.Unmarshal(body, result)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var probe struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &probe) == nil && probe.Error != "" {
			apiErr.Message = probe.Error
		}
		return apiErr
	}

	if decodeErr != nil {
		return fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	return nil
}
