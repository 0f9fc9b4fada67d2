// Package client provides an HTTP client for the spacefeed control API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spacefeed/spacefeed/internal/models"
)

// Client talks to a running spacefeed server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a control API client. If baseURL is empty, uses the
// SPACEFEED_SERVER_URL env var or defaults to localhost:8000.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("SPACEFEED_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			// Stats blocks for the host CPU sampling window; leave headroom.
			Timeout: 10 * time.Second,
		},
	}
}

// statusResponse is the body of /start and /stop.
type statusResponse struct {
	Status string `json:"status"`
}

// Start asks the server to begin an ingestion run. Returns the server's
// status line ("started" or "already running").
func (c *Client) Start(ctx context.Context) (string, error) {
	var resp statusResponse
	if err := c.get(ctx, "/start", &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// Stop sends the cooperative stop signal.
func (c *Client) Stop(ctx context.Context) (string, error) {
	var resp statusResponse
	if err := c.get(ctx, "/stop", &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// Stats fetches the current counters and host health.
func (c *Client) Stats(ctx context.Context) (*models.Stats, error) {
	var stats models.Stats
	if err := c.get(ctx, "/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server error: %s - %s", resp.Status, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
