// Package remote talks to the garage door controller over HTTP.
package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/garaged/internal/door"
)

// maxStatusBody caps how much of the status response is read.
const maxStatusBody = 4 << 10

// Client issues status and toggle requests to the door controller.
// It never retries; every failure is returned to the caller.
type Client struct {
	statusURL   string
	toggleURL   string
	bearerToken string
	httpClient  *http.Client
}

// NewClient creates a new door client. No request timeout is applied;
// requests are bounded only by the caller's context.
func NewClient(statusURL, toggleURL, bearerToken string) *Client {
	return &Client{
		statusURL:   statusURL,
		toggleURL:   toggleURL,
		bearerToken: bearerToken,
		httpClient:  &http.Client{},
	}
}

// WithHTTPClient replaces the underlying HTTP client (used by tests).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// FetchStatus returns the raw status body reported by the door.
func (c *Client) FetchStatus(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, c.statusURL, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBody))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read status body: %w", door.ErrNetwork, err)
	}
	return string(body), nil
}

// SendToggle triggers the door's toggle input. The response body is ignored.
func (c *Client) SendToggle(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, c.toggleURL, true)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	log.Debug().Str("url", c.toggleURL).Int("status", resp.StatusCode).Msg("Toggle sent")
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, auth bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build %s request: %w", door.ErrNetwork, method, err)
	}
	if auth && c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", door.ErrNetwork, method, url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s %s: unexpected status code: %d", door.ErrNetwork, method, url, resp.StatusCode)
	}
	return resp, nil
}
