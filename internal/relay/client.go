// Package relay talks to the service that receives the provider's browser
// redirect and polls it until the authorization code for a state arrives.
package relay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brizzai/desktop-auth/internal/auth/constants"
	"github.com/brizzai/desktop-auth/internal/config"
	"github.com/brizzai/desktop-auth/internal/requester"
)

// Status is the relay-side state of an attempt.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
	StatusExpired Status = "expired"
)

// Terminal reports whether the relay will not change this status again.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusError || s == StatusExpired
}

// CheckResult is the body of GET /oauth/check/{state}.
type CheckResult struct {
	Status Status `json:"status"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Client performs single relay requests, each bounded by its own timeout.
type Client struct {
	baseURL   string
	timeout   time.Duration
	requester *requester.HTTPRequester
}

// NewClient creates a relay client from config.
func NewClient(cfg *config.RelayConfig, r *requester.HTTPRequester) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = config.DefaultRelayTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		timeout:   timeout,
		requester: r,
	}
}

func (c *Client) stateURL(path, state string) string {
	return c.baseURL + path + url.PathEscape(state)
}

// Check asks the relay whether the redirect for state has arrived. Any
// error is transport-level or an unexpected status and is safe to retry.
func (c *Client) Check(ctx context.Context, state string) (*CheckResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.requester.Do(ctx, &requester.Request{
		Method: http.MethodGet,
		URL:    c.stateURL(constants.RelayCheckPath, state),
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("relay check returned status %d: %s", resp.StatusCode, resp.ErrorMessage())
	}

	var result CheckResult
	if err := resp.Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Clear removes the relay entry for state. Callers treat failure as
// non-fatal.
func (c *Client) Clear(ctx context.Context, state string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.requester.Do(ctx, &requester.Request{
		Method: http.MethodDelete,
		URL:    c.stateURL(constants.RelayClearPath, state),
	})
	if err != nil {
		return err
	}
	if !resp.IsSuccess() && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("relay clear returned status %d: %s", resp.StatusCode, resp.ErrorMessage())
	}
	return nil
}
