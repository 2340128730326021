package requester

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brizzai/desktop-auth/internal/config"
	"github.com/brizzai/desktop-auth/internal/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

// HTTPRequester executes JSON requests against the relay, the backend and
// the identity backend.
type HTTPRequester struct {
	client *http.Client
}

type HTTPRequesterParams struct {
	fx.In

	HTTPConfig *config.HTTPConfig
}

// NewHTTPRequester creates a requester using the configured client timeout
func NewHTTPRequester(params HTTPRequesterParams) *HTTPRequester {
	timeout := config.DefaultHTTPTimeout
	if params.HTTPConfig != nil && params.HTTPConfig.Timeout > 0 {
		timeout = params.HTTPConfig.Timeout
	}
	return New(timeout)
}

// New creates a requester with the given client timeout.
func New(timeout time.Duration) *HTTPRequester {
	return &HTTPRequester{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Client exposes the underlying client so OAuth calls share its timeout.
func (r *HTTPRequester) Client() *http.Client {
	return r.client
}

// Do builds and executes req. A non-nil error means the exchange itself
// failed; HTTP error statuses are reported through the Response.
func (r *HTTPRequester) Do(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := r.build(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Debug("Failed to close response body", zap.Error(closeErr))
		}
	}()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	logger.Debug("http request",
		zap.String("method", httpReq.Method),
		zap.String("path", httpReq.URL.Path),
		zap.Int("status", resp.StatusCode),
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       bodyBytes,
		Headers:    resp.Header,
	}, nil
}

func (r *HTTPRequester) build(ctx context.Context, req *Request) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if len(req.Query) > 0 {
		httpReq.URL.RawQuery = req.Query.Encode()
	}

	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	if req.Auth != nil {
		if err := req.Auth.ApplyAuth(httpReq); err != nil {
			return nil, fmt.Errorf("failed to apply auth: %w", err)
		}
	}
	return httpReq, nil
}
