package requester

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Request describes one JSON call
type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Body    interface{} // encoded as JSON when non-nil
	Headers map[string]string
	Auth    AuthManager
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v interface{}) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("empty response body (status %d)", r.StatusCode)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// ErrorMessage extracts a human readable message from an error body, looking
// at the fields commonly used by OAuth-style and REST APIs.
func (r *Response) ErrorMessage() string {
	var body map[string]interface{}
	if err := json.Unmarshal(r.Body, &body); err == nil {
		for _, key := range []string{"error_description", "msg", "message", "detail", "error"} {
			if s, ok := body[key].(string); ok && s != "" {
				return s
			}
		}
	}
	text := strings.TrimSpace(string(r.Body))
	if text == "" {
		return http.StatusText(r.StatusCode)
	}
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
