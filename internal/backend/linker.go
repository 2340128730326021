// Package backend registers a Google identity with the application backend
// and reports backend health.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/brizzai/desktop-auth/internal/auth/autherr"
	"github.com/brizzai/desktop-auth/internal/auth/constants"
	"github.com/brizzai/desktop-auth/internal/auth/models"
	"github.com/brizzai/desktop-auth/internal/config"
	"github.com/brizzai/desktop-auth/internal/logger"
	"github.com/brizzai/desktop-auth/internal/requester"
	"go.uber.org/zap"
)

// LinkedUser is the backend's view of the signed-in user.
type LinkedUser struct {
	ID                  string
	OnboardingCompleted *bool
}

type linkResponse struct {
	User struct {
		ID                  string `json:"id"`
		OnboardingCompleted *bool  `json:"onboarding_completed,omitempty"`
	} `json:"user"`
}

// Linker calls the backend's Google login endpoint.
type Linker struct {
	baseURL       string
	healthTimeout time.Duration
	requester     *requester.HTTPRequester
}

// NewLinker creates a linker from config.
func NewLinker(cfg *config.BackendConfig, r *requester.HTTPRequester) *Linker {
	healthTimeout := cfg.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = config.DefaultHealthTimeout
	}
	return &Linker{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		healthTimeout: healthTimeout,
		requester:     r,
	}
}

// Link registers profile with the backend and returns the canonical user.
// Every failure is a backend link error; the caller must not persist a
// session after one.
func (l *Linker) Link(ctx context.Context, profile *models.UserInfo) (*LinkedUser, error) {
	if profile == nil || profile.ID == "" {
		return nil, autherr.New(autherr.CodeBackendLink, "cannot link a profile without an id")
	}

	resp, err := l.requester.Do(ctx, &requester.Request{
		Method: http.MethodPost,
		URL:    l.baseURL + constants.BackendGoogleLoginPath,
		Body:   profile,
	})
	if err != nil {
		return nil, autherr.Wrap(autherr.CodeBackendLink, "backend unreachable", err)
	}
	if !resp.IsSuccess() {
		return nil, autherr.Newf(autherr.CodeBackendLink,
			"backend rejected login with status %d: %s", resp.StatusCode, resp.ErrorMessage()).
			WithContext("status", resp.StatusCode)
	}

	var body linkResponse
	if err := resp.Decode(&body); err != nil {
		return nil, autherr.Wrap(autherr.CodeBackendLink, "invalid backend response", err)
	}
	if body.User.ID == "" {
		return nil, autherr.New(autherr.CodeBackendLink, "backend response has no user id")
	}

	logger.Debug("linked account with backend",
		logger.Fingerprint("provider_id", profile.ID),
		logger.Fingerprint("user_id", body.User.ID),
	)
	return &LinkedUser{
		ID:                  body.User.ID,
		OnboardingCompleted: body.User.OnboardingCompleted,
	}, nil
}

// Health checks that the backend answers GET /health with a 2xx status.
func (l *Linker) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.healthTimeout)
	defer cancel()

	start := time.Now()
	resp, err := l.requester.Do(ctx, &requester.Request{
		Method: http.MethodGet,
		URL:    l.baseURL + constants.BackendHealthPath,
	})
	if err != nil {
		return fmt.Errorf("backend health check failed: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("backend health check returned status %d", resp.StatusCode)
	}
	logger.Debug("backend healthy", zap.Duration("latency", time.Since(start)))
	return nil
}
