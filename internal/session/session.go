// Package session holds the durable session record and the stores that
// persist it across restarts.
package session

import (
	"fmt"
)

// AuthMethod is how the session was established.
type AuthMethod string

const (
	AuthMethodGoogle AuthMethod = "google"
	AuthMethodEmail  AuthMethod = "email"
)

// Session is the persisted envelope. It is replaced wholesale on every
// re-authentication or refresh.
type Session struct {
	UserID              string     `json:"user_id" yaml:"user_id"`
	Email               string     `json:"email" yaml:"email"`
	DisplayName         string     `json:"display_name" yaml:"display_name"`
	AvatarURL           string     `json:"avatar_url,omitempty" yaml:"avatar_url,omitempty"`
	AuthMethod          AuthMethod `json:"auth_method" yaml:"auth_method"`
	ExternalProviderID  string     `json:"external_provider_id,omitempty" yaml:"external_provider_id,omitempty"`
	AccessToken         string     `json:"access_token,omitempty" yaml:"-"`
	RefreshToken        string     `json:"refresh_token,omitempty" yaml:"-"`
	OnboardingCompleted *bool      `json:"onboarding_completed,omitempty" yaml:"onboarding_completed,omitempty"`
}

// HasTokens reports whether the session carries identity-backend tokens.
func (s *Session) HasTokens() bool {
	return s.AccessToken != "" && s.RefreshToken != ""
}

// Validate enforces the envelope invariants.
func (s *Session) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("%w: user id is empty", ErrSessionInvalid)
	}
	switch s.AuthMethod {
	case AuthMethodGoogle:
	case AuthMethodEmail:
		if s.ExternalProviderID != "" {
			return fmt.Errorf("%w: external provider id set on an email session", ErrSessionInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown auth method %q", ErrSessionInvalid, s.AuthMethod)
	}
	if (s.AccessToken == "") != (s.RefreshToken == "") {
		return fmt.Errorf("%w: access and refresh tokens must be present together", ErrSessionInvalid)
	}
	return nil
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.OnboardingCompleted != nil {
		v := *s.OnboardingCompleted
		c.OnboardingCompleted = &v
	}
	return &c
}

// Bool returns a pointer to v, for OnboardingCompleted.
func Bool(v bool) *bool {
	return &v
}
