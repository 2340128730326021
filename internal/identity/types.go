package identity

import (
	"time"

	"github.com/brizzai/desktop-auth/internal/auth/models"
	"github.com/golang-jwt/jwt/v5"
)

// User metadata keys read from the identity backend.
const (
	metaDisplayName         = "display_name"
	metaFullName            = "full_name"
	metaName                = "name"
	metaAvatarURL           = "avatar_url"
	metaPicture             = "picture"
	metaOnboardingCompleted = "onboarding_completed"
)

// User is an identity backend account.
type User struct {
	ID               string                 `json:"id"`
	Email            string                 `json:"email"`
	EmailConfirmedAt *time.Time             `json:"email_confirmed_at,omitempty"`
	UserMetadata     map[string]interface{} `json:"user_metadata,omitempty"`
}

// DisplayName returns the first name-like metadata value, or the email local
// part.
func (u *User) DisplayName() string {
	for _, key := range []string{metaDisplayName, metaFullName, metaName} {
		if v := u.metaString(key); v != "" {
			return v
		}
	}
	return models.DisplayNameFor("", u.Email)
}

// AvatarURL returns the avatar from metadata, if any.
func (u *User) AvatarURL() string {
	if v := u.metaString(metaAvatarURL); v != "" {
		return v
	}
	return u.metaString(metaPicture)
}

// OnboardingCompleted returns the onboarding flag from metadata, nil when
// the backend never set it.
func (u *User) OnboardingCompleted() *bool {
	v, ok := u.UserMetadata[metaOnboardingCompleted].(bool)
	if !ok {
		return nil
	}
	return &v
}

func (u *User) metaString(key string) string {
	s, _ := u.UserMetadata[key].(string)
	return s
}

// Session is a token pair issued by the identity backend.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	User         *User  `json:"user,omitempty"`
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.User != nil {
		u := *s.User
		c.User = &u
	}
	return &c
}

// SignUpResult is returned by SignUp. Session is nil while the account
// awaits email confirmation.
type SignUpResult struct {
	Session *Session
	User    *User
}

// PendingConfirmation reports whether the account must be confirmed before
// it can sign in.
func (r *SignUpResult) PendingConfirmation() bool {
	return r.Session == nil
}

// tokenExpiry reads the exp claim of an access token without verifying it.
// The identity backend verifies the signature on every call that uses the
// token; the client only needs to know whether a refresh is due.
func tokenExpiry(accessToken string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
