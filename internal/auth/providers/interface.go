package providers

import (
	"context"

	"github.com/brizzai/desktop-auth/internal/auth/models"
	"golang.org/x/oauth2"
)

// Provider defines the browser-based identity provider used for sign-in
type Provider interface {
	// AuthURL returns the consent page URL bound to state
	AuthURL(state string) string

	// ExchangeCode exchanges an authorization code for tokens. Provider
	// rejections are terminal and never retried.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// FetchProfile returns the normalized identity for an access token
	FetchProfile(ctx context.Context, accessToken string) (*models.UserInfo, error)
}
