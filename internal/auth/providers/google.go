package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/brizzai/desktop-auth/internal/auth/autherr"
	"github.com/brizzai/desktop-auth/internal/auth/constants"
	"github.com/brizzai/desktop-auth/internal/auth/models"
	"github.com/brizzai/desktop-auth/internal/config"
	"github.com/brizzai/desktop-auth/internal/logger"
	"github.com/brizzai/desktop-auth/internal/requester"
	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

type GoogleProvider struct {
	oauth2Config *oauth2.Config
	userInfoURL  string
	verifier     *oidc.IDTokenVerifier
	httpClient   *http.Client
}

// NewGoogleProvider builds the provider from config. Endpoint overrides in
// cfg replace Google's URLs, which is how tests point it at fakes.
func NewGoogleProvider(cfg *config.OAuthConfig, r *requester.HTTPRequester) *GoogleProvider {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = constants.DefaultScopes
	}

	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = constants.GoogleUserInfoURL
	}

	p := &GoogleProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
		},
		userInfoURL: userInfoURL,
		httpClient:  r.Client(),
	}

	if cfg.VerifyIDToken {
		issuer := cfg.Issuer
		if issuer == "" {
			issuer = constants.GoogleIssuer
		}
		jwksURL := cfg.JWKSURL
		if jwksURL == "" {
			jwksURL = constants.GoogleJWKSURL
		}
		keySet := oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), p.httpClient), jwksURL)
		p.verifier = oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: cfg.ClientID})
	}

	return p
}

func (p *GoogleProvider) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func (p *GoogleProvider) AuthURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

func (p *GoogleProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, autherr.New(autherr.CodeProvider, "authorization code is empty")
	}

	token, err := p.oauth2Config.Exchange(p.withClient(ctx), code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			authErr := autherr.Wrap(autherr.CodeProvider, "token exchange rejected", err).
				WithContext("error", retrieveErr.ErrorCode).
				WithContext("error_description", retrieveErr.ErrorDescription)
			if retrieveErr.Response != nil {
				authErr.WithContext("status", retrieveErr.Response.StatusCode)
			}
			return nil, authErr
		}
		return nil, autherr.Wrap(autherr.CodeProvider, "token exchange failed", err)
	}

	if p.verifier != nil {
		if err := p.verifyIDToken(ctx, token); err != nil {
			return nil, err
		}
	}

	return token, nil
}

func (p *GoogleProvider) verifyIDToken(ctx context.Context, token *oauth2.Token) error {
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return autherr.New(autherr.CodeProvider, "no id_token in token response")
	}

	if _, err := p.verifier.Verify(oidc.ClientContext(ctx, p.httpClient), rawIDToken); err != nil {
		return autherr.Wrap(autherr.CodeProvider, "failed to verify ID token", err)
	}
	return nil
}

func (p *GoogleProvider) FetchProfile(ctx context.Context, accessToken string) (*models.UserInfo, error) {
	if accessToken == "" {
		return nil, autherr.New(autherr.CodeProvider, "access token is empty")
	}

	client := oauth2.NewClient(p.withClient(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   constants.TokenType,
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, autherr.Wrap(autherr.CodeProvider, "failed to build userinfo request", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("Failed to call userinfo endpoint", zap.Error(err))
		return nil, autherr.Wrap(autherr.CodeProvider, "failed to call userinfo endpoint", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("Failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, autherr.Newf(autherr.CodeProvider, "userinfo request failed with status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body))).
			WithContext("status", resp.StatusCode)
	}

	var userInfo struct {
		ID      string `json:"id"`
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return nil, autherr.Wrap(autherr.CodeProvider, "failed to decode userinfo response", err)
	}

	id := userInfo.ID
	if id == "" {
		id = userInfo.Sub
	}
	if id == "" {
		return nil, autherr.New(autherr.CodeProvider, "userinfo response has no user id")
	}
	if userInfo.Email == "" {
		return nil, autherr.New(autherr.CodeProvider, fmt.Sprintf("userinfo response for %s has no email", id))
	}

	return &models.UserInfo{
		ID:      id,
		Email:   userInfo.Email,
		Name:    userInfo.Name,
		Picture: userInfo.Picture,
	}, nil
}

var _ Provider = (*GoogleProvider)(nil)
