// Package identity is a client for the email/password identity backend. It
// speaks the GoTrue REST dialect: every call carries the public key in the
// apikey header, and user calls authorize with the user's access token.
package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/brizzai/desktop-auth/internal/auth/autherr"
	"github.com/brizzai/desktop-auth/internal/auth/constants"
	"github.com/brizzai/desktop-auth/internal/config"
	"github.com/brizzai/desktop-auth/internal/logger"
	"github.com/brizzai/desktop-auth/internal/requester"
	"go.uber.org/zap"
)

// expirySkew refreshes tokens slightly before they actually expire.
const expirySkew = 30 * time.Second

// Client talks to the identity backend and remembers the last session it
// saw.
type Client struct {
	cfg       config.IdentityConfig
	baseURL   string
	requester *requester.HTTPRequester
	now       func() time.Time

	mu           sync.Mutex
	current      *Session
	listeners    map[int]func(Event)
	nextListener int
}

// NewClient creates an identity client. An unconfigured client is valid;
// every call on it fails with a configuration error.
func NewClient(cfg *config.IdentityConfig, r *requester.HTTPRequester) *Client {
	return &Client{
		cfg:       *cfg,
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		requester: r,
		now:       time.Now,
		listeners: make(map[int]func(Event)),
	}
}

// Configured reports whether the backend URL and public key are set.
func (c *Client) Configured() bool {
	return c.cfg.Configured()
}

// SignInWithPassword exchanges email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	var sess Session
	err := c.call(ctx, call{
		method: http.MethodPost,
		path:   constants.IdentityTokenPath,
		query:  url.Values{"grant_type": {constants.GrantTypePassword}},
		body:   map[string]string{"email": email, "password": password},
	}, &sess)
	if err != nil {
		return nil, err
	}
	if err := checkSession(&sess); err != nil {
		return nil, err
	}

	logger.Info("identity sign-in succeeded", logger.Fingerprint("user_id", sess.User.ID))
	c.setCurrent(&sess)
	c.emit(EventSignedIn, &sess)
	return sess.clone(), nil
}

// SignUp registers a new account. When the backend requires email
// confirmation the result carries no session.
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (*SignUpResult, error) {
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	body := map[string]interface{}{"email": email, "password": password}
	if name := strings.TrimSpace(displayName); name != "" {
		body["data"] = map[string]string{metaDisplayName: name}
	}

	var raw json.RawMessage
	if err := c.call(ctx, call{
		method: http.MethodPost,
		path:   constants.IdentitySignUpPath,
		body:   body,
	}, &raw); err != nil {
		return nil, err
	}

	result, err := decodeSignUp(raw)
	if err != nil {
		return nil, err
	}

	if result.Session != nil {
		logger.Info("identity sign-up succeeded", logger.Fingerprint("user_id", result.User.ID))
		c.setCurrent(result.Session)
		c.emit(EventSignedIn, result.Session)
		result.Session = result.Session.clone()
	} else {
		logger.Info("identity sign-up awaiting confirmation", logger.Fingerprint("user_id", result.User.ID))
	}
	return result, nil
}

// decodeSignUp accepts both response shapes: a full session when the account
// is confirmed immediately, or the bare user when confirmation is pending.
func decodeSignUp(raw json.RawMessage) (*SignUpResult, error) {
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, autherr.Wrap(autherr.CodeIdentityBackend, "invalid sign-up response", err)
	}
	if sess.AccessToken != "" {
		if err := checkSession(&sess); err != nil {
			return nil, err
		}
		return &SignUpResult{Session: &sess, User: sess.User}, nil
	}

	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, autherr.Wrap(autherr.CodeIdentityBackend, "invalid sign-up response", err)
	}
	if user.ID == "" {
		return nil, autherr.New(autherr.CodeIdentityBackend, "sign-up response has no user")
	}
	return &SignUpResult{User: &user}, nil
}

// SetSession adopts a stored token pair. An access token past its exp claim
// is refreshed; otherwise it is validated against the backend and refreshed
// only if the backend rejects it.
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*Session, error) {
	if accessToken == "" || refreshToken == "" {
		return nil, autherr.New(autherr.CodeInvalidInput, "both access and refresh token are required")
	}

	exp, hasExp := tokenExpiry(accessToken)
	if hasExp && !c.now().Add(expirySkew).Before(exp) {
		logger.Debug("stored access token expired, refreshing", zap.Time("exp", exp))
		return c.RefreshSession(ctx, refreshToken)
	}

	user, err := c.GetUser(ctx, accessToken)
	if err != nil {
		if autherr.HasCode(err, autherr.CodeSessionExpired) {
			logger.Debug("stored access token rejected, refreshing")
			return c.RefreshSession(ctx, refreshToken)
		}
		return nil, err
	}

	sess := &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    constants.TokenType,
		User:         user,
	}
	if hasExp {
		sess.ExpiresAt = exp.Unix()
	}

	event := EventSignedIn
	if prev := c.GetSession(); prev != nil && prev.User != nil && prev.User.ID == user.ID {
		event = EventUserUpdated
	}
	c.setCurrent(sess)
	c.emit(event, sess)
	return sess.clone(), nil
}

// RefreshSession trades a refresh token for a new token pair.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, autherr.New(autherr.CodeSessionExpired, "no refresh token")
	}

	var sess Session
	err := c.call(ctx, call{
		method:   http.MethodPost,
		path:     constants.IdentityTokenPath,
		query:    url.Values{"grant_type": {constants.GrantTypeRefreshToken}},
		body:     map[string]string{"refresh_token": refreshToken},
		tokenUse: true,
	}, &sess)
	if err != nil {
		return nil, err
	}
	if sess.User == nil && sess.AccessToken != "" {
		user, err := c.GetUser(ctx, sess.AccessToken)
		if err != nil {
			return nil, err
		}
		sess.User = user
	}
	if err := checkSession(&sess); err != nil {
		return nil, err
	}

	c.setCurrent(&sess)
	c.emit(EventTokenRefreshed, &sess)
	return sess.clone(), nil
}

// GetUser returns the account the access token belongs to.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := c.call(ctx, call{
		method:   http.MethodGet,
		path:     constants.IdentityUserPath,
		token:    accessToken,
		tokenUse: true,
	}, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, autherr.New(autherr.CodeIdentityBackend, "user response has no id")
	}
	return &user, nil
}

// GetSession returns the last session the client saw, or nil.
func (c *Client) GetSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.clone()
}

// SignOut revokes the session server-side. The local session is forgotten
// even when the request fails, and a token the backend no longer knows is
// not an error.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	defer func() {
		c.setCurrent(nil)
		c.emit(EventSignedOut, nil)
	}()

	if accessToken == "" {
		return nil
	}
	err := c.call(ctx, call{
		method:   http.MethodPost,
		path:     constants.IdentityLogoutPath,
		token:    accessToken,
		tokenUse: true,
	}, nil)
	if autherr.HasCode(err, autherr.CodeSessionExpired) {
		return nil
	}
	return err
}

type call struct {
	method   string
	path     string
	query    url.Values
	body     interface{}
	token    string
	tokenUse bool
}

func (c *Client) call(ctx context.Context, in call, out interface{}) error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	resp, err := c.requester.Do(ctx, &requester.Request{
		Method: in.method,
		URL:    c.baseURL + in.path,
		Query:  in.query,
		Body:   in.body,
		Auth:   requester.APIKeyAuth(c.cfg.PublicKey, in.token),
	})
	if err != nil {
		return transportError(ctx, err)
	}
	if !resp.IsSuccess() {
		e := classify(resp, in.tokenUse)
		logger.Debug("identity request failed",
			zap.String("path", in.path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", string(e.Code)),
		)
		return e
	}
	if out == nil {
		return nil
	}
	if err := resp.Decode(out); err != nil {
		return autherr.Wrap(autherr.CodeIdentityBackend, "invalid identity backend response", err)
	}
	return nil
}

func (c *Client) setCurrent(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = s.clone()
}

func checkSession(s *Session) error {
	if s.AccessToken == "" || s.RefreshToken == "" {
		return autherr.New(autherr.CodeIdentityBackend, "identity backend returned an incomplete token pair")
	}
	if s.User == nil || s.User.ID == "" {
		return autherr.New(autherr.CodeIdentityBackend, "identity backend returned a session without a user")
	}
	return nil
}
