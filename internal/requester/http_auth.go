package requester

import (
	"fmt"
	"net/http"

	"github.com/brizzai/desktop-auth/internal/auth/constants"
)

// AuthType represents the kind of credentials attached to a request
type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeBearer AuthType = "bearer"
	AuthTypeAPIKey AuthType = "api_key"
)

// AuthManager handles request authentication
type AuthManager interface {
	ApplyAuth(req *http.Request) error
}

// HTTPAuthManager implements the AuthManager interface
type HTTPAuthManager struct {
	authType AuthType
	key      string
	token    string
}

// NoAuth sends requests without credentials.
func NoAuth() *HTTPAuthManager {
	return &HTTPAuthManager{authType: AuthTypeNone}
}

// BearerAuth sends token in the Authorization header.
func BearerAuth(token string) *HTTPAuthManager {
	return &HTTPAuthManager{authType: AuthTypeBearer, token: token}
}

// APIKeyAuth sends the public key in the apikey header and authorizes as
// token, or as the key itself when token is empty.
func APIKeyAuth(key, token string) *HTTPAuthManager {
	return &HTTPAuthManager{authType: AuthTypeAPIKey, key: key, token: token}
}

// ApplyAuth adds authentication to the request
func (a *HTTPAuthManager) ApplyAuth(req *http.Request) error {
	switch a.authType {
	case AuthTypeNone, "":
		return nil
	case AuthTypeBearer:
		if a.token == "" {
			return fmt.Errorf("bearer auth requires a token")
		}
		req.Header.Set(constants.AuthHeaderName, constants.AuthHeaderPrefix+a.token)
	case AuthTypeAPIKey:
		if a.key == "" {
			return fmt.Errorf("api key auth requires a key")
		}
		req.Header.Set(constants.APIKeyHeaderName, a.key)
		token := a.token
		if token == "" {
			token = a.key
		}
		req.Header.Set(constants.AuthHeaderName, constants.AuthHeaderPrefix+token)
	default:
		return fmt.Errorf("unsupported auth type: %s", a.authType)
	}
	return nil
}
