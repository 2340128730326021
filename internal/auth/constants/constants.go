package constants

const (
	// TokenType for Bearer authentication
	TokenType = "Bearer"

	// AuthHeaderName is the name of the Authorization header
	AuthHeaderName = "Authorization"

	// AuthHeaderPrefix is the prefix for the Authorization header value
	AuthHeaderPrefix = "Bearer "

	// APIKeyHeaderName carries the identity backend's public key
	APIKeyHeaderName = "apikey"
)

// OAuth scopes
var DefaultScopes = []string{"openid", "email", "profile"}

// Google endpoints used when the config does not override them
const (
	GoogleIssuer      = "https://accounts.google.com"
	GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	GoogleJWKSURL     = "https://www.googleapis.com/oauth2/v3/certs"
)

// Relay routes. The state token is appended as the last path segment.
const (
	RelayCheckPath = "/oauth/check/"
	RelayClearPath = "/oauth/clear/"
)

// Backend routes
const (
	BackendGoogleLoginPath = "/auth/google/login"
	BackendHealthPath      = "/health"
)

// Identity backend routes
const (
	IdentityTokenPath  = "/auth/v1/token"
	IdentitySignUpPath = "/auth/v1/signup"
	IdentityUserPath   = "/auth/v1/user"
	IdentityLogoutPath = "/auth/v1/logout"

	GrantTypePassword     = "password"
	GrantTypeRefreshToken = "refresh_token"
)
