package config

import (
	"fmt"
	"strings"

	"github.com/brizzai/desktop-auth/internal/auth/autherr"
)

type requirement struct {
	key   string
	value string
}

// ValidateGoogle checks everything the browser sign-in needs. It performs no
// I/O so a misconfigured install fails before touching the network.
func (c *Config) ValidateGoogle() error {
	return missing([]requirement{
		{"oauth.client_id", c.OAuth.ClientID},
		{"oauth.client_secret", c.OAuth.ClientSecret},
		{"oauth.redirect_uri", c.OAuth.RedirectURI},
		{"relay.base_url", c.Relay.BaseURL},
		{"backend.base_url", c.Backend.BaseURL},
	})
}

// ValidateIdentity checks the settings of the password identity backend.
func (c *Config) ValidateIdentity() error {
	return c.Identity.Validate()
}

// Validate reports which identity backend settings are missing.
func (c IdentityConfig) Validate() error {
	return missing([]requirement{
		{"identity.url", c.URL},
		{"identity.public_key", c.PublicKey},
	})
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	replacer := strings.NewReplacer(".", "_", "-", "_")
	return envPrefix + "_" + strings.ToUpper(replacer.Replace(key))
}

func missing(reqs []requirement) error {
	var keys []string
	var hints []string
	for _, r := range reqs {
		if strings.TrimSpace(r.value) == "" {
			keys = append(keys, r.key)
			hints = append(hints, fmt.Sprintf("%s (%s)", r.key, EnvName(r.key)))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return autherr.Newf(autherr.CodeConfiguration,
		"missing required configuration: %s, please adjust the config file or set the environment variables",
		strings.Join(hints, ", ")).
		WithContext("missing", keys)
}
