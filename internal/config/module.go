package config

import "go.uber.org/fx"

// Module exposes the config sections to the packages that consume them.
// The *Config itself is supplied by the caller after Load.
var Module = fx.Module("config",
	fx.Provide(
		func(c *Config) *OAuthConfig { return &c.OAuth },
		func(c *Config) *RelayConfig { return &c.Relay },
		func(c *Config) *BackendConfig { return &c.Backend },
		func(c *Config) *IdentityConfig { return &c.Identity },
		func(c *Config) *StoreConfig { return &c.Store },
		func(c *Config) *SessionConfig { return &c.Session },
		func(c *Config) *HTTPConfig { return &c.HTTP },
	),
)
