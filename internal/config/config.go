package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version information - set by GoReleaser during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// AppName is used for the config directory and the environment prefix.
const AppName = "desktop-auth"

const envPrefix = "DESKTOP_AUTH"

// GetVersionInfo returns a formatted version string
func GetVersionInfo() string {
	return fmt.Sprintf("%s version %s, commit %s, built at %s", AppName, version, commit, date)
}

type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	OAuth    OAuthConfig    `mapstructure:"oauth"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Identity IdentityConfig `mapstructure:"identity"`
	Store    StoreConfig    `mapstructure:"store"`
	Session  SessionConfig  `mapstructure:"session"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

type LoggingConfig struct {
	Level             string `mapstructure:"level"`
	Format            string `mapstructure:"format"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
	OutputPath        string `mapstructure:"output_path"`
	AppendToFile      bool   `mapstructure:"append_to_file"`
	DisableConsole    bool   `mapstructure:"disable_console"`
}

// OAuthConfig holds the Google client registration. The URL overrides are
// empty in production and point at fakes in tests.
type OAuthConfig struct {
	ClientID      string   `mapstructure:"client_id"`
	ClientSecret  string   `mapstructure:"client_secret"`
	RedirectURI   string   `mapstructure:"redirect_uri"` // the relay's callback URL
	Scopes        []string `mapstructure:"scopes"`
	AuthURL       string   `mapstructure:"auth_url"`
	TokenURL      string   `mapstructure:"token_url"`
	UserInfoURL   string   `mapstructure:"userinfo_url"`
	VerifyIDToken bool     `mapstructure:"verify_id_token"`
	Issuer        string   `mapstructure:"issuer"`
	JWKSURL       string   `mapstructure:"jwks_url"`
}

type RelayConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type BackendConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	HealthTimeout time.Duration `mapstructure:"health_timeout"`
}

// IdentityConfig points at the password identity backend. PublicKey is the
// anonymous client key, not a service secret.
type IdentityConfig struct {
	URL       string `mapstructure:"url"`
	PublicKey string `mapstructure:"public_key"`
}

// Configured reports whether the password path can be used at all.
func (c IdentityConfig) Configured() bool {
	return c.URL != "" && c.PublicKey != ""
}

// StoreBackend selects the session store implementation.
type StoreBackend string

const (
	StoreBackendFile   StoreBackend = "file"
	StoreBackendSQLite StoreBackend = "sqlite"
	StoreBackendMemory StoreBackend = "memory"
)

type StoreConfig struct {
	Backend       StoreBackend `mapstructure:"backend"`
	Path          string       `mapstructure:"path"`
	EncryptionKey string       `mapstructure:"encryption_key"`
}

// JournalPath is where the in-flight sign-in attempt is recorded.
func (c StoreConfig) JournalPath() string {
	return filepath.Join(filepath.Dir(c.Path), "attempt.json")
}

type SessionConfig struct {
	RestoreTimeout time.Duration `mapstructure:"restore_timeout"`
}

type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

const (
	DefaultPollInterval   = time.Second
	DefaultMaxAttempts    = 60
	DefaultRelayTimeout   = 2 * time.Second
	DefaultHealthTimeout  = 2 * time.Second
	DefaultRestoreTimeout = 10 * time.Second
	DefaultHTTPTimeout    = 15 * time.Second
)

// Default returns a configuration with every default applied and no
// credentials set.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "warn", Format: "console"},
		OAuth:   OAuthConfig{Scopes: []string{"openid", "email", "profile"}},
		Relay: RelayConfig{
			PollInterval:   DefaultPollInterval,
			MaxAttempts:    DefaultMaxAttempts,
			RequestTimeout: DefaultRelayTimeout,
		},
		Backend: BackendConfig{HealthTimeout: DefaultHealthTimeout},
		Store:   StoreConfig{Backend: StoreBackendFile, Path: defaultStorePath(StoreBackendFile)},
		Session: SessionConfig{RestoreTimeout: DefaultRestoreTimeout},
		HTTP:    HTTPConfig{Timeout: DefaultHTTPTimeout},
	}
}

// DefaultDir is the per-user directory holding config and session data.
func DefaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "."+AppName)
	}
	return filepath.Join(dir, AppName)
}

func defaultStorePath(backend StoreBackend) string {
	if backend == StoreBackendSQLite {
		return filepath.Join(DefaultDir(), "session.db")
	}
	return filepath.Join(DefaultDir(), "session.json")
}

func setDefaults() {
	d := Default()
	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.format", d.Logging.Format)
	viper.SetDefault("oauth.scopes", d.OAuth.Scopes)
	viper.SetDefault("relay.poll_interval", d.Relay.PollInterval)
	viper.SetDefault("relay.max_attempts", d.Relay.MaxAttempts)
	viper.SetDefault("relay.request_timeout", d.Relay.RequestTimeout)
	viper.SetDefault("backend.health_timeout", d.Backend.HealthTimeout)
	viper.SetDefault("store.backend", string(d.Store.Backend))
	viper.SetDefault("session.restore_timeout", d.Session.RestoreTimeout)
	viper.SetDefault("http.timeout", d.HTTP.Timeout)
}

// envOnlyKeys have no default, so AutomaticEnv alone would not surface them
// to Unmarshal.
var envOnlyKeys = []string{
	"logging.output_path",
	"oauth.client_id",
	"oauth.client_secret",
	"oauth.redirect_uri",
	"oauth.auth_url",
	"oauth.token_url",
	"oauth.userinfo_url",
	"oauth.verify_id_token",
	"oauth.issuer",
	"oauth.jwks_url",
	"relay.base_url",
	"backend.base_url",
	"identity.url",
	"identity.public_key",
	"store.path",
	"store.encryption_key",
}

// InitFlags registers the config-related flags on fs (without parsing)
func InitFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to the config file")
	fs.String("log-level", "", "Log level (debug|info|warn|error)")
	fs.String("log-format", "", "Log format (console|json)")
	fs.String("store-backend", "", "Session store backend (file|sqlite|memory)")
	fs.String("store-path", "", "Path to the session store")
}

var flagKeys = map[string]string{
	"log-level":     "logging.level",
	"log-format":    "logging.format",
	"store-backend": "store.backend",
	"store-path":    "store.path",
}

// Load reads config.yaml (optional), environment variables and the flags in
// fs, in increasing order of precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	viper.Reset() // Ensure clean state

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	setDefaults()
	for _, key := range envOnlyKeys {
		if err := viper.BindEnv(key); err != nil {
			return nil, err
		}
	}

	explicitFile := ""
	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := viper.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
		explicitFile, _ = fs.GetString("config")
	}

	if explicitFile != "" {
		viper.SetConfigFile(explicitFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath(DefaultDir())
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicitFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	switch config.Store.Backend {
	case StoreBackendFile, StoreBackendSQLite, StoreBackendMemory:
	default:
		return nil, fmt.Errorf("unsupported store backend %q, please adjust store.backend or pass --store-backend", config.Store.Backend)
	}
	if config.Store.Path == "" {
		config.Store.Path = defaultStorePath(config.Store.Backend)
	}

	if config.Relay.MaxAttempts <= 0 {
		return nil, fmt.Errorf("relay.max_attempts must be positive, got %d", config.Relay.MaxAttempts)
	}
	if config.Relay.PollInterval <= 0 || config.Relay.RequestTimeout <= 0 {
		return nil, fmt.Errorf("relay.poll_interval and relay.request_timeout must be positive")
	}

	return &config, nil
}
