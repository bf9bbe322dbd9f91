// Package appconfig loads studyauthd configuration: defaults, then an
// optional YAML file, then STUDYAUTH_* environment variables.
package appconfig

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/studyauth"
)

// Config is the full studyauthd configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Session  SessionConfig  `yaml:"session"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	OAuth    OAuthConfig    `yaml:"oauth"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// HTTPConfig configures the listener, session cookie and per-IP throttle.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"             env:"STUDYAUTH_HTTP_ADDR"`
	ReadTimeout     time.Duration `yaml:"readTimeout"      env:"STUDYAUTH_HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"     env:"STUDYAUTH_HTTP_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"  env:"STUDYAUTH_HTTP_SHUTDOWN_TIMEOUT"`
	CookieSecure    bool          `yaml:"cookieSecure"     env:"STUDYAUTH_COOKIE_SECURE"`
	CookieDomain    string        `yaml:"cookieDomain"     env:"STUDYAUTH_COOKIE_DOMAIN"`
	IPRatePerMinute int           `yaml:"ipRatePerMinute"  env:"STUDYAUTH_IP_RATE_PER_MINUTE"`
	IPBurst         int           `yaml:"ipBurst"          env:"STUDYAUTH_IP_BURST"`
}

// LogConfig sets the slog level: debug, info, warn or error.
type LogConfig struct {
	Level string `yaml:"level" env:"STUDYAUTH_LOG_LEVEL"`
}

// PostgresConfig points at the user database. MigrateOnStart applies the
// embedded migrations before serving.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"            env:"STUDYAUTH_POSTGRES_DSN"`
	MigrateOnStart bool   `yaml:"migrateOnStart" env:"STUDYAUTH_POSTGRES_MIGRATE"`
}

// RedisConfig configures the ephemeral store. Several addresses select a
// cluster client.
type RedisConfig struct {
	Addrs    []string `yaml:"addrs"    env:"STUDYAUTH_REDIS_ADDRS"    envSeparator:","`
	Username string   `yaml:"username" env:"STUDYAUTH_REDIS_USERNAME"`
	Password string   `yaml:"password" env:"STUDYAUTH_REDIS_PASSWORD"`
	DB       int      `yaml:"db"       env:"STUDYAUTH_REDIS_DB"`
}

// SMTPConfig configures code delivery. An empty Host logs codes instead.
type SMTPConfig struct {
	Host      string `yaml:"host"      env:"STUDYAUTH_SMTP_HOST"`
	Port      int    `yaml:"port"      env:"STUDYAUTH_SMTP_PORT"`
	Username  string `yaml:"username"  env:"STUDYAUTH_SMTP_USERNAME"`
	Password  string `yaml:"password"  env:"STUDYAUTH_SMTP_PASSWORD"`
	TLSMode   string `yaml:"tlsMode"   env:"STUDYAUTH_SMTP_TLS_MODE"`
	FromName  string `yaml:"fromName"  env:"STUDYAUTH_SMTP_FROM_NAME"`
	FromEmail string `yaml:"fromEmail" env:"STUDYAUTH_SMTP_FROM_EMAIL"`
}

// SessionConfig sets the idle and absolute session lifetimes.
type SessionConfig struct {
	IdleTTL     time.Duration `yaml:"idleTTL"     env:"STUDYAUTH_SESSION_IDLE_TTL"`
	AbsoluteTTL time.Duration `yaml:"absoluteTTL" env:"STUDYAUTH_SESSION_ABSOLUTE_TTL"`
}

// RefreshConfig configures HS256 access tokens. Setting KeyID enables kid
// based verification: tokens signed with SigningKey carry KeyID, and
// PreviousKeys (kid to secret) keep verifying tokens from retired keys.
type RefreshConfig struct {
	Enabled      bool              `yaml:"enabled"      env:"STUDYAUTH_REFRESH_ENABLED"`
	SigningKey   string            `yaml:"signingKey"   env:"STUDYAUTH_REFRESH_SIGNING_KEY"`
	AccessTTL    time.Duration     `yaml:"accessTTL"    env:"STUDYAUTH_REFRESH_ACCESS_TTL"`
	KeyID        string            `yaml:"keyID"        env:"STUDYAUTH_REFRESH_KEY_ID"`
	PreviousKeys map[string]string `yaml:"previousKeys" env:"STUDYAUTH_REFRESH_PREVIOUS_KEYS"`
	Leeway       time.Duration     `yaml:"leeway"       env:"STUDYAUTH_REFRESH_LEEWAY"`
	RequireIAT   bool              `yaml:"requireIAT"   env:"STUDYAUTH_REFRESH_REQUIRE_IAT"`
}

// OAuthConfig enables a provider verifier for each non-empty client id.
type OAuthConfig struct {
	GoogleClientID     string `yaml:"googleClientID"     env:"STUDYAUTH_GOOGLE_CLIENT_ID"`
	AppleServiceID     string `yaml:"appleServiceID"     env:"STUDYAUTH_APPLE_SERVICE_ID"`
	GitHubClientID     string `yaml:"githubClientID"     env:"STUDYAUTH_GITHUB_CLIENT_ID"`
	GitHubClientSecret string `yaml:"githubClientSecret" env:"STUDYAUTH_GITHUB_CLIENT_SECRET"`
	GitHubRedirectURL  string `yaml:"githubRedirectURL"  env:"STUDYAUTH_GITHUB_REDIRECT_URL"`
}

// MetricsConfig mounts /metrics when Enabled.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"STUDYAUTH_METRICS_ENABLED"`
}

// TracingConfig enables OTLP/HTTP span export when Endpoint is set.
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"    env:"STUDYAUTH_OTEL_ENDPOINT"`
	ServiceName string  `yaml:"serviceName" env:"STUDYAUTH_OTEL_SERVICE_NAME"`
	SampleRatio float64 `yaml:"sampleRatio" env:"STUDYAUTH_OTEL_SAMPLE_RATIO"`
}

// Default returns a configuration that runs against local services.
func Default() Config {
	engine := studyauth.DefaultConfig()
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CookieSecure:    true,
			IPRatePerMinute: 30,
			IPBurst:         10,
		},
		Log:      LogConfig{Level: "info"},
		Postgres: PostgresConfig{MigrateOnStart: true},
		Redis:    RedisConfig{Addrs: []string{"localhost:6379"}},
		SMTP:     SMTPConfig{Port: 587, TLSMode: "starttls"},
		Session: SessionConfig{
			IdleTTL:     engine.Session.IdleTTL,
			AbsoluteTTL: engine.Session.AbsoluteTTL,
		},
		Refresh: RefreshConfig{AccessTTL: engine.Refresh.AccessTTL},
		Metrics: MetricsConfig{Enabled: true},
		Tracing: TracingConfig{ServiceName: "studyauthd", SampleRatio: 1},
	}
}

// Load layers path (skipped when empty) and the environment over Default.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the daemon cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres dsn is required"))
	}
	if len(c.Redis.Addrs) == 0 {
		errs = append(errs, errors.New("at least one redis address is required"))
	}
	if c.Refresh.Enabled && len(c.Refresh.SigningKey) < 32 {
		errs = append(errs, errors.New("refresh signing key must be at least 32 bytes"))
	}
	if len(c.Refresh.PreviousKeys) > 0 && c.Refresh.KeyID == "" {
		errs = append(errs, errors.New("refresh previous keys require a key id"))
	}
	for kid, key := range c.Refresh.PreviousKeys {
		if kid == c.Refresh.KeyID {
			errs = append(errs, fmt.Errorf("refresh previous key %q reuses the current key id", kid))
		}
		if len(key) < 32 {
			errs = append(errs, fmt.Errorf("refresh previous key %q must be at least 32 bytes", kid))
		}
	}
	if c.OAuth.GitHubClientID != "" && c.OAuth.GitHubClientSecret == "" {
		errs = append(errs, errors.New("github client secret is required when github client id is set"))
	}
	if c.SMTP.Host != "" && c.SMTP.FromEmail == "" {
		errs = append(errs, errors.New("smtp from address is required when smtp host is set"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, errors.New("tracing sample ratio must be within [0, 1]"))
	}
	return errors.Join(errs...)
}

// EngineConfig maps the daemon settings onto studyauth.Config.
func (c Config) EngineConfig() studyauth.Config {
	cfg := studyauth.DefaultConfig()
	cfg.Session.IdleTTL = c.Session.IdleTTL
	cfg.Session.AbsoluteTTL = c.Session.AbsoluteTTL
	cfg.Refresh.Enabled = c.Refresh.Enabled
	if c.Refresh.Enabled {
		cfg.Refresh.PrivateKey = []byte(c.Refresh.SigningKey)
		cfg.Refresh.AccessTTL = c.Refresh.AccessTTL
		cfg.Refresh.Leeway = c.Refresh.Leeway
		cfg.Refresh.RequireIAT = c.Refresh.RequireIAT
		if c.Refresh.KeyID != "" {
			cfg.Refresh.KeyID = c.Refresh.KeyID
			cfg.Refresh.VerifyKeys = map[string][]byte{c.Refresh.KeyID: []byte(c.Refresh.SigningKey)}
			for kid, key := range c.Refresh.PreviousKeys {
				cfg.Refresh.VerifyKeys[kid] = []byte(key)
			}
		}
	}
	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.Enabled
	return cfg
}
