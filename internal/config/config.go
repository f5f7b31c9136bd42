// Package config loads guardd settings from GUARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every variable name.
const Prefix = "GUARD_"

// Config contains service configuration parameters.
type Config struct {
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`

	HTTP     HTTP     `envPrefix:"HTTP_"`
	Redis    Redis    `envPrefix:"REDIS_"`
	Database Database `envPrefix:"DATABASE_"`
	Vault    Vault    `envPrefix:"VAULT_"`
	Cookie   Cookie   `envPrefix:"COOKIE_"`
	Engine   Engine   `envPrefix:"ENGINE_"`
}

// HTTP contains listener and form-defense parameters.
type HTTP struct {
	Addr              string        `env:"ADDR" envDefault:":8080"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	TrustForwardedFor bool          `env:"TRUST_FORWARDED_FOR" envDefault:"false"`
	CaptchaOnRegister bool          `env:"CAPTCHA_ON_REGISTER" envDefault:"false"`
	BotCheck          bool          `env:"BOT_CHECK" envDefault:"false"`
}

// Redis backs sessions and the rate ledger. An empty Addr selects the
// in-process stores.
type Redis struct {
	Addr     string        `env:"ADDR"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"500ms"`
}

// Database backs accounts. An empty DSN selects the in-process store.
type Database struct {
	DSN              string        `env:"DSN"`
	StatementTimeout time.Duration `env:"STATEMENT_TIMEOUT" envDefault:"800ms"`
}

// Vault holds TOTP secrets. An empty Address selects the in-process store.
type Vault struct {
	Address string        `env:"ADDR"`
	Token   string        `env:"TOKEN"`
	Mount   string        `env:"MOUNT" envDefault:"secret"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"800ms"`
}

// Cookie contains session cookie parameters.
type Cookie struct {
	Name       string `env:"NAME" envDefault:"guard_session"`
	Domain     string `env:"DOMAIN"`
	Secure     bool   `env:"SECURE" envDefault:"true"`
	SigningKey string `env:"SIGNING_KEY"`
}

// Engine overrides the library defaults that operators tune most.
type Engine struct {
	TOTPIssuer          string        `env:"TOTP_ISSUER" envDefault:"goGuard"`
	LockoutThreshold    int           `env:"LOCKOUT_THRESHOLD" envDefault:"4"`
	LockoutDuration     time.Duration `env:"LOCKOUT_DURATION" envDefault:"15m"`
	SessionTTL          time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	StoreTimeout        time.Duration `env:"STORE_TIMEOUT" envDefault:"900ms"`
	MinFormTime         time.Duration `env:"MIN_FORM_TIME" envDefault:"2s"`
	StrictBinding       bool          `env:"STRICT_BINDING" envDefault:"false"`
	RequireSubmissionID bool          `env:"REQUIRE_SUBMISSION_ID" envDefault:"false"`
	AuditEnabled        bool          `env:"AUDIT_ENABLED" envDefault:"true"`
	MetricsEnabled      bool          `env:"METRICS_ENABLED" envDefault:"true"`
	LatencyHistograms   bool          `env:"LATENCY_HISTOGRAMS" envDefault:"true"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that the library config cannot.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("HTTP Addr must not be empty")
	}
	if len(c.Cookie.SigningKey) < 32 {
		return errors.New("Cookie SigningKey must be at least 32 bytes")
	}
	if c.Redis.Timeout <= 0 {
		return errors.New("Redis Timeout must be > 0")
	}
	if c.Database.StatementTimeout < 0 {
		return errors.New("Database StatementTimeout must be >= 0")
	}
	if c.Vault.Address != "" && c.Vault.Token == "" {
		return errors.New("Vault Token must be set when Address is set")
	}
	cfg := c.EngineConfig()
	return cfg.Validate()
}

// EngineConfig maps the overrides onto goGuard.DefaultConfig.
func (c *Config) EngineConfig() goGuard.Config {
	cfg := goGuard.DefaultConfig()
	cfg.TOTP.Issuer = c.Engine.TOTPIssuer
	cfg.Lockout.Threshold = c.Engine.LockoutThreshold
	cfg.Lockout.Duration = c.Engine.LockoutDuration
	cfg.Session.TTL = c.Engine.SessionTTL
	cfg.Store.Timeout = c.Engine.StoreTimeout
	cfg.Replay.MinFormTime = c.Engine.MinFormTime
	cfg.Replay.StrictBinding = c.Engine.StrictBinding
	cfg.Replay.RequireSubmissionID = c.Engine.RequireSubmissionID
	cfg.Audit.Enabled = c.Engine.AuditEnabled
	cfg.Metrics.Enabled = c.Engine.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.Engine.MetricsEnabled && c.Engine.LatencyHistograms
	return cfg
}
