package goGuard

import (
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/replay"
)

// Config is the full engine configuration. Build copies it, so later changes
// to the caller's value have no effect on a running Engine.
type Config struct {
	TOTP      TOTPConfig
	Lockout   LockoutConfig
	Account   AccountConfig
	Replay    ReplayConfig
	RateLimit RateLimitConfig
	Session   SessionConfig
	Store     StoreConfig
	Password  PasswordConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig controls second-factor enrollment and verification.
type TOTPConfig struct {
	Issuer string
	// Period is the step length in seconds.
	Period uint
	// Skew is the number of steps accepted on either side of the current one.
	Skew   uint
	Digits int

	BackupCodeCount int
	// BackupCodeHashCost is the bcrypt cost for backup-code hashes.
	BackupCodeHashCost int

	// QRCodeSize is the PNG edge length in pixels.
	QRCodeSize int
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls automatic account lockout after consecutive
// password failures. A Threshold of 0 disables lockout.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

/*
====================================
ACCOUNT CONFIG
====================================
*/

// AccountConfig holds registration form rules.
type AccountConfig struct {
	MinUsernameLength int
	MinPasswordLength int
}

/*
====================================
REPLAY CONFIG
====================================
*/

// ReplayConfig tunes CSRF, nonce, timing, dedup and captcha handling.
type ReplayConfig = replay.Config

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig holds the sliding-window policies. A Max of 0 disables
// the corresponding policy.
type RateLimitConfig struct {
	RegisterMax    int
	RegisterWindow time.Duration

	LoginMax    int
	LoginWindow time.Duration

	TOTPMax    int
	TOTPWindow time.Duration

	// RedisPrefix prefixes ledger keys when the Redis ledger is used.
	RedisPrefix string
}

func (c RateLimitConfig) registerPolicy() rate.Policy {
	return rate.Policy{Max: c.RegisterMax, Window: c.RegisterWindow}
}

func (c RateLimitConfig) loginPolicy() rate.Policy {
	return rate.Policy{Max: c.LoginMax, Window: c.LoginWindow}
}

func (c RateLimitConfig) totpPolicy() rate.Policy {
	return rate.Policy{Max: c.TOTPMax, Window: c.TOTPWindow}
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls browser-session lifetime.
type SessionConfig struct {
	TTL         time.Duration
	RedisPrefix string
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig bounds each credential and secret store round trip. A call
// that exceeds Timeout fails with ErrStoreUnavailable.
type StoreConfig struct {
	Timeout time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id cost parameters.
type PasswordConfig = password.Config

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the in-process counters and the login latency
// histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		TOTP: TOTPConfig{
			Issuer:             "goGuard",
			Period:             30,
			Skew:               1,
			Digits:             6,
			BackupCodeCount:    8,
			BackupCodeHashCost: 10,
			QRCodeSize:         256,
		},
		Lockout: LockoutConfig{
			Threshold: 4,
			Duration:  15 * time.Minute,
		},
		Account: AccountConfig{
			MinUsernameLength: 3,
			MinPasswordLength: 6,
		},
		Replay: replay.DefaultConfig(),
		RateLimit: RateLimitConfig{
			RegisterMax:    3,
			RegisterWindow: time.Hour,
			LoginMax:       5,
			LoginWindow:    15 * time.Minute,
			TOTPMax:        10,
			TOTPWindow:     15 * time.Minute,
			RedisPrefix:    "rl",
		},
		Session: SessionConfig{
			TTL:         24 * time.Hour,
			RedisPrefix: "gs",
		},
		Store: StoreConfig{
			Timeout: 500 * time.Millisecond,
		},
		Password: password.DefaultConfig(),
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// TOTP
	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer must not be empty")
	}
	if c.TOTP.Period == 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.BackupCodeCount <= 0 {
		return errors.New("TOTP BackupCodeCount must be > 0")
	}
	if c.TOTP.BackupCodeHashCost < 4 || c.TOTP.BackupCodeHashCost > 31 {
		return errors.New("TOTP BackupCodeHashCost must be between 4 and 31")
	}
	if c.TOTP.QRCodeSize < 64 {
		return errors.New("TOTP QRCodeSize must be >= 64")
	}

	// Lockout
	if c.Lockout.Threshold < 0 {
		return errors.New("Lockout Threshold must be >= 0")
	}
	if c.Lockout.Threshold > 0 && c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0 when Threshold is set")
	}

	// Account
	if c.Account.MinUsernameLength < 1 {
		return errors.New("Account MinUsernameLength must be >= 1")
	}
	if c.Account.MinPasswordLength < 1 {
		return errors.New("Account MinPasswordLength must be >= 1")
	}

	// Replay
	if c.Replay.MinFormTime < 0 {
		return errors.New("Replay MinFormTime must be >= 0")
	}
	if err := c.Replay.Validate(); err != nil {
		return err
	}

	// Rate limits
	if c.RateLimit.RegisterMax < 0 || c.RateLimit.LoginMax < 0 || c.RateLimit.TOTPMax < 0 {
		return errors.New("RateLimit Max values must be >= 0")
	}
	if c.RateLimit.RegisterMax > 0 && c.RateLimit.RegisterWindow <= 0 {
		return errors.New("RateLimit RegisterWindow must be > 0")
	}
	if c.RateLimit.LoginMax > 0 && c.RateLimit.LoginWindow <= 0 {
		return errors.New("RateLimit LoginWindow must be > 0")
	}
	if c.RateLimit.TOTPMax > 0 && c.RateLimit.TOTPWindow <= 0 {
		return errors.New("RateLimit TOTPWindow must be > 0")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}

	// Store
	if c.Store.Timeout <= 0 {
		return errors.New("Store Timeout must be > 0")
	}

	// Password
	if err := c.Password.Validate(); err != nil {
		return err
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
