package goGuard

import (
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/credential"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/replay"
	"github.com/MrEthical07/goGuard/secrets"
	"github.com/MrEthical07/goGuard/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLedger is the storage behind the sliding-window rate limiter.
type RateLedger = rate.Ledger

// RateDecision is the outcome of one ledger Record call.
type RateDecision = rate.Decision

// NewMemoryRateLedger returns an in-process ledger.
func NewMemoryRateLedger() RateLedger {
	return rate.NewMemoryLedger()
}

// NewRedisRateLedger returns a ledger keeping one sorted set per identifier.
func NewRedisRateLedger(client redis.UniversalClient, prefix string) RateLedger {
	return rate.NewRedisLedger(client, prefix)
}

// Builder assembles an Engine. Every dependency has an in-memory default, so
// New().Build() yields a working single-process engine.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials credential.Store
	secrets     secrets.Store
	sessions    session.Store
	ledger      RateLedger

	logger    *zap.Logger
	auditSink AuditSink
	renderer  replay.Renderer
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. Build validates it.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs sessions and the rate ledger with client unless explicit
// stores are supplied.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the account store. The default is credential.Memory.
func (b *Builder) WithCredentialStore(store credential.Store) *Builder {
	b.credentials = store
	return b
}

// WithSecretStore sets the TOTP secret store. The default is secrets.Memory.
func (b *Builder) WithSecretStore(store secrets.Store) *Builder {
	b.secrets = store
	return b
}

// WithSessionStore sets the session store, overriding WithRedis for sessions.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessions = store
	return b
}

// WithRateLedger sets the rate ledger, overriding WithRedis for rate limits.
func (b *Builder) WithRateLedger(ledger RateLedger) *Builder {
	b.ledger = ledger
	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets where audit events are delivered.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithRenderer sets the captcha renderer.
func (b *Builder) WithRenderer(r replay.Renderer) *Builder {
	b.renderer = r
	return b
}

// WithClock overrides time.Now for the engine, guard and limiter.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the login latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. A Builder can be
// built once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// -------- STORES --------
	credentials := b.credentials
	if credentials == nil {
		credentials = credential.NewMemory()
	}
	secretStore := b.secrets
	if secretStore == nil {
		secretStore = secrets.NewMemory()
	}
	sessions := b.sessions
	if sessions == nil {
		if b.redis != nil {
			sessions = session.NewRedis(b.redis, cfg.Session.RedisPrefix)
		} else {
			sessions = session.NewMemory(session.WithMemoryClock(now))
		}
	}
	ledger := b.ledger
	if ledger == nil {
		if b.redis != nil {
			ledger = rate.NewRedisLedger(b.redis, cfg.RateLimit.RedisPrefix)
		} else {
			ledger = rate.NewMemoryLedger()
		}
	}

	// -------- HASHERS --------
	argon, err := password.NewArgon2(cfg.Password)
	if err != nil {
		return nil, err
	}
	codeHasher, err := password.NewBcrypt(cfg.TOTP.BackupCodeHashCost)
	if err != nil {
		return nil, err
	}
	// Verified against on unknown identifiers so lookups cost one hash either way.
	dummyHash, err := argon.Hash("goGuard unknown account")
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:      cfg,
		credentials: &timedCredentials{store: credentials, timeout: cfg.Store.Timeout},
		secrets:     &timedSecrets{store: secretStore, timeout: cfg.Store.Timeout},
		sessions:    sessions,
		passwords:   argon,
		dummyHash:   dummyHash,
		backupCodes: codeHasher,
		totp:        newTOTPManager(cfg.TOTP),
		metrics:     NewMetrics(cfg.Metrics),
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink),
		logger:      logger,
		now:         now,
	}

	// -------- RATE LIMITER --------
	engine.limiter = rate.New(ledger,
		rate.WithLogger(logger.Named("rate")),
		rate.WithClock(now),
		rate.WithErrorHook(func(string, error) {
			engine.metricInc(MetricRateLimitLedgerError)
		}),
	)

	// -------- REPLAY GUARD --------
	guardOpts := []replay.Option{
		replay.WithLogger(logger.Named("replay")),
		replay.WithClock(now),
	}
	if b.renderer != nil {
		guardOpts = append(guardOpts, replay.WithRenderer(b.renderer))
	}
	guard, err := replay.NewGuard(sessions, cfg.Replay, guardOpts...)
	if err != nil {
		engine.Close()
		return nil, err
	}
	engine.guard = guard

	b.built = true

	return engine, nil
}
