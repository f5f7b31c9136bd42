package replay

import (
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/session"
	"go.uber.org/zap"
)

// Config tunes the guard. Zero values other than MinFormTime are replaced by
// DefaultConfig.
type Config struct {
	CSRFTokenTTL time.Duration
	NonceWindow  time.Duration
	MaxNonces    int
	// StrictBinding rejects a nonce presented from a different client IP or
	// user agent than the one it was issued to.
	StrictBinding bool

	MinFormTime time.Duration
	MaxFormTime time.Duration

	DedupCap  int
	DedupKeep int
	// RequireSubmissionID rejects submissions that carry no submission id.
	RequireSubmissionID bool

	CaptchaTTL time.Duration
}

// DefaultConfig returns the stock windows and caps.
func DefaultConfig() Config {
	return Config{
		CSRFTokenTTL: time.Hour,
		NonceWindow:  5 * time.Minute,
		MaxNonces:    1000,
		MinFormTime:  2 * time.Second,
		MaxFormTime:  30 * time.Minute,
		DedupCap:     50,
		DedupKeep:    25,
		CaptchaTTL:   5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CSRFTokenTTL <= 0 {
		c.CSRFTokenTTL = d.CSRFTokenTTL
	}
	if c.NonceWindow <= 0 {
		c.NonceWindow = d.NonceWindow
	}
	if c.MaxNonces <= 0 {
		c.MaxNonces = d.MaxNonces
	}
	if c.MinFormTime < 0 {
		c.MinFormTime = 0
	}
	if c.MaxFormTime <= 0 {
		c.MaxFormTime = d.MaxFormTime
	}
	if c.DedupCap <= 0 {
		c.DedupCap = d.DedupCap
	}
	if c.DedupKeep <= 0 || c.DedupKeep > c.DedupCap {
		c.DedupKeep = c.DedupCap / 2
	}
	if c.CaptchaTTL <= 0 {
		c.CaptchaTTL = d.CaptchaTTL
	}
	return c
}

// Validate rejects inconsistent windows.
func (c Config) Validate() error {
	if c.MinFormTime > c.MaxFormTime && c.MaxFormTime > 0 {
		return errors.New("replay: MinFormTime must not exceed MaxFormTime")
	}
	if c.DedupKeep > c.DedupCap && c.DedupCap > 0 {
		return errors.New("replay: DedupKeep must not exceed DedupCap")
	}
	return nil
}

// RequestInfo is the client context a nonce is bound to.
type RequestInfo struct {
	ClientIP  string
	UserAgent string
	Endpoint  string
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the guard logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithRenderer sets the captcha renderer. PlainRenderer is the default.
func WithRenderer(r Renderer) Option {
	return func(g *Guard) {
		if r != nil {
			g.renderer = r
		}
	}
}

// Guard issues and validates per-session anti-replay state.
type Guard struct {
	store    session.Store
	config   Config
	now      func() time.Time
	logger   *zap.Logger
	renderer Renderer
}

// NewGuard returns a guard over store.
func NewGuard(store session.Store, cfg Config, opts ...Option) (*Guard, error) {
	if store == nil {
		return nil, errors.New("replay: session store is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &Guard{
		store:    store,
		config:   cfg,
		now:      time.Now,
		logger:   zap.NewNop(),
		renderer: PlainRenderer{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Config returns the effective configuration.
func (g *Guard) Config() Config {
	return g.config
}

// notFound reports whether err means the session is gone. Such errors turn
// into rejections; anything else is a store failure and is returned as is.
func notFound(err error) bool {
	return errors.Is(err, session.ErrNotFound)
}
